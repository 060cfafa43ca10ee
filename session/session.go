package session

import "sync"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// LLMErrorPrefix starts the placeholder answer recorded when generation fails.
const LLMErrorPrefix = "⚠️ LLM Error: "

type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is a snapshot of one indexed website and its conversation.
type Session struct {
	ID      string
	URL     string
	History []Turn
}

type CreateResult struct {
	SessionID     string `json:"session_id"`
	PagesCrawled  int    `json:"pages_crawled"`
	ChunksCreated int    `json:"chunks_created"`
}

type AskResult struct {
	Answer  string `json:"answer"`
	History []Turn `json:"history"`
}

type Summary struct {
	ID    string `json:"session_id"`
	URL   string `json:"url"`
	Turns int    `json:"turns"`
}

// entry is the registry record behind a Session. history and version are
// guarded by Manager.mu; written is guarded by writeMu.
type entry struct {
	id      string
	url     string
	history []Turn
	version uint64

	writeMu sync.Mutex
	written uint64
}

func (e *entry) snapshot() []Turn {
	out := make([]Turn, len(e.history))
	copy(out, e.history)
	return out
}
