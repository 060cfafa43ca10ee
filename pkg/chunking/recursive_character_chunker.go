package chunking

import (
	"webrag/crawler"
)

// separatorGroups are tried in priority order. Within a group the latest
// match wins, so sentence ends of any kind rank equally.
var separatorGroups = [][][]rune{
	{[]rune("\n\n")},
	{[]rune("\n")},
	{[]rune(". "), []rune("! "), []rune("? ")},
	{[]rune(" ")},
}

// RecursiveCharacterChunker splits documents into overlapping windows that
// prefer to end on paragraph, line, sentence or word boundaries.
type RecursiveCharacterChunker struct {
	config Config
}

func NewRecursiveCharacterChunker(config Config) (*RecursiveCharacterChunker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &RecursiveCharacterChunker{config: config}, nil
}

// Split is deterministic: the same documents always give the same chunks.
func (c *RecursiveCharacterChunker) Split(docs []crawler.Document) []Chunk {
	chunks, _ := c.SplitCapped(docs)
	return chunks
}

// SplitCapped is Split that also reports whether MaxChunks cut the output short.
func (c *RecursiveCharacterChunker) SplitCapped(docs []crawler.Document) ([]Chunk, bool) {
	var chunks []Chunk
	for _, doc := range docs {
		for i, text := range c.SplitText(doc.Content) {
			if c.config.MaxChunks > 0 && len(chunks) >= c.config.MaxChunks {
				return chunks, true
			}
			chunks = append(chunks, Chunk{
				Text:      text,
				SourceURL: doc.SourceURL,
				Depth:     doc.Depth,
				Index:     i,
			})
		}
	}
	return chunks, false
}

// SplitText splits a single text. Consecutive pieces share exactly Overlap
// runes, so the first piece followed by every later piece minus its first
// Overlap runes rebuilds the input.
func (c *RecursiveCharacterChunker) SplitText(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= c.config.Size {
		return []string{text}
	}

	var pieces []string
	start := 0
	for {
		end := start + c.config.Size
		if end >= n {
			pieces = append(pieces, string(runes[start:]))
			return pieces
		}
		end = c.boundary(runes, start, end)
		pieces = append(pieces, string(runes[start:end]))
		start = end - c.config.Overlap
	}
}

// boundary returns the best split point in (start+Overlap, limit]. The
// separator stays with the chunk it ends.
func (c *RecursiveCharacterChunker) boundary(runes []rune, start, limit int) int {
	low := start + c.config.Overlap
	for _, group := range separatorGroups {
		best := -1
		for _, sep := range group {
			if p := lastSeparatorEnd(runes, sep, start, low, limit); p > best {
				best = p
			}
		}
		if best > 0 {
			return best
		}
	}
	return limit
}

// lastSeparatorEnd finds the largest p in (low, limit] such that sep ends at
// p and starts at or after start. It returns -1 if there is none.
func lastSeparatorEnd(runes, sep []rune, start, low, limit int) int {
	for p := limit; p > low; p-- {
		from := p - len(sep)
		if from < start {
			break
		}
		if hasPrefixAt(runes, sep, from) {
			return p
		}
	}
	return -1
}

func hasPrefixAt(runes, sep []rune, at int) bool {
	for k, r := range sep {
		if runes[at+k] != r {
			return false
		}
	}
	return true
}
