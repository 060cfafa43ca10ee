package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"webrag/index"
	"webrag/pkg/chunking"
)

const (
	PolicySimilarity = "similarity"
	PolicyMMR        = "mmr"
)

var (
	ErrInvalidK      = errors.New("k must be at least 1 and fetch_k at least k")
	ErrUnknownPolicy = errors.New("unknown retrieval policy")
)

// QueryEmbedder embeds a single question.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

type Config struct {
	Policy string
	K      int
	FetchK int
	Lambda float64
}

func DefaultConfig() Config {
	return Config{Policy: PolicySimilarity, K: 4, FetchK: 20, Lambda: 0.5}
}

// Retriever selects the chunks most useful for answering a question.
type Retriever struct {
	embedder QueryEmbedder
	config   Config
}

func NewRetriever(embedder QueryEmbedder, config Config) (*Retriever, error) {
	switch strings.ToLower(config.Policy) {
	case "":
		config.Policy = PolicySimilarity
	case PolicySimilarity, PolicyMMR:
		config.Policy = strings.ToLower(config.Policy)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, config.Policy)
	}
	if config.K < 1 || config.FetchK < config.K {
		return nil, ErrInvalidK
	}
	return &Retriever{embedder: embedder, config: config}, nil
}

func (r *Retriever) Policy() string { return r.config.Policy }

// Retrieve returns min(K, idx.Len()) chunks using the configured defaults.
func (r *Retriever) Retrieve(ctx context.Context, idx index.Index, question string) ([]chunking.Chunk, error) {
	return r.RetrieveK(ctx, idx, question, r.config.K, r.config.FetchK)
}

// RetrieveK returns min(k, idx.Len()) chunks. Under the mmr policy the k
// chunks are picked from the fetchK nearest.
func (r *Retriever) RetrieveK(ctx context.Context, idx index.Index, question string, k, fetchK int) ([]chunking.Chunk, error) {
	if k < 1 || fetchK < k {
		return nil, ErrInvalidK
	}

	query, err := r.embedder.EmbedOne(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	var matches []index.Match
	switch r.config.Policy {
	case PolicyMMR:
		matches, err = idx.SearchDiverse(ctx, query, k, fetchK, r.config.Lambda)
	default:
		matches, err = idx.Search(ctx, query, k)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	chunks := make([]chunking.Chunk, len(matches))
	for i, m := range matches {
		chunks[i] = m.Chunk
	}
	return chunks, nil
}
