// Package index builds, searches and persists the per-session vector index.
package index

import (
	"context"
	"errors"

	"webrag/pkg/chunking"
)

var (
	// ErrEmptyInput is returned when an index would contain no records.
	ErrEmptyInput   = errors.New("no chunks to index")
	ErrCorruptIndex = errors.New("corrupt index")
)

// Record is one chunk with its embedding.
type Record struct {
	Chunk  chunking.Chunk
	Vector []float32
}

// Match is a search hit. Score is the cosine similarity to the query.
type Match struct {
	Chunk chunking.Chunk
	Score float32
}

// Index is immutable once built and safe for concurrent searches.
type Index interface {
	// Search returns the min(k, Len()) records closest to query, best first.
	Search(ctx context.Context, query []float32, k int) ([]Match, error)
	// SearchDiverse picks k of the fetchK nearest records by maximal
	// marginal relevance. lambda = 1 is pure relevance, 0 pure diversity.
	SearchDiverse(ctx context.Context, query []float32, k, fetchK int, lambda float64) ([]Match, error)
	// Save writes the index into dir, creating it if needed.
	Save(ctx context.Context, dir string) error
	Len() int
}

// Backend creates and restores indexes of one storage kind.
type Backend interface {
	Build(ctx context.Context, records []Record) (Index, error)
	// Load reports false with a nil error when dir holds no index.
	Load(ctx context.Context, dir string) (Index, bool, error)
}

// Discarder is implemented by indexes that hold state outside the session
// directory and must be released when a session is abandoned.
type Discarder interface {
	Discard(ctx context.Context) error
}

// Discard releases idx if it holds external state.
func Discard(ctx context.Context, idx Index) error {
	if d, ok := idx.(Discarder); ok {
		return d.Discard(ctx)
	}
	return nil
}
