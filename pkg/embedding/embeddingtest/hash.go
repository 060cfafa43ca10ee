// Package embeddingtest provides deterministic embedding clients for tests.
package embeddingtest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"webrag/pkg/embedding"

	"go.uber.org/zap"
)

// Hash embeds text as a hashed bag of lowercase words. Texts sharing words
// get similar vectors, which is enough to exercise retrieval ordering.
type Hash struct {
	Dim int

	mu    sync.Mutex
	calls int
}

func NewHash(dim int) *Hash {
	return &Hash{Dim: dim}
}

func (h *Hash) GetEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t, h.Dim)
	}
	return out, nil
}

// Calls returns the number of GetEmbeddings calls so far.
func (h *Hash) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

// Vector is the embedding Hash produces for text.
func Vector(text string, dim int) []float32 {
	v := make([]float32, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		f := fnv.New32a()
		_, _ = f.Write([]byte(w))
		v[f.Sum32()%uint32(dim)]++
	}
	return v
}

// NewProvider returns a Provider backed by Hash with retries disabled.
func NewProvider(dim int) (*embedding.Provider, *Hash) {
	h := NewHash(dim)
	p := embedding.NewProvider(
		func(context.Context) (embedding.Client, error) { return h, nil },
		embedding.ProviderConfig{Name: "hash", BatchSize: 16},
		zap.NewNop(),
	)
	return p, h
}
