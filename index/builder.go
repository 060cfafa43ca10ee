package index

import (
	"context"
	"fmt"
	"time"

	"webrag/pkg/chunking"

	"go.uber.org/zap"
)

// Embedder turns texts into vectors of one fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Indexer embeds chunks and hands the records to a Backend.
type Indexer struct {
	embedder Embedder
	backend  Backend
	logger   *zap.Logger
}

func NewIndexer(embedder Embedder, backend Backend, logger *zap.Logger) *Indexer {
	return &Indexer{embedder: embedder, backend: backend, logger: logger}
}

func (i *Indexer) Backend() Backend { return i.backend }

// Build embeds every chunk and returns the index with its record count.
func (i *Indexer) Build(ctx context.Context, chunks []chunking.Chunk) (Index, int, error) {
	if len(chunks) == 0 {
		return nil, 0, ErrEmptyInput
	}

	start := time.Now()
	texts := make([]string, len(chunks))
	for n, ch := range chunks {
		texts[n] = ch.Text
	}

	vectors, err := i.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	records := make([]Record, len(chunks))
	for n := range chunks {
		records[n] = Record{Chunk: chunks[n], Vector: vectors[n]}
	}

	idx, err := i.backend.Build(ctx, records)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build index: %w", err)
	}

	i.logger.Info("index built",
		zap.Int("chunks", len(records)),
		zap.Duration("elapsed", time.Since(start)))
	return idx, len(records), nil
}
