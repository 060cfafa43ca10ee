package index

import (
	"context"
	"fmt"
	"sort"

	"webrag/pkg/chunking"
	"webrag/pkg/embedding"
)

// FlatIndex is an exact nearest-neighbour index over unit vectors. Cosine
// similarity reduces to a dot product; equal scores keep insertion order.
type FlatIndex struct {
	dimension int
	chunks    []chunking.Chunk
	vectors   [][]float32
}

// NewFlatIndex normalizes and copies the record vectors.
func NewFlatIndex(records []Record) (*FlatIndex, error) {
	if len(records) == 0 {
		return nil, ErrEmptyInput
	}
	dim := len(records[0].Vector)
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero-length vector", embedding.ErrDimensionMismatch)
	}

	idx := &FlatIndex{
		dimension: dim,
		chunks:    make([]chunking.Chunk, len(records)),
		vectors:   make([][]float32, len(records)),
	}
	for i, r := range records {
		if len(r.Vector) != dim {
			return nil, fmt.Errorf("%w: record %d has %d, want %d",
				embedding.ErrDimensionMismatch, i, len(r.Vector), dim)
		}
		idx.chunks[i] = r.Chunk
		idx.vectors[i] = embedding.Normalize(r.Vector)
	}
	return idx, nil
}

func (f *FlatIndex) Len() int { return len(f.chunks) }

func (f *FlatIndex) Dimension() int { return f.dimension }

func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Match, error) {
	order, scores, err := f.rank(ctx, query)
	if err != nil {
		return nil, err
	}
	k = min(max(k, 0), len(order))

	matches := make([]Match, k)
	for i, pos := range order[:k] {
		matches[i] = Match{Chunk: f.chunks[pos], Score: scores[pos]}
	}
	return matches, nil
}

func (f *FlatIndex) SearchDiverse(ctx context.Context, query []float32, k, fetchK int, lambda float64) ([]Match, error) {
	order, scores, err := f.rank(ctx, query)
	if err != nil {
		return nil, err
	}
	fetchK = min(max(fetchK, k), len(order))
	candidates := order[:fetchK]

	vectors := make([][]float32, len(candidates))
	for i, pos := range candidates {
		vectors[i] = f.vectors[pos]
	}

	picked := MaximalMarginalRelevance(query, vectors, k, lambda)
	matches := make([]Match, len(picked))
	for i, c := range picked {
		pos := candidates[c]
		matches[i] = Match{Chunk: f.chunks[pos], Score: scores[pos]}
	}
	return matches, nil
}

// rank returns record positions ordered by descending score.
func (f *FlatIndex) rank(ctx context.Context, query []float32) ([]int, []float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if len(query) != f.dimension {
		return nil, nil, fmt.Errorf("%w: query has %d, index has %d",
			embedding.ErrDimensionMismatch, len(query), f.dimension)
	}

	q := embedding.Normalize(query)
	scores := make([]float32, len(f.vectors))
	order := make([]int, len(f.vectors))
	for i, v := range f.vectors {
		scores[i] = embedding.Dot(q, v)
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	return order, scores, nil
}

// FlatBackend builds FlatIndex values and stores them as bbolt files.
type FlatBackend struct{}

func (FlatBackend) Build(_ context.Context, records []Record) (Index, error) {
	return NewFlatIndex(records)
}

func (FlatBackend) Load(ctx context.Context, dir string) (Index, bool, error) {
	idx, ok, err := LoadFlat(ctx, dir)
	if err != nil || !ok {
		return nil, ok, err
	}
	return idx, true, nil
}
