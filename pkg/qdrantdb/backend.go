package qdrantdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"webrag/index"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
)

const (
	// MarkerFileName records which collection backs a session directory.
	MarkerFileName   = "qdrant.json"
	collectionPrefix = "webrag_"
	upsertBatchSize  = 256
)

type marker struct {
	Collection string `json:"collection"`
	Dimension  int    `json:"dimension"`
	Count      int    `json:"count"`
}

// Backend stores each index in its own Qdrant collection. The session
// directory only holds a marker file naming the collection.
type Backend struct {
	client *CrawlClient
	logger *zap.Logger
}

func NewBackend(client *CrawlClient, logger *zap.Logger) *Backend {
	return &Backend{client: client, logger: logger}
}

// CollectionName derives a collection name from an opaque id.
func CollectionName(id string) string {
	return collectionPrefix + strings.ReplaceAll(id, "-", "")
}

func (b *Backend) Build(ctx context.Context, records []index.Record) (index.Index, error) {
	if len(records) == 0 {
		return nil, index.ErrEmptyInput
	}
	dim := len(records[0].Vector)
	for i, r := range records {
		if len(r.Vector) != dim || dim == 0 {
			return nil, fmt.Errorf("record %d: vector dimension %d, want %d", i, len(r.Vector), dim)
		}
	}

	name := CollectionName(uuid.NewString())
	err := b.client.Client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("err create collection %s: %w", name, err)
	}

	col := &Collection{client: b.client, name: name, dimension: dim, count: len(records)}
	if err := col.upsert(ctx, records); err != nil {
		if derr := col.Discard(context.WithoutCancel(ctx)); derr != nil {
			b.logger.Warn("failed to drop collection after upsert error",
				zap.String("collection", name), zap.Error(derr))
		}
		return nil, err
	}

	b.logger.Debug("qdrant collection built",
		zap.String("collection", name),
		zap.Int("points", len(records)))
	return col, nil
}

func (b *Backend) Load(ctx context.Context, dir string) (index.Index, bool, error) {
	m, ok, err := readMarker(dir)
	if err != nil || !ok {
		return nil, false, err
	}

	exists, err := b.client.Client.CollectionExists(ctx, m.Collection)
	if err != nil {
		return nil, false, fmt.Errorf("err check collection %s: %w", m.Collection, err)
	}
	if !exists {
		return nil, false, fmt.Errorf("%w: collection %s is gone", index.ErrCorruptIndex, m.Collection)
	}

	return &Collection{
		client:    b.client,
		name:      m.Collection,
		dimension: m.Dimension,
		count:     m.Count,
	}, true, nil
}

func readMarker(dir string) (marker, bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, MarkerFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return marker{}, false, nil
		}
		return marker{}, false, err
	}

	var m marker
	if err := json.Unmarshal(data, &m); err != nil {
		return marker{}, false, fmt.Errorf("%w: %v", index.ErrCorruptIndex, err)
	}
	if !strings.HasPrefix(m.Collection, collectionPrefix) || m.Dimension <= 0 || m.Count <= 0 {
		return marker{}, false, fmt.Errorf("%w: invalid marker %+v", index.ErrCorruptIndex, m)
	}
	return m, true, nil
}

func writeMarker(dir string, m marker) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, MarkerFileName), data, 0o644)
}
