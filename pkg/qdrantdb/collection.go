package qdrantdb

import (
	"context"
	"fmt"

	"webrag/index"
	"webrag/pkg/chunking"

	"github.com/qdrant/go-client/qdrant"
)

// Collection is an index.Index served by one Qdrant collection. Point ids
// are record positions.
type Collection struct {
	client    *CrawlClient
	name      string
	dimension int
	count     int
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) Len() int { return c.count }

func (c *Collection) Search(ctx context.Context, query []float32, k int) ([]index.Match, error) {
	if k <= 0 {
		return []index.Match{}, nil
	}
	points, err := c.query(ctx, query, k, false)
	if err != nil {
		return nil, err
	}

	matches := make([]index.Match, 0, len(points))
	for _, p := range points {
		ch, err := chunkFromPayload(p.GetPayload())
		if err != nil {
			return nil, err
		}
		matches = append(matches, index.Match{Chunk: ch, Score: p.GetScore()})
	}
	return matches, nil
}

func (c *Collection) SearchDiverse(ctx context.Context, query []float32, k, fetchK int, lambda float64) ([]index.Match, error) {
	if k <= 0 {
		return []index.Match{}, nil
	}
	points, err := c.query(ctx, query, max(fetchK, k), true)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(points))
	for i, p := range points {
		vectors[i] = denseVector(p.GetVectors())
		if len(vectors[i]) != c.dimension {
			return nil, fmt.Errorf("%w: point %d has no vector", index.ErrCorruptIndex, i)
		}
	}

	picked := index.MaximalMarginalRelevance(query, vectors, k, lambda)
	matches := make([]index.Match, 0, len(picked))
	for _, i := range picked {
		ch, err := chunkFromPayload(points[i].GetPayload())
		if err != nil {
			return nil, err
		}
		matches = append(matches, index.Match{Chunk: ch, Score: points[i].GetScore()})
	}
	return matches, nil
}

// Save writes the marker file; the vectors already live in Qdrant.
func (c *Collection) Save(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeMarker(dir, marker{Collection: c.name, Dimension: c.dimension, Count: c.count})
}

// Discard drops the collection.
func (c *Collection) Discard(ctx context.Context) error {
	if err := c.client.Client.DeleteCollection(ctx, c.name); err != nil {
		return fmt.Errorf("err drop collection %s: %w", c.name, err)
	}
	return nil
}

func (c *Collection) query(ctx context.Context, query []float32, limit int, withVectors bool) ([]*qdrant.ScoredPoint, error) {
	if len(query) != c.dimension {
		return nil, fmt.Errorf("query dimension %d, collection %s has %d", len(query), c.name, c.dimension)
	}
	n := uint64(min(limit, c.count))
	points, err := c.client.Client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.name,
		Query:          qdrant.NewQuery(query...),
		Limit:          &n,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(withVectors),
	})
	if err != nil {
		return nil, fmt.Errorf("err query collection %s: %w", c.name, err)
	}
	return points, nil
}

func (c *Collection) upsert(ctx context.Context, records []index.Record) error {
	wait := true
	for start := 0; start < len(records); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(records))
		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(uint64(i)),
				Vectors: qdrant.NewVectorsDense(records[i].Vector),
				Payload: recordPayload(records[i].Chunk),
			})
		}
		_, err := c.client.Client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: c.name,
			Wait:           &wait,
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("err upsert into %s: %w", c.name, err)
		}
	}
	return nil
}

func denseVector(v *qdrant.VectorsOutput) []float32 {
	out := v.GetVector()
	if data := out.GetData(); len(data) > 0 {
		return data
	}
	return out.GetDense().GetData()
}

func recordPayload(ch chunking.Chunk) map[string]*qdrant.Value {
	return map[string]*qdrant.Value{
		"url":     qdrant.NewValueString(ch.SourceURL),
		"content": qdrant.NewValueString(ch.Text),
		"depth":   qdrant.NewValueInt(int64(ch.Depth)),
		"index":   qdrant.NewValueInt(int64(ch.Index)),
	}
}

func chunkFromPayload(payload map[string]*qdrant.Value) (chunking.Chunk, error) {
	content, ok := payload["content"]
	if !ok {
		return chunking.Chunk{}, fmt.Errorf("%w: point without content", index.ErrCorruptIndex)
	}
	return chunking.Chunk{
		Text:      content.GetStringValue(),
		SourceURL: payload["url"].GetStringValue(),
		Depth:     int(payload["depth"].GetIntegerValue()),
		Index:     int(payload["index"].GetIntegerValue()),
	}, nil
}
