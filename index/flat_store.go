package index

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"webrag/pkg/chunking"

	bolt "go.etcd.io/bbolt"
)

// FlatFileName is the bbolt file holding a FlatIndex inside a session directory.
const FlatFileName = "index.db"

const flatFormatVersion = 1

var (
	metaBucket    = []byte("meta")
	chunksBucket  = []byte("chunks")
	vectorsBucket = []byte("vectors")

	keyVersion   = []byte("version")
	keyDimension = []byte("dimension")
	keyCount     = []byte("count")
)

// Save writes the index to dir/index.db, replacing any previous file.
func (f *FlatIndex) Save(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	path := filepath.Join(dir, FlatFileName)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove old index: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucket(metaBucket)
		if err != nil {
			return err
		}
		chunks, err := tx.CreateBucket(chunksBucket)
		if err != nil {
			return err
		}
		vectors, err := tx.CreateBucket(vectorsBucket)
		if err != nil {
			return err
		}

		if err := meta.Put(keyVersion, encodeUint(flatFormatVersion)); err != nil {
			return err
		}
		if err := meta.Put(keyDimension, encodeUint(uint64(f.dimension))); err != nil {
			return err
		}
		if err := meta.Put(keyCount, encodeUint(uint64(len(f.chunks)))); err != nil {
			return err
		}

		for i := range f.chunks {
			key := encodeUint(uint64(i))
			data, err := json.Marshal(f.chunks[i])
			if err != nil {
				return fmt.Errorf("failed to encode chunk %d: %w", i, err)
			}
			if err := chunks.Put(key, data); err != nil {
				return err
			}
			if err := vectors.Put(key, encodeVector(f.vectors[i])); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to write index: %w", err)
	}
	return db.Close()
}

// LoadFlat reads dir/index.db. It reports false with a nil error when the
// file does not exist.
func LoadFlat(ctx context.Context, dir string) (*FlatIndex, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	path := filepath.Join(dir, FlatFileName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to stat index file: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second, ReadOnly: true})
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	defer db.Close()

	idx := &FlatIndex{}
	err = db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		chunks := tx.Bucket(chunksBucket)
		vectors := tx.Bucket(vectorsBucket)
		if meta == nil || chunks == nil || vectors == nil {
			return errors.New("missing bucket")
		}

		version, ok := decodeUint(meta.Get(keyVersion))
		if !ok || version != flatFormatVersion {
			return fmt.Errorf("unsupported format version %d", version)
		}
		dim, ok := decodeUint(meta.Get(keyDimension))
		if !ok || dim == 0 {
			return errors.New("invalid dimension")
		}
		count, ok := decodeUint(meta.Get(keyCount))
		if !ok || count == 0 {
			return errors.New("invalid record count")
		}

		idx.dimension = int(dim)
		idx.chunks = make([]chunking.Chunk, 0, count)
		idx.vectors = make([][]float32, 0, count)
		for i := uint64(0); i < count; i++ {
			key := encodeUint(i)
			data := chunks.Get(key)
			raw := vectors.Get(key)
			if data == nil || raw == nil {
				return fmt.Errorf("record %d missing", i)
			}

			var ch chunking.Chunk
			if err := json.Unmarshal(data, &ch); err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			vec, ok := decodeVector(raw)
			if !ok || len(vec) != idx.dimension {
				return fmt.Errorf("record %d: bad vector", i)
			}
			idx.chunks = append(idx.chunks, ch)
			idx.vectors = append(idx.vectors, vec)
		}
		if chunks.Stats().KeyN != int(count) || vectors.Stats().KeyN != int(count) {
			return errors.New("record count mismatch")
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", ErrCorruptIndex, path, err)
	}
	return idx, true, nil
}

func encodeUint(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeUint(b []byte) (uint64, bool) {
	if len(b) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(b), true
}

func encodeVector(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(x))
	}
	return b
}

func decodeVector(b []byte) ([]float32, bool) {
	if len(b)%4 != 0 {
		return nil, false
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, true
}
