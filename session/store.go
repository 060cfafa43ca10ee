package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"webrag/index"
)

// MetaFileName holds a session's url and history next to its index files.
const MetaFileName = "meta.json"

type Meta struct {
	URL     string `json:"url"`
	History []Turn `json:"history"`
}

// Store maps session ids to directories under a root.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Root() string { return s.root }

func (s *Store) Init() error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("failed to create storage root: %w", err)
	}
	return nil
}

func (s *Store) Dir(id string) string {
	return filepath.Join(s.root, id)
}

// TempDir is where a new session is assembled before it becomes visible.
func (s *Store) TempDir(id string) string {
	return filepath.Join(s.root, index.TempPrefix+id)
}

// Promote makes a fully written temp directory the session's directory.
func (s *Store) Promote(tmpDir, id string) error {
	if err := os.Rename(tmpDir, s.Dir(id)); err != nil {
		return fmt.Errorf("failed to publish session directory: %w", err)
	}
	return nil
}

// ReadMeta reports false with a nil error when the session has no metadata.
func (s *Store) ReadMeta(id string) (Meta, bool, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir(id), MetaFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Meta{}, false, nil
		}
		return Meta{}, false, fmt.Errorf("failed to read session metadata: %w", err)
	}

	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return Meta{}, false, fmt.Errorf("failed to decode session metadata: %w", err)
	}
	return meta, true, nil
}

// WriteMeta replaces dir/meta.json atomically.
func (s *Store) WriteMeta(dir string, meta Meta) error {
	if meta.History == nil {
		meta.History = []Turn{}
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode session metadata: %w", err)
	}

	tmp, err := os.CreateTemp(dir, MetaFileName+".*")
	if err != nil {
		return fmt.Errorf("failed to create metadata file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close metadata file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, MetaFileName)); err != nil {
		return fmt.Errorf("failed to replace metadata: %w", err)
	}
	return nil
}

// RemoveTemp deletes temp directories left behind by interrupted creations.
func (s *Store) RemoveTemp() (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.root, index.TempPrefix+"*"))
	if err != nil {
		return 0, err
	}
	for _, m := range matches {
		if err := os.RemoveAll(m); err != nil {
			return 0, fmt.Errorf("failed to remove %s: %w", m, err)
		}
	}
	return len(matches), nil
}
