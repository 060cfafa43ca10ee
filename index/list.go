package index

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// TempPrefix marks session directories that are still being written.
const TempPrefix = ".tmp-"

// ListPersisted returns the names of the session directories under root in
// lexical order. Hidden and temporary directories are skipped; a missing
// root is an empty result.
func ListPersisted(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", root, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}
