package chunking

import (
	"errors"

	"webrag/crawler"
)

// ErrInvalidConfig is returned for a chunk size or overlap the splitter
// cannot make progress with.
var ErrInvalidConfig = errors.New("invalid chunking config")

// Chunk is a contiguous slice of one document's content. Index is the
// chunk's position within that document.
type Chunk struct {
	Text      string `json:"text"`
	SourceURL string `json:"source_url"`
	Depth     int    `json:"depth"`
	Index     int    `json:"index"`
}

type Splitter interface {
	Split(docs []crawler.Document) []Chunk
}

type Config struct {
	Size      int // runes per chunk
	Overlap   int // runes shared by consecutive chunks
	MaxChunks int // total cap, 0 = unlimited
}

func (c Config) Validate() error {
	if c.Size <= 0 {
		return errors.Join(ErrInvalidConfig, errors.New("size must be positive"))
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return errors.Join(ErrInvalidConfig, errors.New("overlap must be in [0, size)"))
	}
	if c.MaxChunks < 0 {
		return errors.Join(ErrInvalidConfig, errors.New("max chunks must not be negative"))
	}
	return nil
}
