package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrProviderInit is returned while the embedding client cannot be
	// created or probed. The next call tries again.
	ErrProviderInit      = errors.New("embedding provider initialization failed")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrEmptyResponse     = errors.New("empty embedding response")
	ErrUnknownProvider   = errors.New("unknown embedding provider")
)

type EmbeddingRequest struct {
	Inputs []string `json:"inputs"`
}

type EmbeddingResponse [][]float32

type Client interface {
	// One vector per input text, in input order.
	GetEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Settings selects and configures a Client.
type Settings struct {
	Provider string // tei, openai
	Model    string
	BaseURL  string
	APIKey   string
}

// NewClient builds the client named by settings.Provider.
func NewClient(settings Settings) (Client, error) {
	switch strings.ToLower(settings.Provider) {
	case "tei", "":
		if settings.BaseURL == "" {
			return nil, errors.New("tei embedding requires a base url")
		}
		return NewAllMinilmL6V2(settings.BaseURL), nil
	case "openai":
		if settings.APIKey == "" {
			return nil, errors.New("openai embedding requires an api key")
		}
		return NewOpenAI(settings), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, settings.Provider)
	}
}

func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// Normalize returns a unit-length copy of v. A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Dot is the inner product of two vectors of equal length.
func Dot(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}
