package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"webrag/metrics"

	"go.uber.org/zap"
)

// probeText is embedded once at initialization to learn the dimensionality.
const probeText = "dimension probe"

// Factory creates the underlying client. It runs at most once per
// successful initialization.
type Factory func(ctx context.Context) (Client, error)

type ProviderConfig struct {
	Name       string // metrics label
	BatchSize  int
	MaxRetries int
	BaseDelay  time.Duration
}

func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Name:       "tei",
		BatchSize:  32,
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
	}
}

type ready struct {
	client    Client
	dimension int
}

// Provider owns the process-wide embedding client. The client is created on
// first use and shared by every caller afterwards; a failed initialization
// is not cached.
type Provider struct {
	factory Factory
	config  ProviderConfig
	logger  *zap.Logger

	mu    sync.Mutex
	state atomic.Pointer[ready]
}

func NewProvider(factory Factory, config ProviderConfig, logger *zap.Logger) *Provider {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultProviderConfig().BatchSize
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	return &Provider{
		factory: factory,
		config:  config,
		logger:  logger,
	}
}

// Warmup forces initialization so the first request does not pay for it.
func (p *Provider) Warmup(ctx context.Context) error {
	_, err := p.get(ctx)
	return err
}

// Dimension returns the vector size, or 0 before initialization.
func (p *Provider) Dimension() int {
	if s := p.state.Load(); s != nil {
		return s.dimension
	}
	return 0
}

// Embed returns one vector per text, in order. Texts are sent in batches of
// BatchSize; each batch is retried with backoff on failure.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	s, err := p.get(ctx)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.config.BatchSize {
		end := min(start+p.config.BatchSize, len(texts))
		batch, err := p.embedWithRetry(ctx, s.client, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		for _, v := range batch {
			if len(v) != s.dimension {
				return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), s.dimension)
			}
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (p *Provider) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p *Provider) get(ctx context.Context) (*ready, error) {
	if s := p.state.Load(); s != nil {
		return s, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if s := p.state.Load(); s != nil {
		return s, nil
	}

	start := time.Now()
	client, err := p.factory(ctx)
	if err != nil {
		p.logger.Error("embedding client creation failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrProviderInit, err)
	}
	probe, err := p.embedWithRetry(ctx, client, []string{probeText})
	if err != nil {
		p.logger.Error("embedding probe failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrProviderInit, err)
	}
	if len(probe[0]) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrProviderInit, ErrEmptyResponse)
	}

	s := &ready{client: client, dimension: len(probe[0])}
	p.state.Store(s)
	p.logger.Info("embedding provider ready",
		zap.String("provider", p.config.Name),
		zap.Int("dimension", s.dimension),
		zap.Duration("elapsed", time.Since(start)))
	return s, nil
}

func (p *Provider) embedWithRetry(ctx context.Context, client Client, texts []string) ([][]float32, error) {
	var lastErr error

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		start := time.Now()
		vec, err := client.GetEmbeddings(ctx, texts)
		if err == nil && len(vec) != len(texts) {
			err = fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmptyResponse, len(vec), len(texts))
		}
		if err == nil {
			metrics.EmbeddingRequestsTotal.WithLabelValues(p.config.Name, "success").Inc()
			metrics.EmbeddingRequestDuration.WithLabelValues(p.config.Name).Observe(time.Since(start).Seconds())
			return vec, nil
		}
		metrics.EmbeddingRequestsTotal.WithLabelValues(p.config.Name, "error").Inc()

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		lastErr = err

		if attempt < p.config.MaxRetries {
			delay := p.backoffDelay(attempt)
			p.logger.Warn("embedding request failed, retrying",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(err))

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return nil, lastErr
}

// backoffDelay is baseDelay * 2^attempt with up to 25% jitter either way.
func (p *Provider) backoffDelay(attempt int) time.Duration {
	delay := float64(p.config.BaseDelay) * math.Pow(2, float64(attempt))
	jitter := delay * 0.25 * (2*rand.Float64() - 1)
	return time.Duration(delay + jitter)
}
