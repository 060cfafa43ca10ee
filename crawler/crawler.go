package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"webrag/metrics"

	"go.uber.org/zap"
)

// ErrInvalidURL is returned when the seed is not an absolute http(s) URL.
var ErrInvalidURL = errors.New("invalid seed url")

type Crawler struct {
	fetcher   PageFetcher
	extractor *ContentExtractor
	config    *CrawlerConfig
	logger    *zap.Logger
}

// NewCrawler creates a crawler that fetches pages with colly.
func NewCrawler(config *CrawlerConfig, logger *zap.Logger) (*Crawler, error) {
	if config == nil {
		config = DefaultConfig()
	}
	fetcher, err := NewCollyFetcher(config)
	if err != nil {
		return nil, err
	}
	return NewCrawlerWithFetcher(config, fetcher, logger), nil
}

// NewCrawlerWithFetcher creates a crawler with a caller-supplied fetcher.
func NewCrawlerWithFetcher(config *CrawlerConfig, fetcher PageFetcher, logger *zap.Logger) *Crawler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Crawler{
		fetcher:   fetcher,
		extractor: NewContentExtractor(config.MaxTextPerPage),
		config:    config,
		logger:    logger,
	}
}

// Crawl walks the seed's host depth-first and returns one Document per page
// that was fetched successfully. Failed fetches are skipped, so a seed that
// cannot be fetched yields an empty slice and a nil error.
func (c *Crawler) Crawl(ctx context.Context, seedURL string) ([]Document, error) {
	seed, err := ParseSeed(seedURL)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { metrics.CrawlDuration.Observe(time.Since(start).Seconds()) }()

	logger := c.logger.With(zap.String("seed", seed.String()))
	tracker := NewVisitTracker(c.config.MaxPages)
	stack := []CrawlTarget{{URL: seed, Depth: 0}}

	var (
		docs   []Document
		failed int
	)
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if tracker.Exhausted() {
			break
		}

		target := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if target.Depth > c.config.MaxDepth {
			continue
		}
		key := target.URL.String()
		if !tracker.Visit(key) {
			continue
		}

		page, err := c.fetcher.Fetch(ctx, key)
		if err != nil {
			failed++
			metrics.CrawlPagesTotal.WithLabelValues("failed").Inc()
			logger.Debug("fetch failed",
				zap.String("url", key),
				zap.Int("depth", target.Depth),
				zap.Error(err))
			continue
		}

		text, links, err := c.extractor.Extract(page.Body, target.URL)
		if err != nil {
			failed++
			metrics.CrawlPagesTotal.WithLabelValues("failed").Inc()
			logger.Debug("extraction failed", zap.String("url", key), zap.Error(err))
			continue
		}
		metrics.CrawlPagesTotal.WithLabelValues("ok").Inc()

		docs = append(docs, Document{
			Content:   text,
			SourceURL: key,
			Depth:     target.Depth,
		})
		logger.Debug("page crawled",
			zap.String("url", key),
			zap.Int("depth", target.Depth),
			zap.Int("text_length", len(text)),
			zap.Int("links", len(links)))

		if target.Depth >= c.config.MaxDepth {
			continue
		}
		// Reverse push keeps the first link on top of the stack.
		for i := len(links) - 1; i >= 0; i-- {
			link := links[i]
			if link.Host != seed.Host || tracker.IsVisited(link.String()) {
				continue
			}
			stack = append(stack, CrawlTarget{URL: link, Depth: target.Depth + 1})
		}
	}

	logger.Info("crawl completed",
		zap.Int("pages", len(docs)),
		zap.Int("visited", tracker.Count()),
		zap.Int("failed", failed),
		zap.Duration("elapsed", time.Since(start)))

	return docs, nil
}

// ParseSeed validates and normalizes a seed URL.
func ParseSeed(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return normalizeURL(u), nil
}
