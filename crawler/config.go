package crawler

import (
	"time"
)

type CrawlerConfig struct {
	MaxDepth       int
	MaxPages       int
	MaxTextPerPage int // runes, 0 = unlimited
	RequestTimeout time.Duration
	UserAgent      string
	ProxyURL       string
}

// DefaultConfig returns a default crawler configuration
func DefaultConfig() *CrawlerConfig {
	return &CrawlerConfig{
		MaxDepth:       1,
		MaxPages:       10,
		RequestTimeout: 8 * time.Second,
		UserAgent:      "Mozilla/5.0",
	}
}
