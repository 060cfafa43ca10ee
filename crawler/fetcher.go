package crawler

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/net/proxy"
)

// Page is a successfully fetched response body.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// PageFetcher fetches one URL. Any error means the URL yields no document.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

// CollyFetcher fetches pages through a synchronous colly collector. The
// collector's visited bookkeeping is disabled; the crawler's VisitTracker owns it.
type CollyFetcher struct {
	collector *colly.Collector
}

func NewCollyFetcher(config *CrawlerConfig) (*CollyFetcher, error) {
	c := colly.NewCollector(
		colly.UserAgent(config.UserAgent),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	c.SetRequestTimeout(config.RequestTimeout)

	if config.ProxyURL != "" {
		transport, err := NewTransport(config.ProxyURL)
		if err != nil {
			return nil, err
		}
		c.WithTransport(transport)
	}

	return &CollyFetcher{collector: c}, nil
}

// Fetch performs a GET request. Timeouts, transport errors and non-2xx
// statuses are returned as errors and no body is kept.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Callbacks are registered per collector, so each fetch gets its own clone.
	c := f.collector.Clone()

	var page *Page
	c.OnResponse(func(r *colly.Response) {
		page = &Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       r.Body,
		}
	})

	if err := c.Visit(rawURL); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	if page == nil {
		return nil, fmt.Errorf("fetch %s: no response", rawURL)
	}
	return page, nil
}

// NewTransport builds an HTTP transport that dials through a SOCKS5 proxy.
func NewTransport(proxyURL string) (*http.Transport, error) {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}

	dialer, err := proxy.FromURL(u, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy dialer: %w", err)
	}

	dialContext := func(ctx context.Context, network, addr string) (net.Conn, error) {
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			return cd.DialContext(ctx, network, addr)
		}
		return dialer.Dial(network, addr)
	}

	return &http.Transport{
		DialContext:         dialContext,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
	}, nil
}
