package crawler

import "net/url"

// Document is the normalized text of one fetched page.
type Document struct {
	Content   string `json:"content"`
	SourceURL string `json:"source_url"`
	Depth     int    `json:"depth"`
}

// CrawlTarget is a worklist entry: an absolute URL and its distance from the seed.
type CrawlTarget struct {
	URL   *url.URL
	Depth int
}
