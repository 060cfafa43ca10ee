package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// nonContentSelector lists the elements dropped before text is collected.
const nonContentSelector = "script, style, nav, footer, header"

type ContentExtractor struct {
	maxTextPerPage int
}

func NewContentExtractor(maxTextPerPage int) *ContentExtractor {
	return &ContentExtractor{maxTextPerPage: maxTextPerPage}
}

// Extract parses an HTML body and returns its visible text and the absolute
// http(s) links it contains. Links are collected before non-content elements
// are removed, so navigation menus still feed the crawl frontier.
func (ce *ContentExtractor) Extract(body []byte, pageURL *url.URL) (string, []*url.URL, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse html: %w", err)
	}

	links := extractLinks(doc, pageURL)

	doc.Find(nonContentSelector).Remove()
	text := collapseWhitespace(visibleText(doc.Nodes))

	return ce.truncate(text), links, nil
}

// truncate cuts text to maxTextPerPage runes. It runs after whitespace is
// collapsed, so the limit counts normalized characters.
func (ce *ContentExtractor) truncate(text string) string {
	if ce.maxTextPerPage <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= ce.maxTextPerPage {
		return text
	}
	return strings.TrimSpace(string(runes[:ce.maxTextPerPage]))
}

func extractLinks(doc *goquery.Document, pageURL *url.URL) []*url.URL {
	var links []*url.URL
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u, err := pageURL.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return
		}
		links = append(links, normalizeURL(u))
	})
	return links
}

// visibleText joins every text node under roots with a single space.
func visibleText(roots []*html.Node) string {
	var b strings.Builder
	stack := make([]*html.Node, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, roots[i])
	}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
			continue
		}
		for c := n.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, c)
		}
	}
	return b.String()
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// normalizeURL returns a copy of u without its fragment; the result's String()
// is the visited-set key.
func normalizeURL(u *url.URL) *url.URL {
	n := *u
	n.Fragment = ""
	n.RawFragment = ""
	return &n
}
