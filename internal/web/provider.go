package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// SearchResult is one ranked search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// ContentProvider retrieves ranked search results and cleaned page text.
type ContentProvider interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
	FetchPage(ctx context.Context, pageURL string) (string, error)
}

// ErrEmptyPage is returned when a fetched page yields no usable text.
var ErrEmptyPage = errors.New("page yielded no usable text")

const (
	searchURL    = "https://html.duckduckgo.com/html/"
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	maxPageChars = 3000
)

// DuckDuckGo implements ContentProvider against the DuckDuckGo HTML
// endpoint, which needs no API key.
type DuckDuckGo struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewDuckDuckGo creates a provider. The client timeout bounds each
// request; per-fetch deadlines come from the caller's context.
func NewDuckDuckGo(client *http.Client, logger *zap.Logger) *DuckDuckGo {
	if client == nil {
		client = http.DefaultClient
	}
	return &DuckDuckGo{httpClient: client, logger: logger}
}

// Search posts the query to the HTML search endpoint and parses the
// result list.
func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, searchURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	results, err := ParseSearchResults(resp.Body, maxResults)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	d.logger.Debug("Search completed",
		zap.String("query", query),
		zap.Int("results", len(results)))

	return results, nil
}

// ParseSearchResults extracts (title, url, snippet) triples from the
// DuckDuckGo HTML result page.
func ParseSearchResults(r io.Reader, maxResults int) ([]SearchResult, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(results) >= maxResults {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "result") {
			if result, ok := parseResultDiv(n); ok {
				results = append(results, result)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return results, nil
}

func parseResultDiv(div *html.Node) (SearchResult, bool) {
	var result SearchResult
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			switch {
			case hasClass(n, "result__a") && result.Title == "":
				result.Title = strings.TrimSpace(nodeText(n))
				result.URL = attr(n, "href")
			case hasClass(n, "result__snippet") && result.Snippet == "":
				result.Snippet = strings.TrimSpace(nodeText(n))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(div)

	return result, result.Title != "" && result.URL != ""
}

// FetchPage downloads a page and reduces it to cleaned, bounded text.
func (d *DuckDuckGo) FetchPage(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create fetch request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch of %s returned status %d", pageURL, resp.StatusCode)
	}

	text, err := ExtractText(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse page: %w", err)
	}
	if text == "" {
		return "", ErrEmptyPage
	}

	return text, nil
}

var skippedTags = map[string]bool{
	"script": true, "style": true, "nav": true, "footer": true, "header": true,
	"noscript": true,
}

// ExtractText strips boilerplate tags, collapses whitespace and caps the
// result at a fixed length.
func ExtractText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	text := strings.Join(strings.Fields(b.String()), " ")
	if len(text) > maxPageChars {
		text = text[:maxPageChars] + "..."
	}
	return text, nil
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
