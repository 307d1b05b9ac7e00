package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

const resultPage = `<html><body>
<div class="results">
  <div class="result results_links">
    <a class="result__a" href="https://example.com/one">First Result</a>
    <a class="result__snippet" href="https://example.com/one">Snippet one text.</a>
  </div>
  <div class="result results_links">
    <a class="result__a" href="https://example.com/two">Second Result</a>
    <a class="result__snippet" href="https://example.com/two">Snippet two text.</a>
  </div>
  <div class="result">
    <a class="result__snippet" href="https://example.com/three">No title link here.</a>
  </div>
</div>
</body></html>`

func TestParseSearchResults(t *testing.T) {
	results, err := ParseSearchResults(strings.NewReader(resultPage), 10)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Title != "First Result" {
		t.Errorf("unexpected title %q", results[0].Title)
	}
	if results[0].URL != "https://example.com/one" {
		t.Errorf("unexpected url %q", results[0].URL)
	}
	if results[0].Snippet != "Snippet one text." {
		t.Errorf("unexpected snippet %q", results[0].Snippet)
	}
	if results[1].Title != "Second Result" {
		t.Errorf("unexpected title %q", results[1].Title)
	}
}

func TestParseSearchResultsMaxResults(t *testing.T) {
	results, err := ParseSearchResults(strings.NewReader(resultPage), 1)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}

func TestExtractTextStripsBoilerplate(t *testing.T) {
	page := `<html><head><style>body{color:red}</style><script>var x=1;</script></head>
<body><nav>menu items</nav><p>Gravity   is a   force.</p><footer>copyright</footer></body></html>`

	text, err := ExtractText(strings.NewReader(page))
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if text != "Gravity is a force." {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExtractTextCapsLength(t *testing.T) {
	body := strings.Repeat("word ", 2000)
	text, err := ExtractText(strings.NewReader("<html><body><p>" + body + "</p></body></html>"))
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(text) != maxPageChars+3 {
		t.Fatalf("expected capped length %d, got %d", maxPageChars+3, len(text))
	}
	if !strings.HasSuffix(text, "...") {
		t.Fatalf("capped text should end with ellipsis")
	}
}

func TestFetchPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("missing user agent")
		}
		fmt.Fprint(w, "<html><body><p>Page text here.</p></body></html>")
	}))
	defer srv.Close()

	provider := NewDuckDuckGo(srv.Client(), zap.NewNop())
	text, err := provider.FetchPage(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if text != "Page text here." {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestFetchPageEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><script>only code</script></body></html>")
	}))
	defer srv.Close()

	provider := NewDuckDuckGo(srv.Client(), zap.NewNop())
	if _, err := provider.FetchPage(context.Background(), srv.URL); !errors.Is(err, ErrEmptyPage) {
		t.Fatalf("expected ErrEmptyPage, got %v", err)
	}
}

func TestFetchPageBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	provider := NewDuckDuckGo(srv.Client(), zap.NewNop())
	if _, err := provider.FetchPage(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected error for 403 status")
	}
}

type stubProvider struct {
	pages map[string]string
}

func (s *stubProvider) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	return nil, nil
}

func (s *stubProvider) FetchPage(ctx context.Context, pageURL string) (string, error) {
	content, ok := s.pages[pageURL]
	if !ok {
		return "", errors.New("unreachable")
	}
	return content, nil
}

func TestScrapeAllDropsFailures(t *testing.T) {
	provider := &stubProvider{pages: map[string]string{
		"https://a.example": "text a",
		"https://c.example": "text c",
	}}

	urls := []string{"https://a.example", "https://b.example", "https://c.example"}
	pages := ScrapeAll(context.Background(), provider, urls, 2, time.Second, zap.NewNop())

	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if pages[0].URL != "https://a.example" || pages[1].URL != "https://c.example" {
		t.Fatalf("results out of order: %+v", pages)
	}
	if pages[0].Content != "text a" || pages[1].Content != "text c" {
		t.Fatalf("unexpected content: %+v", pages)
	}
}

func TestScrapeAllEmptyInput(t *testing.T) {
	pages := ScrapeAll(context.Background(), &stubProvider{}, nil, 3, time.Second, zap.NewNop())
	if len(pages) != 0 {
		t.Fatalf("expected no pages, got %d", len(pages))
	}
}
