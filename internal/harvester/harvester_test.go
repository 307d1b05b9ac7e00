package harvester

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rszirpe/reaserch-ai/internal/repository"
	"github.com/rszirpe/reaserch-ai/internal/web"
)

type fixedProvider struct {
	results []web.SearchResult
	pages   map[string]string
}

func (f *fixedProvider) Search(ctx context.Context, query string, maxResults int) ([]web.SearchResult, error) {
	if len(f.results) > maxResults {
		return f.results[:maxResults], nil
	}
	return f.results, nil
}

func (f *fixedProvider) FetchPage(ctx context.Context, pageURL string) (string, error) {
	if content, ok := f.pages[pageURL]; ok {
		return content, nil
	}
	return "", web.ErrEmptyPage
}

func testStore(t *testing.T) *repository.CorpusStore {
	t.Helper()
	store, err := repository.NewCorpusStore(filepath.Join(t.TempDir(), "corpus.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLearnOneCycleStoresExample(t *testing.T) {
	provider := &fixedProvider{
		results: []web.SearchResult{{Title: "Gravity", URL: "https://g.example"}},
		pages: map[string]string{
			"https://g.example": "Gravity is a fundamental force. It attracts masses. Newton described it. Einstein refined the picture.",
		},
	}
	store := testStore(t)
	h := New(provider, store, time.Second, zap.NewNop())

	if err := h.LearnOneCycle(context.Background()); err != nil {
		t.Fatalf("learn cycle failed: %v", err)
	}

	total, err := store.TotalExamples()
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected exactly one stored example, got %d", total)
	}

	untrained, err := store.GetUntrained(10)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(untrained) != 1 {
		t.Fatalf("expected one untrained example, got %d", len(untrained))
	}
	ex := untrained[0]
	if ex.Answer == "" {
		t.Errorf("stored answer must not be empty")
	}
	if ex.Context == "" {
		t.Errorf("stored context must not be empty")
	}
	if ex.UsedForTraining {
		t.Errorf("fresh example must not be marked trained")
	}
	if ex.QualityScore != 0.5 {
		t.Errorf("expected harvest quality 0.5, got %f", ex.QualityScore)
	}
}

func TestLearnOneCycleNoContent(t *testing.T) {
	provider := &fixedProvider{
		results: []web.SearchResult{{Title: "Dead", URL: "https://dead.example"}},
		pages:   map[string]string{},
	}
	store := testStore(t)
	h := New(provider, store, time.Second, zap.NewNop())

	if err := h.LearnOneCycle(context.Background()); err == nil {
		t.Fatalf("expected error when nothing is scrapable")
	}
	total, err := store.TotalExamples()
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if total != 0 {
		t.Fatalf("failed cycle must not store anything, got %d rows", total)
	}
}

func TestHarvestTruncatesContext(t *testing.T) {
	long := strings.Repeat("a", 4000)
	provider := &fixedProvider{
		results: []web.SearchResult{
			{Title: "One", URL: "https://one.example"},
			{Title: "Two", URL: "https://two.example"},
			{Title: "Three", URL: "https://three.example"},
		},
		pages: map[string]string{
			"https://one.example":   long,
			"https://two.example":   long,
			"https://three.example": long,
		},
	}
	h := New(provider, testStore(t), time.Second, zap.NewNop())

	text, err := h.Harvest(context.Background(), "anything")
	if err != nil {
		t.Fatalf("harvest failed: %v", err)
	}
	if len(text) > 5000 {
		t.Fatalf("context exceeds cap: %d chars", len(text))
	}
}

func TestNextQuestionUsesTemplates(t *testing.T) {
	h := New(&fixedProvider{}, testStore(t), time.Second, zap.NewNop())
	for i := 0; i < 20; i++ {
		question, topic := h.NextQuestion()
		if topic == "" {
			t.Fatalf("empty topic")
		}
		if !strings.Contains(question, topic) {
			t.Fatalf("question %q does not mention topic %q", question, topic)
		}
	}
}

func TestDraftAnswer(t *testing.T) {
	got := DraftAnswer("First sentence. Second sentence. Third sentence. Fourth sentence.")
	if got != "First sentence. Second sentence. Third sentence." {
		t.Fatalf("unexpected draft %q", got)
	}

	long := strings.TrimSuffix(strings.Repeat("word ", 300), " ")
	capped := DraftAnswer(long)
	if words := strings.Fields(strings.TrimSuffix(capped, "...")); len(words) > 200 {
		t.Fatalf("draft exceeds word cap: %d words", len(words))
	}
	if !strings.HasSuffix(capped, "...") {
		t.Fatalf("capped draft should end with ellipsis")
	}
}
