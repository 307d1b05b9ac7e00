package router

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rszirpe/reaserch-ai/internal/gate"
	"github.com/rszirpe/reaserch-ai/internal/repository"
	"github.com/rszirpe/reaserch-ai/internal/vocab"
	"github.com/rszirpe/reaserch-ai/internal/web"
)

type stubProvider struct {
	results   []web.SearchResult
	pages     map[string]string
	searchErr error
}

func (s *stubProvider) Search(ctx context.Context, query string, maxResults int) ([]web.SearchResult, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.results, nil
}

func (s *stubProvider) FetchPage(ctx context.Context, pageURL string) (string, error) {
	if content, ok := s.pages[pageURL]; ok {
		return content, nil
	}
	return "", web.ErrEmptyPage
}

type stubLLM struct {
	reply string
	err   error
	calls int
}

func (s *stubLLM) Generate(ctx context.Context, prompt string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func (s *stubLLM) Close() error { return nil }

func (s *stubLLM) ModelName() string { return "stub" }

type stubGenerator struct {
	ids []int
}

func (s *stubGenerator) Generate(src []int, maxLength int) []int {
	return s.ids
}

type fixture struct {
	router *Router
	store  *repository.CorpusStore
	gate   *gate.Gate
	vocab  *vocab.Vocabulary
}

func newFixture(t *testing.T, provider web.ContentProvider, client *stubLLM, model Generator) *fixture {
	t.Helper()
	dir := t.TempDir()

	store, err := repository.NewCorpusStore(filepath.Join(dir, "corpus.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	g, err := gate.New(filepath.Join(dir, "status.json"), 0.85, 0.90, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create gate: %v", err)
	}

	v := vocab.New(1000)
	v.Build([]string{
		"gravity is a force that attracts masses",
		"gravity is a force that attracts masses",
	}, 2)

	cfg := Config{
		MaxResults:   3,
		Workers:      2,
		FetchTimeout: time.Second,
		MaxSourceLen: 64,
		MaxGenTokens: 32,
	}
	return &fixture{
		router: New(provider, client, g, store, v, model, cfg, zap.NewNop()),
		store:  store,
		gate:   g,
		vocab:  v,
	}
}

func singleResultProvider() *stubProvider {
	return &stubProvider{
		results: []web.SearchResult{{Title: "Gravity", URL: "https://g.example"}},
		pages:   map[string]string{"https://g.example": "gravity is a force that attracts masses"},
	}
}

func TestAskExternalPath(t *testing.T) {
	client := &stubLLM{reply: "Gravity pulls masses together."}
	f := newFixture(t, singleResultProvider(), client, nil)

	answer, err := f.router.Ask(context.Background(), "what is gravity?")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if answer.Answer != "Gravity pulls masses together." {
		t.Fatalf("unexpected answer %q", answer.Answer)
	}
	if answer.UsingLocalModel {
		t.Errorf("fresh gate must route to the external service")
	}
	if answer.ScrapedCount != 1 {
		t.Errorf("expected 1 scraped page, got %d", answer.ScrapedCount)
	}
	if len(answer.Sources) != 1 || answer.Sources[0].URL != "https://g.example" {
		t.Errorf("unexpected sources %+v", answer.Sources)
	}

	total, err := f.store.TotalExamples()
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if total != 1 {
		t.Fatalf("served request must feed the corpus, got %d rows", total)
	}
	sample, err := f.store.GetUntrained(1)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if sample[0].QualityScore != 1.0 {
		t.Errorf("external answers store quality 1.0, got %f", sample[0].QualityScore)
	}
}

func TestAskNoResults(t *testing.T) {
	f := newFixture(t, &stubProvider{}, &stubLLM{}, nil)
	if _, err := f.router.Ask(context.Background(), "anything"); !errors.Is(err, ErrNoResults) {
		t.Fatalf("expected ErrNoResults, got %v", err)
	}
}

func TestAskNoContent(t *testing.T) {
	provider := &stubProvider{
		results: []web.SearchResult{{Title: "Dead", URL: "https://dead.example"}},
		pages:   map[string]string{},
	}
	f := newFixture(t, provider, &stubLLM{}, nil)
	if _, err := f.router.Ask(context.Background(), "anything"); !errors.Is(err, ErrNoContent) {
		t.Fatalf("expected ErrNoContent, got %v", err)
	}
}

func TestAskLocalPathWithCorrection(t *testing.T) {
	client := &stubLLM{reply: "Gravity is a force."}
	f := newFixture(t, singleResultProvider(), client, nil)

	// Encode a local answer the vocabulary can decode.
	ids := f.vocab.Encode("gravity is a force", 0, true)
	f.router.model = &stubGenerator{ids: ids}

	// Quality past the first threshold only: local model plus polishing.
	if err := f.gate.UpdateMetrics(500, 0.88, 0.5); err != nil {
		t.Fatalf("gate update failed: %v", err)
	}

	answer, err := f.router.Ask(context.Background(), "what is gravity?")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if !answer.UsingLocalModel {
		t.Fatalf("expected the local model to answer")
	}
	if answer.Answer != "Gravity is a force." {
		t.Fatalf("expected the polished answer, got %q", answer.Answer)
	}
	if client.calls != 1 {
		t.Fatalf("polishing should call the external service once, got %d", client.calls)
	}

	sample, err := f.store.GetUntrained(1)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(sample) != 1 {
		t.Fatalf("local answer must feed the corpus")
	}
	if sample[0].CorrectedAnswer == nil || *sample[0].CorrectedAnswer != "Gravity is a force." {
		t.Errorf("corrected answer not stored: %+v", sample[0].CorrectedAnswer)
	}
	if sample[0].QualityScore != 0.8 {
		t.Errorf("local answers store quality 0.8, got %f", sample[0].QualityScore)
	}
}

func TestAskExpertSkipsCorrection(t *testing.T) {
	client := &stubLLM{reply: "unused"}
	f := newFixture(t, singleResultProvider(), client, nil)

	ids := f.vocab.Encode("gravity attracts masses", 0, true)
	f.router.model = &stubGenerator{ids: ids}

	if err := f.gate.UpdateMetrics(2000, 0.95, 0.95); err != nil {
		t.Fatalf("gate update failed: %v", err)
	}

	answer, err := f.router.Ask(context.Background(), "what is gravity?")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if !answer.UsingLocalModel {
		t.Fatalf("expected the local model to answer")
	}
	if answer.Answer != "gravity attracts masses" {
		t.Fatalf("unexpected answer %q", answer.Answer)
	}
	if client.calls != 0 {
		t.Fatalf("expert mode must not call the external service, got %d calls", client.calls)
	}
}

func TestAskLocalEmptyFallsBack(t *testing.T) {
	client := &stubLLM{reply: "External answer."}
	f := newFixture(t, singleResultProvider(), client, nil)

	// Only markers: decodes to the empty string.
	f.router.model = &stubGenerator{ids: []int{vocab.StartID, vocab.EndID}}

	if err := f.gate.UpdateMetrics(500, 0.95, 0.95); err != nil {
		t.Fatalf("gate update failed: %v", err)
	}

	answer, err := f.router.Ask(context.Background(), "what is gravity?")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if answer.Answer != "External answer." {
		t.Fatalf("expected external fallback, got %q", answer.Answer)
	}
	if answer.UsingLocalModel {
		t.Fatalf("fallback answers are not local")
	}

	total, err := f.store.TotalExamples()
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if total != 1 {
		t.Fatalf("fallback must still feed the corpus, got %d rows", total)
	}
}

func TestAskGenerationErrorEmbedded(t *testing.T) {
	client := &stubLLM{err: errors.New("quota exhausted")}
	f := newFixture(t, singleResultProvider(), client, nil)

	answer, err := f.router.Ask(context.Background(), "what is gravity?")
	if err != nil {
		t.Fatalf("generation failure must not fail the request: %v", err)
	}
	if !strings.Contains(answer.Answer, "quota exhausted") {
		t.Fatalf("expected the failure surfaced in the answer, got %q", answer.Answer)
	}

	total, err := f.store.TotalExamples()
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if total != 0 {
		t.Fatalf("failed generations must not feed the corpus, got %d rows", total)
	}
}
