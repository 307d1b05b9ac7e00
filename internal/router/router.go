// Package router implements the serving path: per request it retrieves
// and scrapes web content, reads the quality gate and answers with either
// the local model or the external generative service. Every served
// request feeds the corpus.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rszirpe/reaserch-ai/internal/gate"
	"github.com/rszirpe/reaserch-ai/internal/llm"
	"github.com/rszirpe/reaserch-ai/internal/repository"
	"github.com/rszirpe/reaserch-ai/internal/vocab"
	"github.com/rszirpe/reaserch-ai/internal/web"
)

var (
	// ErrNoResults is returned when the search produced nothing.
	ErrNoResults = errors.New("no search results found")
	// ErrNoContent is returned when every page fetch failed.
	ErrNoContent = errors.New("could not scrape any websites")
)

// Generator is the local model as the router consumes it.
type Generator interface {
	Generate(src []int, maxLength int) []int
}

// Config for the serving path.
type Config struct {
	MaxResults   int
	Workers      int
	FetchTimeout time.Duration
	MaxSourceLen int
	MaxGenTokens int
}

// Source is one (title, url) pair returned to the caller.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Answer is the full serving result.
type Answer struct {
	Answer          string   `json:"answer"`
	Sources         []Source `json:"sources"`
	ScrapedCount    int      `json:"scraped_count"`
	ModelStatus     string   `json:"model_status"`
	UsingLocalModel bool     `json:"using_local_model"`
}

// Router decides, per request, which answer source to trust.
type Router struct {
	provider   web.ContentProvider
	llmClient  llm.Client
	corrector  *llm.Corrector
	gate       *gate.Gate
	store      *repository.CorpusStore
	vocabulary *vocab.Vocabulary
	model      Generator // nil when no usable checkpoint was loaded
	cfg        Config
	logger     *zap.Logger
}

// New creates a router. model may be nil; the external service then
// answers everything regardless of gate state.
func New(provider web.ContentProvider, llmClient llm.Client, qualityGate *gate.Gate, store *repository.CorpusStore, vocabulary *vocab.Vocabulary, model Generator, cfg Config, logger *zap.Logger) *Router {
	return &Router{
		provider:   provider,
		llmClient:  llmClient,
		corrector:  llm.NewCorrector(llmClient, logger),
		gate:       qualityGate,
		store:      store,
		vocabulary: vocabulary,
		model:      model,
		cfg:        cfg,
		logger:     logger,
	}
}

// Ask answers one question end to end.
func (r *Router) Ask(ctx context.Context, question string) (*Answer, error) {
	results, err := r.provider.Search(ctx, question, r.cfg.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if len(results) == 0 {
		return nil, ErrNoResults
	}

	urls := make([]string, len(results))
	for i, res := range results {
		urls[i] = res.URL
	}
	pages := web.ScrapeAll(ctx, r.provider, urls, r.cfg.Workers, r.cfg.FetchTimeout, r.logger)
	if len(pages) == 0 {
		return nil, ErrNoContent
	}

	// The trainer may have rewritten the status file at any point;
	// read it fresh for every request.
	status := r.gate.Current()

	answer := &Answer{
		Sources:      make([]Source, len(results)),
		ScrapedCount: len(pages),
		ModelStatus:  gate.StatusDisplay(status, -1),
	}
	for i, res := range results {
		answer.Sources[i] = Source{Title: res.Title, URL: res.URL}
	}

	contextText := joinedContext(pages)

	if status.UseLocalModel && r.model != nil {
		if local, ok := r.generateLocal(question, contextText); ok {
			answer.UsingLocalModel = true
			answer.Answer = local

			if status.UseGrammarCorrection {
				corrected := r.corrector.Correct(ctx, local)
				answer.Answer = corrected
				r.persist(question, contextText, local, &corrected, 0.8)
			} else {
				r.persist(question, contextText, local, nil, 0.8)
			}
			return answer, nil
		}
		// Local generation yielded nothing usable; fall through to the
		// external service without surfacing the failure.
		r.logger.Warn("Local model produced no usable answer, falling back")
	}

	sources := make([]llm.Source, len(pages))
	for i, p := range pages {
		sources[i] = llm.Source{URL: p.URL, Content: p.Content}
	}

	text, err := r.llmClient.Generate(ctx, llm.BuildAnswerPrompt(question, sources))
	if err != nil {
		// Surfaced inside the answer; the request itself still succeeds.
		r.logger.Error("Generation failed", zap.Error(err))
		answer.Answer = fmt.Sprintf("Error generating answer: %v", err)
		return answer, nil
	}

	answer.Answer = text
	r.persist(question, contextText, text, nil, 1.0)

	return answer, nil
}

// generateLocal runs the local model and reports whether it produced
// usable text.
func (r *Router) generateLocal(question, contextText string) (string, bool) {
	src := r.vocabulary.Encode(question+" "+contextText, r.cfg.MaxSourceLen, true)
	ids := r.model.Generate(src, r.cfg.MaxGenTokens)
	text := strings.TrimSpace(r.vocabulary.Decode(ids, true))
	return text, text != ""
}

// persist appends the served interaction to the corpus. A write failure
// loses this one data point; it never fails the request.
func (r *Router) persist(question, contextText, answer string, corrected *string, quality float64) {
	if _, err := r.store.AddExample(question, contextText, answer, corrected, quality); err != nil {
		r.logger.Error("Failed to persist served example", zap.Error(err))
	}
}

func joinedContext(pages []web.ScrapedPage) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = p.Content
	}
	return strings.Join(parts, " ")
}
