// Package harvester autonomously generates training examples: it
// synthesizes a question, pulls web content for the topic and derives a
// cheap draft answer to seed the corpus before the model can generate
// anything itself.
package harvester

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rszirpe/reaserch-ai/internal/repository"
	"github.com/rszirpe/reaserch-ai/internal/web"
)

// ErrNoContent is returned when no page for the topic yielded usable text.
var ErrNoContent = errors.New("no scrapable content for topic")

var topics = []string{
	// Science
	"photosynthesis", "black holes", "DNA", "evolution", "atoms", "gravity",
	"quantum physics", "chemistry", "astronomy", "biology", "neurons", "cells",
	"molecules", "ecosystems", "fossils", "plate tectonics", "thermodynamics",

	// Technology
	"artificial intelligence", "machine learning", "blockchain", "robotics",
	"internet", "computers", "programming", "databases", "cloud computing",
	"cybersecurity", "5G networks", "IoT", "algorithms", "data science",

	// History
	"World War 2", "Renaissance", "Ancient Egypt", "Roman Empire",
	"Industrial Revolution", "Cold War", "Space Race", "Medieval times",
	"Vikings", "Ancient Greece", "Silk Road", "Colonization",

	// General knowledge
	"climate change", "renewable energy", "medicine", "psychology",
	"economics", "philosophy", "mathematics", "geography", "languages",
	"music theory", "architecture", "painting", "sculpture", "literature",

	// Current
	"cryptocurrency", "electric vehicles", "space exploration", "vaccines",
	"social media", "virtual reality", "quantum computing", "gene editing",
	"3D printing", "drones", "solar panels", "wind turbines", "batteries",
}

var questionTemplates = []string{
	"What is %s?",
	"How does %s work?",
	"Explain %s in simple terms",
	"What are the benefits of %s?",
	"Tell me about %s",
	"What is the history of %s?",
	"Why is %s important?",
	"What are the key facts about %s?",
}

const (
	maxResults      = 3
	perPageChars    = 2000
	maxContextChars = 5000
	harvestQuality  = 0.5
	maxAnswerWords  = 200
	draftSentences  = 3
)

// Harvester drives one autonomous learning cycle at a time.
type Harvester struct {
	provider     web.ContentProvider
	store        *repository.CorpusStore
	fetchTimeout time.Duration
	rng          *rand.Rand
	logger       *zap.Logger
}

// New creates a harvester.
func New(provider web.ContentProvider, store *repository.CorpusStore, fetchTimeout time.Duration, logger *zap.Logger) *Harvester {
	return &Harvester{
		provider:     provider,
		store:        store,
		fetchTimeout: fetchTimeout,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:       logger,
	}
}

// NextQuestion picks a topic and a template independently at random.
// Repeats are expected; they reinforce existing knowledge.
func (h *Harvester) NextQuestion() (question, topic string) {
	topic = topics[h.rng.Intn(len(topics))]
	template := questionTemplates[h.rng.Intn(len(questionTemplates))]
	return fmt.Sprintf(template, topic), topic
}

// Harvest searches for the topic and concatenates truncated text from the
// top results. Individual page failures are swallowed; ErrNoContent is
// returned only when nothing at all was scrapable.
func (h *Harvester) Harvest(ctx context.Context, topic string) (string, error) {
	results, err := h.provider.Search(ctx, topic, maxResults)
	if err != nil {
		return "", fmt.Errorf("search for topic failed: %w", err)
	}

	var b strings.Builder
	for _, result := range results {
		fetchCtx, cancel := context.WithTimeout(ctx, h.fetchTimeout)
		content, err := h.provider.FetchPage(fetchCtx, result.URL)
		cancel()
		if err != nil {
			h.logger.Debug("Harvest fetch failed",
				zap.String("url", result.URL),
				zap.Error(err))
			continue
		}
		if len(content) > perPageChars {
			content = content[:perPageChars]
		}
		b.WriteString(content)
		b.WriteByte(' ')
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrNoContent
	}
	if len(text) > maxContextChars {
		text = text[:maxContextChars]
	}
	return text, nil
}

// DraftAnswer derives a deliberately cheap answer from the context: the
// first few sentences, capped in length. It exists only to seed the
// corpus; quality comes later from training and polishing.
func DraftAnswer(context string) string {
	sentences := strings.SplitN(context, ".", draftSentences+1)
	if len(sentences) > draftSentences {
		sentences = sentences[:draftSentences]
	}
	for i, s := range sentences {
		sentences[i] = strings.TrimSpace(s)
	}
	answer := strings.TrimSpace(strings.Join(sentences, ". "))
	if answer != "" && !strings.HasSuffix(answer, ".") {
		answer += "."
	}

	words := strings.Fields(answer)
	if len(words) > maxAnswerWords {
		answer = strings.Join(words[:maxAnswerWords], " ") + "..."
	}
	return answer
}

// LearnOneCycle generates a question, harvests context for its topic and
// stores one new training example with a low fixed quality score.
func (h *Harvester) LearnOneCycle(ctx context.Context) error {
	question, topic := h.NextQuestion()

	h.logger.Info("Harvesting", zap.String("question", question), zap.String("topic", topic))

	content, err := h.Harvest(ctx, topic)
	if err != nil {
		return fmt.Errorf("harvest of %q failed: %w", topic, err)
	}

	answer := DraftAnswer(content)
	if answer == "" {
		return ErrNoContent
	}

	id, err := h.store.AddExample(question, content, answer, nil, harvestQuality)
	if err != nil {
		return fmt.Errorf("failed to store harvested example: %w", err)
	}

	h.logger.Info("Harvested example stored",
		zap.Int64("id", id),
		zap.String("topic", topic),
		zap.Int("context_len", len(content)))

	return nil
}
