package llm

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Corrector polishes locally generated answers through the generative
// text service.
type Corrector struct {
	client Client
	logger *zap.Logger
}

// NewCorrector creates a grammar corrector on top of an existing client.
func NewCorrector(client Client, logger *zap.Logger) *Corrector {
	return &Corrector{client: client, logger: logger}
}

// Correct returns a polished version of text, or the original unchanged
// when the service fails. A correction failure is never fatal.
func (c *Corrector) Correct(ctx context.Context, text string) string {
	corrected, err := c.client.Generate(ctx, BuildGrammarPrompt(text))
	if err != nil {
		c.logger.Warn("Grammar correction failed, keeping original", zap.Error(err))
		return text
	}
	return strings.TrimSpace(corrected)
}

// EvaluateGrammar scores how close the original was to the corrected
// version: 1.0 means no corrections were needed. Word-set Jaccard
// similarity; crude, but monotone in the amount of rewriting.
func EvaluateGrammar(original, corrected string) float64 {
	if original == corrected {
		return 1.0
	}

	originalWords := wordSet(original)
	correctedWords := wordSet(corrected)

	var intersection, union int
	for w := range originalWords {
		if correctedWords[w] {
			intersection++
		}
	}
	union = len(originalWords) + len(correctedWords) - intersection
	if union == 0 {
		return 0
	}

	return float64(intersection) / float64(union)
}

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = true
	}
	return set
}
