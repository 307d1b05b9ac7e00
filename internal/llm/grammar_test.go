package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
)

type fakeClient struct {
	reply string
	err   error
}

func (f *fakeClient) Generate(ctx context.Context, prompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) ModelName() string { return "fake" }

func TestCorrectReturnsPolishedText(t *testing.T) {
	c := NewCorrector(&fakeClient{reply: "  Gravity is a force.\n"}, zap.NewNop())
	got := c.Correct(context.Background(), "gravity is force")
	if got != "Gravity is a force." {
		t.Fatalf("unexpected correction %q", got)
	}
}

func TestCorrectFallsBackOnError(t *testing.T) {
	c := NewCorrector(&fakeClient{err: errors.New("unavailable")}, zap.NewNop())
	got := c.Correct(context.Background(), "original text")
	if got != "original text" {
		t.Fatalf("expected the original back, got %q", got)
	}
}

func TestEvaluateGrammar(t *testing.T) {
	if got := EvaluateGrammar("same text", "same text"); got != 1.0 {
		t.Fatalf("identical texts must score 1.0, got %f", got)
	}
	if got := EvaluateGrammar("alpha beta", "gamma delta"); got != 0 {
		t.Fatalf("disjoint texts must score 0, got %f", got)
	}
	partial := EvaluateGrammar("alpha beta gamma", "alpha beta delta")
	if partial <= 0 || partial >= 1 {
		t.Fatalf("partial overlap must score strictly between 0 and 1, got %f", partial)
	}
}

func TestBuildAnswerPromptIncludesSources(t *testing.T) {
	prompt := BuildAnswerPrompt("what is gravity?", []Source{
		{URL: "https://a.example", Content: "content a"},
		{URL: "https://b.example", Content: "content b"},
	})
	if !strings.Contains(prompt, "what is gravity?") {
		t.Errorf("prompt missing the question")
	}
	if !strings.Contains(prompt, "https://a.example") || !strings.Contains(prompt, "content b") {
		t.Errorf("prompt missing source material")
	}
}

func TestBuildGrammarPromptIncludesText(t *testing.T) {
	prompt := BuildGrammarPrompt("gravity is force")
	if !strings.Contains(prompt, "gravity is force") {
		t.Fatalf("prompt missing the text to correct")
	}
}
