package llm

import "context"

// Client is the generative text service: prompt in, text out.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Close() error
	ModelName() string
}
