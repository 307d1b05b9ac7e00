package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIClient implements Client against any OpenAI-compatible chat
// completion endpoint.
type OpenAIClient struct {
	client    *openai.Client
	modelName string
	logger    *zap.Logger
}

// OpenAIConfig for the OpenAI-compatible client. BaseURL is optional and
// allows pointing at proxies or compatible providers.
type OpenAIConfig struct {
	APIKey    string
	ModelName string // Default: "gpt-4o-mini"
	BaseURL   string
}

// NewOpenAI creates a new OpenAI-compatible client.
func NewOpenAI(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if cfg.ModelName == "" {
		cfg.ModelName = "gpt-4o-mini"
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	logger.Info("OpenAI client initialized", zap.String("model", cfg.ModelName))

	return &OpenAIClient{
		client:    openai.NewClientWithConfig(clientCfg),
		modelName: cfg.ModelName,
		logger:    logger,
	}, nil
}

// Close is a no-op; the client holds no persistent connection.
func (c *OpenAIClient) Close() error {
	return nil
}

// ModelName returns the configured model identifier.
func (c *OpenAIClient) ModelName() string {
	return c.modelName
}

// Generate produces text for the given prompt.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from openai")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("blank response from openai")
	}

	return text, nil
}
