package llm

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rszirpe/reaserch-ai/internal/config"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// NewClient creates the configured generative text client.
func NewClient(cfg *config.Config, logger *zap.Logger) (Client, error) {
	switch strings.ToLower(cfg.LLM.Provider) {
	case ProviderGemini:
		return NewGemini(GeminiConfig{
			APIKey:     cfg.LLM.APIKey,
			ModelName:  cfg.LLM.ModelName,
			MaxRetries: cfg.LLM.MaxRetries,
			RetryDelay: 2 * time.Second,
		}, logger)
	case ProviderOpenAI:
		return NewOpenAI(OpenAIConfig{
			APIKey:    cfg.LLM.APIKey,
			ModelName: cfg.LLM.ModelName,
			BaseURL:   cfg.LLM.BaseURL,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.LLM.Provider)
	}
}
