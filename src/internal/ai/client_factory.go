package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/VectorBits/econaudit/src/internal/ai/client"
)

type AIClient interface {
	Analyze(ctx context.Context, prompt string) (string, error)
	GetName() string
	Close() error
}

type AIClientConfig struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
	Proxy    string
}

func NewAIClient(cfg AIClientConfig) (AIClient, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	switch strings.ToLower(cfg.Provider) {
	case "", "stub", "mock":
		return client.NewStubClient(), nil

	case "openai", "gpt4", "chatgpt":
		return client.NewOpenAIClient(client.OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
			Proxy:   cfg.Proxy,
		})

	case "deepseek":
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://api.deepseek.com/v1"
		}
		if cfg.Model == "" {
			cfg.Model = "deepseek-chat"
		}
		return client.NewOpenAIClient(client.OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
			Proxy:   cfg.Proxy,
		})

	case "local-llm", "ollama":
		return client.NewLocalLLMClient(client.LocalLLMConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
			Proxy:   cfg.Proxy,
		})

	default:
		return nil, fmt.Errorf("unsupported AI provider: %s (supported: stub, openai, deepseek, ollama)", cfg.Provider)
	}
}

func ValidateProvider(provider string) error {
	switch strings.ToLower(provider) {
	case "", "stub", "mock", "openai", "gpt4", "chatgpt", "deepseek", "local-llm", "ollama":
		return nil
	}
	return fmt.Errorf("invalid provider '%s', must be one of: stub, openai, deepseek, ollama", provider)
}
