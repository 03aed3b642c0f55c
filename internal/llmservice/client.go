package llmservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"analytics-rag/internal/config"
)

// Client sends single prompts to the configured chat model.
type Client struct {
	llm         llms.Model
	temperature float64
}

// NewLLM builds the chat model. Groq is reached through its OpenAI
// compatible endpoint.
func NewLLM(cfg config.LLMConfig) (llms.Model, error) {
	log.Debug().Interface("llmConfig", map[string]string{
		"provider":   cfg.Provider,
		"base_url":   cfg.BaseURL,
		"model_name": cfg.ModelName,
	}).Msg("Creating LLM")

	switch cfg.Provider {
	case config.ProviderGroq, config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.ModelName),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	case config.ProviderOllama:
		return ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.ModelName),
		)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

func NewClient(cfg config.LLMConfig) (*Client, error) {
	llm, err := NewLLM(cfg)
	if err != nil {
		return nil, err
	}
	return NewClientWithModel(llm, cfg.Temperature), nil
}

func NewClientWithModel(llm llms.Model, temperature float64) *Client {
	return &Client{llm: llm, temperature: temperature}
}

// Complete returns the model's answer to a single human prompt.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, llms.WithTemperature(c.temperature))
}
