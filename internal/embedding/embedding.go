package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"analytics-rag/internal/config"
)

// ErrDimensionMismatch means the embedder and the index disagree on vector
// size. It is a configuration error and never retried.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// NewEmbedder creates the embedder named by the config
func NewEmbedder(cfg config.EmbeddingConfig) (embeddings.Embedder, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":   cfg.Provider,
		"base_url":   cfg.BaseURL,
		"model_name": cfg.ModelName,
	}).Msg("Creating embedder")

	switch cfg.Provider {
	case config.ProviderOllama:
		llm, err := ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.ModelName),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama: %w", err)
		}
		return embeddings.NewEmbedder(llm)
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.APIKey, "Bearer ")),
			openai.WithEmbeddingModel(cfg.ModelName),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai: %w", err)
		}
		return embeddings.NewEmbedder(llm)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

// EmbedDocuments embeds texts and checks that every vector has dim components.
func EmbedDocuments(ctx context.Context, e embeddings.Embedder, texts []string, dim int) ([][]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	for _, v := range vectors {
		if err := CheckDimension(v, dim); err != nil {
			return nil, err
		}
	}
	return vectors, nil
}

// EmbedQuery embeds a single query and checks its dimension.
func EmbedQuery(ctx context.Context, e embeddings.Embedder, text string, dim int) ([]float32, error) {
	v, err := e.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := CheckDimension(v, dim); err != nil {
		return nil, err
	}
	return v, nil
}

func CheckDimension(v []float32, dim int) error {
	if len(v) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), dim)
	}
	return nil
}
