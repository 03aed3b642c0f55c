package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analytics-rag/internal/config"
)

type fakeEmbedder struct {
	dim int
	err error
}

func (f fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func (f fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return make([]float32, f.dim), nil
}

func TestEmbedDocumentsDimension(t *testing.T) {
	ctx := context.Background()

	vectors, err := EmbedDocuments(ctx, fakeEmbedder{dim: 384}, []string{"a", "b"}, 384)
	require.NoError(t, err)
	assert.Len(t, vectors, 2)

	_, err = EmbedDocuments(ctx, fakeEmbedder{dim: 768}, []string{"a"}, 384)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = EmbedQuery(ctx, fakeEmbedder{dim: 10}, "q", 384)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	boom := errors.New("boom")
	_, err = EmbedQuery(ctx, fakeEmbedder{err: boom}, "q", 384)
	assert.ErrorIs(t, err, boom)
}

func TestNewEmbedder(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.EmbeddingConfig
		wantErr bool
	}{
		{
			name: "ollama",
			cfg:  config.EmbeddingConfig{Provider: config.ProviderOllama, ModelName: "all-minilm", BaseURL: "http://localhost:11434"},
		},
		{
			name: "openai",
			cfg:  config.EmbeddingConfig{Provider: config.ProviderOpenAI, ModelName: "text-embedding-3-small", APIKey: "sk-test"},
		},
		{
			name:    "unknown",
			cfg:     config.EmbeddingConfig{Provider: "hf"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEmbedder(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, e)
		})
	}
}
