package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	switch c.VectorDB.Backend {
	case BackendPinecone:
		if c.VectorDB.Pinecone.APIKey == "" {
			errors = append(errors, ValidationError{
				Field:   "vector_db.pinecone",
				Message: "PINECONE_API_KEY is required",
			})
		}
	case BackendChromem:
		if c.VectorDB.Chromem.Path == "" && !c.VectorDB.Chromem.InMemory {
			errors = append(errors, ValidationError{
				Field:   "vector_db.chromem.path",
				Message: "path is required unless in_memory is set",
			})
		}
	case BackendPgvector:
		if c.VectorDB.Postgres.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "vector_db.postgres.url",
				Message: "DATABASE_URL is required",
			})
		} else if _, err := url.Parse(c.VectorDB.Postgres.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "vector_db.postgres.url",
				Message: "invalid database URL",
			})
		}
		if c.VectorDB.Postgres.Driver != DriverPgdriver && c.VectorDB.Postgres.Driver != DriverPq {
			errors = append(errors, ValidationError{
				Field:   "vector_db.postgres.driver",
				Message: fmt.Sprintf("unknown driver: %s", c.VectorDB.Postgres.Driver),
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "vector_db.backend",
			Message: fmt.Sprintf("unknown backend: %s", c.VectorDB.Backend),
		})
	}

	if c.VectorDB.Dimension < 1 {
		errors = append(errors, ValidationError{
			Field:   "vector_db.dimension",
			Message: "dimension must be positive",
		})
	}

	if c.Retriever.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "retriever.top_k",
			Message: "top_k must be positive",
		})
	}
	if c.Retriever.ScoreThreshold < 0 || c.Retriever.ScoreThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "retriever.score_threshold",
			Message: "score_threshold must be between 0 and 1",
		})
	}

	switch c.EmbeddingModel.Provider {
	case ProviderOllama:
	case ProviderOpenAI:
		if c.EmbeddingModel.APIKey == "" {
			errors = append(errors, ValidationError{
				Field:   "embedding_model",
				Message: "OPENAI_API_KEY is required",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "embedding_model.provider",
			Message: fmt.Sprintf("unknown provider: %s", c.EmbeddingModel.Provider),
		})
	}

	switch c.LLM.Provider {
	case ProviderOllama:
	case ProviderGroq, ProviderOpenAI:
		if c.LLM.Key == "" {
			errors = append(errors, ValidationError{
				Field:   "llm",
				Message: fmt.Sprintf("API key for %s is required", c.LLM.Provider),
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown provider: %s", c.LLM.Provider),
		})
	}
	if c.LLM.RateLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.rate_limit",
			Message: "rate_limit must not be negative",
		})
	}

	if c.Ingestion.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "ingestion.chunk_size",
			Message: "chunk_size must be positive",
		})
	}
	if c.Ingestion.ChunkOverlap < 0 || c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "ingestion.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}
	if c.Ingestion.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "ingestion.batch_size",
			Message: "batch_size must be positive",
		})
	}
	if c.Ingestion.MinSubBatch < 1 {
		errors = append(errors, ValidationError{
			Field:   "ingestion.min_sub_batch",
			Message: "min_sub_batch must be positive",
		})
	}
	if c.Ingestion.MaxItemChars < 1 {
		errors = append(errors, ValidationError{
			Field:   "ingestion.max_item_chars",
			Message: "max_item_chars must be positive",
		})
	}

	return errors
}
