package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendPinecone = "pinecone"
	BackendChromem  = "chromem"
	BackendPgvector = "pgvector"

	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderGroq   = "groq"

	DriverPgdriver = "pgdriver"
	DriverPq       = "pq"
)

type Config struct {
	VectorDB       VectorDBConfig  `yaml:"vector_db"`
	Retriever      RetrieverConfig `yaml:"retriever"`
	EmbeddingModel EmbeddingConfig `yaml:"embedding_model"`
	LLM            LLMConfig       `yaml:"llm"`
	Ingestion      IngestionConfig `yaml:"ingestion"`
}

type VectorDBConfig struct {
	Backend   string         `yaml:"backend"`
	IndexName string         `yaml:"index_name"`
	Dimension int            `yaml:"dimension"`
	Metric    string         `yaml:"metric"`
	Cloud     string         `yaml:"cloud"`
	Region    string         `yaml:"region"`
	Pinecone  PineconeConfig `yaml:"pinecone"`
	Chromem   ChromemConfig  `yaml:"chromem"`
	Postgres  PostgresConfig `yaml:"postgres"`
}

type PineconeConfig struct {
	APIKey          string `yaml:"-"`
	MaxRequestBytes int    `yaml:"max_request_bytes"`
}

type ChromemConfig struct {
	Path          string `yaml:"path"`
	InMemory      bool   `yaml:"in_memory"`
	Compress      bool   `yaml:"compress"`
	MaxBatchBytes int    `yaml:"max_batch_bytes"`
}

type PostgresConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"-"`
	Driver   string `yaml:"driver"`
	Debug    bool   `yaml:"debug"`
}

type RetrieverConfig struct {
	TopK           int     `yaml:"top_k"`
	ScoreThreshold float32 `yaml:"score_threshold"`
}

type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	ModelName string `yaml:"model_name"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"-"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	ModelName   string  `yaml:"model_name"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	RateLimit   float64 `yaml:"rate_limit"`
	Key         string  `yaml:"-"`
}

type IngestionConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	BatchSize    int `yaml:"batch_size"`
	MinSubBatch  int `yaml:"min_sub_batch"`
	MaxItemChars int `yaml:"max_item_chars"`
}

// LoadConfig reads the yaml file at path, then applies .env and environment
// overrides and fills unset values with defaults. An empty path falls back to
// the default locations, and to a pure default config when none exists.
func LoadConfig(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	if path == "" {
		for _, loc := range []string{
			filepath.Join("configs", "config.yaml"),
			"config.yaml",
			"config.yml",
		} {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	cfg := newConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	mergeWithEnv(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// Default returns a config with every default applied and no file or env input.
func Default() *Config {
	cfg := newConfig()
	applyDefaults(cfg)
	return cfg
}

// newConfig presets the settings where zero is a valid choice, so the yaml
// decoder only replaces them when the file sets them.
func newConfig() *Config {
	return &Config{
		Retriever: RetrieverConfig{ScoreThreshold: 0.5},
		Ingestion: IngestionConfig{ChunkOverlap: 200},
	}
}

func applyDefaults(c *Config) {
	if c.VectorDB.Backend == "" {
		c.VectorDB.Backend = BackendPinecone
	}
	if c.VectorDB.IndexName == "" {
		c.VectorDB.IndexName = "analytics-rag"
	}
	if c.VectorDB.Dimension == 0 {
		c.VectorDB.Dimension = 384
	}
	if c.VectorDB.Metric == "" {
		c.VectorDB.Metric = "cosine"
	}
	if c.VectorDB.Cloud == "" {
		c.VectorDB.Cloud = "aws"
	}
	if c.VectorDB.Region == "" {
		c.VectorDB.Region = "us-east-1"
	}
	if c.VectorDB.Pinecone.MaxRequestBytes == 0 {
		c.VectorDB.Pinecone.MaxRequestBytes = 2 << 20
	}
	if c.VectorDB.Chromem.Path == "" {
		c.VectorDB.Chromem.Path = "./chromemdb"
	}
	if c.VectorDB.Postgres.Driver == "" {
		c.VectorDB.Postgres.Driver = DriverPgdriver
	}

	if c.Retriever.TopK == 0 {
		c.Retriever.TopK = 5
	}

	if c.EmbeddingModel.Provider == "" {
		c.EmbeddingModel.Provider = ProviderOllama
	}
	if c.EmbeddingModel.ModelName == "" {
		c.EmbeddingModel.ModelName = "all-minilm"
	}
	if c.EmbeddingModel.BaseURL == "" && c.EmbeddingModel.Provider == ProviderOllama {
		c.EmbeddingModel.BaseURL = "http://localhost:11434"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderGroq
	}
	if c.LLM.ModelName == "" {
		c.LLM.ModelName = "llama-3.1-8b-instant"
	}
	if c.LLM.BaseURL == "" {
		switch c.LLM.Provider {
		case ProviderGroq:
			c.LLM.BaseURL = "https://api.groq.com/openai/v1"
		case ProviderOllama:
			c.LLM.BaseURL = "http://localhost:11434"
		}
	}

	if c.Ingestion.ChunkSize == 0 {
		c.Ingestion.ChunkSize = 2000
	}
	if c.Ingestion.BatchSize == 0 {
		c.Ingestion.BatchSize = 20
	}
	if c.Ingestion.MinSubBatch == 0 {
		c.Ingestion.MinSubBatch = 5
	}
	if c.Ingestion.MaxItemChars == 0 {
		c.Ingestion.MaxItemChars = 2000
	}
}

func mergeWithEnv(c *Config) {
	if key := os.Getenv("PINECONE_API_KEY"); key != "" {
		c.VectorDB.Pinecone.APIKey = key
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		c.VectorDB.Postgres.URL = dbURL
	}
	if pw := os.Getenv("DATABASE_PASSWORD"); pw != "" {
		c.VectorDB.Postgres.Password = pw
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		if c.EmbeddingModel.Provider == "" || c.EmbeddingModel.Provider == ProviderOllama {
			c.EmbeddingModel.BaseURL = baseURL
		}
		if c.LLM.Provider == ProviderOllama {
			c.LLM.BaseURL = baseURL
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.EmbeddingModel.APIKey = key
		if c.LLM.Provider == ProviderOpenAI {
			c.LLM.Key = key
		}
	}
	if key := os.Getenv("GROQ_API_KEY"); key != "" && (c.LLM.Provider == "" || c.LLM.Provider == ProviderGroq) {
		c.LLM.Key = key
	}
}
