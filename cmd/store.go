package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"analytics-rag/internal/chromemdb"
	"analytics-rag/internal/config"
	"analytics-rag/internal/db"
	"analytics-rag/internal/embedding"
	"analytics-rag/internal/pinecone"
	"analytics-rag/internal/vectorindex"
)

// loadConfig reads and validates the config. Missing LLM settings only
// matter to commands that call the model.
func loadConfig(path string, needLLM bool) (*config.Config, error) {
	cfg, err := readConfig(path)
	if err != nil {
		return nil, err
	}

	var problems []string
	for _, verr := range cfg.Validate() {
		if !needLLM && strings.HasPrefix(verr.Field, "llm") {
			continue
		}
		problems = append(problems, verr.Error())
	}
	if len(problems) > 0 {
		return nil, errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return cfg, nil
}

// readConfig loads the config without validating it. A missing default
// config file falls back to the built-in defaults.
func readConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil && path == defaultConfigPath {
		path = ""
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, nil
}

// newStore builds the vector index backend named by the config. The
// returned func releases its resources.
func newStore(cfg *config.Config) (vectorindex.Store, func(), error) {
	embedder, err := embedding.NewEmbedder(cfg.EmbeddingModel)
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing embedder: %w", err)
	}

	log.Debug().Str("backend", cfg.VectorDB.Backend).Str("index", cfg.VectorDB.IndexName).Msg("Opening vector index")
	switch cfg.VectorDB.Backend {
	case config.BackendPinecone:
		c, err := pinecone.New(cfg.VectorDB, embedder)
		if err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil
	case config.BackendChromem:
		m, err := chromemdb.NewVectorDBManager(cfg.VectorDB, embedder)
		if err != nil {
			return nil, nil, err
		}
		return m, func() {}, nil
	case config.BackendPgvector:
		sqldb, err := db.ConnectDB(&cfg.VectorDB.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("error connecting to database: %w", err)
		}
		s := db.NewStore(db.NewDB(sqldb, cfg.VectorDB.Postgres.Debug), embedder, cfg.VectorDB)
		return s, func() {
			if err := s.Close(); err != nil {
				log.Warn().Err(err).Msg("Error closing database")
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown vector db backend: %s", cfg.VectorDB.Backend)
	}
}

func indexSpec(cfg *config.Config) vectorindex.IndexSpec {
	return vectorindex.IndexSpec{
		Name:      cfg.VectorDB.IndexName,
		Dimension: cfg.VectorDB.Dimension,
		Metric:    cfg.VectorDB.Metric,
		Cloud:     cfg.VectorDB.Cloud,
		Region:    cfg.VectorDB.Region,
	}
}
