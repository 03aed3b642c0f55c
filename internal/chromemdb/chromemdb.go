package chromemdb

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"analytics-rag/internal/config"
	"analytics-rag/internal/embedding"
	"analytics-rag/internal/helper"
	"analytics-rag/internal/vectorindex"
)

// VectorDBManager is a vectorindex.Store backed by an embedded chromem-go
// database. Every index is a collection.
type VectorDBManager struct {
	db            *chromem.DB
	embedder      embeddings.Embedder
	indexName     string
	dimension     int
	compress      bool
	maxBatchBytes int
}

var _ vectorindex.Store = (*VectorDBManager)(nil)

// NewVectorDBManager opens (or creates) the database described by cfg.
func NewVectorDBManager(cfg config.VectorDBConfig, embedder embeddings.Embedder) (*VectorDBManager, error) {
	var db *chromem.DB
	if cfg.Chromem.InMemory {
		db = chromem.NewDB()
	} else {
		if err := helper.CreateFolder(cfg.Chromem.Path); err != nil {
			return nil, err
		}
		var err error
		db, err = chromem.NewPersistentDB(cfg.Chromem.Path, cfg.Chromem.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	return &VectorDBManager{
		db:            db,
		embedder:      embedder,
		indexName:     cfg.IndexName,
		dimension:     cfg.Dimension,
		compress:      cfg.Chromem.Compress,
		maxBatchBytes: cfg.Chromem.MaxBatchBytes,
	}, nil
}

func (m *VectorDBManager) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return embedding.EmbedQuery(ctx, m.embedder, text, m.dimension)
	}
}

func (m *VectorDBManager) EnsureIndex(_ context.Context, spec vectorindex.IndexSpec) error {
	if spec.Metric != "" && spec.Metric != "cosine" {
		return fmt.Errorf("chromem only supports cosine similarity, got %s", spec.Metric)
	}
	if _, err := m.db.GetOrCreateCollection(spec.Name, map[string]string{"dimension": fmt.Sprint(spec.Dimension)}, m.embeddingFunc()); err != nil {
		return fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.indexName = spec.Name
	return nil
}

func (m *VectorDBManager) ListIndexes(_ context.Context) ([]string, error) {
	var names []string
	for name := range m.db.ListCollections() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *VectorDBManager) DeleteIndex(_ context.Context, name string) (bool, error) {
	if m.db.GetCollection(name, nil) == nil {
		return false, nil
	}
	if err := m.db.DeleteCollection(name); err != nil {
		return false, fmt.Errorf("failed to drop collection: %w", err)
	}
	return true, nil
}

func (m *VectorDBManager) collection() (*chromem.Collection, error) {
	c := m.db.GetCollection(m.indexName, m.embeddingFunc())
	if c == nil {
		return nil, fmt.Errorf("collection %s does not exist", m.indexName)
	}
	return c, nil
}

// Upsert embeds the entries and adds them to the collection. Documents with
// an existing ID are replaced.
func (m *VectorDBManager) Upsert(ctx context.Context, entries []vectorindex.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if m.maxBatchBytes > 0 {
		if size := vectorindex.PayloadSize(entries); size > m.maxBatchBytes {
			return vectorindex.NewUpsertError(vectorindex.KindOversized,
				fmt.Errorf("batch of %d bytes exceeds limit of %d", size, m.maxBatchBytes))
		}
	}

	c, err := m.collection()
	if err != nil {
		return vectorindex.NewUpsertError(vectorindex.KindPermanent, err)
	}

	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.Content
	}
	vectors, err := embedding.EmbedDocuments(ctx, m.embedder, texts, m.dimension)
	if err != nil {
		return fmt.Errorf("failed to embed batch: %w", err)
	}

	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		docs[i] = chromem.Document{
			ID:        e.ID,
			Content:   e.Content,
			Metadata:  stringMetadata(e.Metadata),
			Embedding: vectors[i],
		}
	}

	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return vectorindex.NewUpsertError(vectorindex.KindPermanent, fmt.Errorf("failed to add documents: %w", err))
	}
	log.Debug().Str("collection", c.Name).Int("count", len(docs)).Msg("Added documents")
	return nil
}

func (m *VectorDBManager) SimilaritySearch(ctx context.Context, query string, k int, threshold float32) ([]vectorindex.Match, error) {
	if query == "" {
		return nil, fmt.Errorf("query must be provided")
	}
	c, err := m.collection()
	if err != nil {
		return nil, err
	}
	// chromem rejects NResults above the collection size
	n := min(k, c.Count())
	if n <= 0 {
		return nil, nil
	}

	queryEmbedding, err := embedding.EmbedQuery(ctx, m.embedder, query, m.dimension)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := c.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: queryEmbedding,
		NResults:       n,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	var matches []vectorindex.Match
	for _, r := range results {
		if r.Similarity < threshold {
			continue
		}
		md := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			md[k] = v
		}
		matches = append(matches, vectorindex.Match{
			ID:       r.ID,
			Content:  r.Content,
			Metadata: md,
			Score:    r.Similarity,
		})
	}
	return matches, nil
}

// Export writes the current collection to filePath. A non-empty key must be
// 32 bytes and encrypts the file.
func (m *VectorDBManager) Export(filePath, encryptionKey string) error {
	if filePath == "" {
		return fmt.Errorf("file path is required")
	}
	if _, err := m.collection(); err != nil {
		return err
	}
	log.Debug().Str("collection", m.indexName).Str("file", filePath).Bool("compress", m.compress).Msg("Exporting collection")
	if err := m.db.ExportToFile(filePath, m.compress, encryptionKey, m.indexName); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import loads the current collection from a file written by Export.
func (m *VectorDBManager) Import(filePath, encryptionKey string) error {
	if err := m.db.ImportFromFile(filePath, encryptionKey, m.indexName); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	return nil
}

func stringMetadata(md map[string]any) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = fmt.Sprint(v)
	}
	return out
}
