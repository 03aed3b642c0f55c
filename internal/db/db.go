package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"analytics-rag/internal/config"
	"analytics-rag/internal/embedding"
	"analytics-rag/internal/vectorindex"
)

// Document is a row of an index table. Tables are named after the index, so
// queries set the table with ModelTableExpr.
type Document struct {
	bun.BaseModel `bun:"alias:d"`
	ID            string          `bun:"id,pk"`
	Content       string          `bun:"content,notnull"`
	Metadata      map[string]any  `bun:"metadata,type:jsonb"`
	Embedding     pgvector.Vector `bun:"embedding,type:vector"`
}

type searchRow struct {
	ID       string         `bun:"id"`
	Content  string         `bun:"content"`
	Metadata map[string]any `bun:"metadata,type:jsonb"`
	Score    float32        `bun:"score"`
}

// Store is a vectorindex.Store on Postgres with the pgvector extension.
type Store struct {
	db        *bun.DB
	embedder  embeddings.Embedder
	table     string
	dimension int
}

var _ vectorindex.Store = (*Store)(nil)

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database with the configured driver. Connections are
// established lazily.
func ConnectDB(cfg *config.PostgresConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case config.DriverPq:
		return sql.Open("postgres", cfg.URL)
	case config.DriverPgdriver, "":
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.URL)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	default:
		return nil, fmt.Errorf("unknown postgres driver: %s", cfg.Driver)
	}
}

func NewStore(db *bun.DB, embedder embeddings.Embedder, cfg config.VectorDBConfig) *Store {
	return &Store{
		db:        db,
		embedder:  embedder,
		table:     cfg.IndexName,
		dimension: cfg.Dimension,
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) EnsureIndex(ctx context.Context, spec vectorindex.IndexSpec) error {
	if spec.Metric != "" && spec.Metric != "cosine" {
		return fmt.Errorf("pgvector store only supports cosine similarity, got %s", spec.Metric)
	}
	if spec.Dimension < 1 {
		return fmt.Errorf("invalid dimension %d", spec.Dimension)
	}

	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	if _, err := createTableQuery(s.db, spec).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create table %s: %w", spec.Name, err)
	}
	if _, err := s.db.NewRaw(
		"CREATE INDEX IF NOT EXISTS ? ON ? USING hnsw (embedding vector_cosine_ops)",
		bun.Ident(spec.Name+"_embedding_idx"), bun.Ident(spec.Name),
	).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}

	s.table = spec.Name
	s.dimension = spec.Dimension
	return nil
}

func createTableQuery(db *bun.DB, spec vectorindex.IndexSpec) *bun.RawQuery {
	return db.NewRaw(
		"CREATE TABLE IF NOT EXISTS ? (id text PRIMARY KEY, content text NOT NULL, metadata jsonb, embedding vector(?) NOT NULL)",
		bun.Ident(spec.Name), bun.Safe(strconv.Itoa(spec.Dimension)),
	)
}

// ListIndexes returns the tables of the current schema that carry a vector column.
func (s *Store) ListIndexes(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.NewRaw(`SELECT table_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND column_name = 'embedding' AND udt_name = 'vector'
		ORDER BY table_name`).Scan(ctx, &names)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", err)
	}
	return names, nil
}

func (s *Store) DeleteIndex(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.NewRaw(`SELECT EXISTS (SELECT 1 FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = ?)`, name).Scan(ctx, &exists)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	if !exists {
		return false, nil
	}
	if _, err := s.db.NewRaw("DROP TABLE IF EXISTS ?", bun.Ident(name)).Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to drop table %s: %w", name, err)
	}
	return true, nil
}

func (s *Store) Upsert(ctx context.Context, entries []vectorindex.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.Content
	}
	vectors, err := embedding.EmbedDocuments(ctx, s.embedder, texts, s.dimension)
	if err != nil {
		return fmt.Errorf("failed to embed batch: %w", err)
	}

	docs := make([]Document, len(entries))
	for i, e := range entries {
		docs[i] = Document{
			ID:        e.ID,
			Content:   e.Content,
			Metadata:  e.Metadata,
			Embedding: pgvector.NewVector(vectors[i]),
		}
	}

	if _, err := upsertQuery(s.db, s.table, &docs).Exec(ctx); err != nil {
		return vectorindex.NewUpsertError(classify(err), fmt.Errorf("failed to store documents: %w", err))
	}
	log.Debug().Str("table", s.table).Int("count", len(docs)).Msg("Stored documents")
	return nil
}

func upsertQuery(db *bun.DB, table string, docs *[]Document) *bun.InsertQuery {
	return db.NewInsert().
		Model(docs).
		ModelTableExpr("?", bun.Ident(table)).
		On("CONFLICT (id) DO UPDATE").
		Set("content = EXCLUDED.content").
		Set("metadata = EXCLUDED.metadata").
		Set("embedding = EXCLUDED.embedding")
}

func (s *Store) SimilaritySearch(ctx context.Context, query string, k int, threshold float32) ([]vectorindex.Match, error) {
	if k <= 0 {
		return nil, nil
	}
	queryEmbedding, err := embedding.EmbedQuery(ctx, s.embedder, query, s.dimension)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	vec := pgvector.NewVector(queryEmbedding)

	var rows []searchRow
	err = s.db.NewRaw(`SELECT id, content, metadata, 1 - (embedding <=> ?) AS score FROM ?
		WHERE 1 - (embedding <=> ?) >= ?
		ORDER BY embedding <=> ? LIMIT ?`,
		vec, bun.Ident(s.table), vec, threshold, vec, k,
	).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}

	matches := make([]vectorindex.Match, 0, len(rows))
	for _, r := range rows {
		matches = append(matches, vectorindex.Match{
			ID:       r.ID,
			Content:  r.Content,
			Metadata: r.Metadata,
			Score:    r.Score,
		})
	}
	return matches, nil
}

// classify maps a database error onto an upsert error kind.
func classify(err error) vectorindex.ErrorKind {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return classifySQLState(pgErr.Field('C'))
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifySQLState(string(pqErr.Code))
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, sql.ErrConnDone) {
		return vectorindex.KindTransient
	}
	return vectorindex.KindPermanent
}

func classifySQLState(code string) vectorindex.ErrorKind {
	switch {
	case code == "54000": // program_limit_exceeded
		return vectorindex.KindOversized
	case code == "40001", code == "40P01", code == "57P03", code == "53300":
		return vectorindex.KindTransient
	case strings.HasPrefix(code, "08"):
		return vectorindex.KindTransient
	default:
		return vectorindex.KindPermanent
	}
}
