package ingest

import (
	"context"

	"github.com/rs/zerolog/log"

	"analytics-rag/internal/chunker"
	"analytics-rag/internal/config"
	"analytics-rag/internal/models"
	"analytics-rag/internal/parser"
	"analytics-rag/internal/vectorindex"
)

// Pipeline parses uploads, chunks them and writes them to the index.
type Pipeline struct {
	store   vectorindex.Store
	chunker *chunker.Chunker
	engine  *Engine
	spec    vectorindex.IndexSpec
}

func NewPipeline(store vectorindex.Store, cfg *config.Config, opts ...EngineOption) *Pipeline {
	return &Pipeline{
		store: store,
		chunker: chunker.New(
			chunker.WithChunkSize(cfg.Ingestion.ChunkSize),
			chunker.WithOverlap(cfg.Ingestion.ChunkOverlap),
		),
		engine: NewEngine(store, cfg.Ingestion, opts...),
		spec: vectorindex.IndexSpec{
			Name:      cfg.VectorDB.IndexName,
			Dimension: cfg.VectorDB.Dimension,
			Metric:    cfg.VectorDB.Metric,
			Cloud:     cfg.VectorDB.Cloud,
			Region:    cfg.VectorDB.Region,
		},
	}
}

// Prepare parses and chunks files without touching the index.
func (p *Pipeline) Prepare(ctx context.Context, files []parser.File) ([]models.Record, error) {
	records, err := parser.Parse(ctx, files)
	if err != nil {
		return nil, &IngestionError{Op: "parse", Err: err}
	}
	chunks := p.chunker.Chunk(records)
	log.Info().Int("records", len(records)).Int("chunks", len(chunks)).Msg("Prepared documents")
	return chunks, nil
}

// Run ingests files end to end. Any error stopping the run is an *IngestionError.
func (p *Pipeline) Run(ctx context.Context, files []parser.File) (*Report, error) {
	chunks, err := p.Prepare(ctx, files)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		log.Warn().Msg("No content to ingest")
		return &Report{}, nil
	}

	if err := p.store.EnsureIndex(ctx, p.spec); err != nil {
		return nil, &IngestionError{Op: "ensure index", Err: err}
	}

	report, err := p.engine.Upsert(ctx, chunks)
	if err != nil {
		return report, &IngestionError{Op: "upsert", Err: err}
	}
	return report, nil
}
