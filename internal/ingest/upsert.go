package ingest

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"analytics-rag/internal/config"
	"analytics-rag/internal/embedding"
	"analytics-rag/internal/helper"
	"analytics-rag/internal/models"
	"analytics-rag/internal/vectorindex"
)

// Skip is a record that could not be written.
type Skip struct {
	Index  int    `json:"index"`
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// Report accounts for every record handed to the engine:
// Written + len(Skipped) == Total.
type Report struct {
	Total     int    `json:"total"`
	Written   int    `json:"written"`
	Truncated int    `json:"truncated"`
	Skipped   []Skip `json:"skipped,omitempty"`
}

// Engine writes records to a vector index in fixed-size batches. A batch the
// index rejects as oversized is split into sub-batches, and an oversized
// sub-batch is written one record at a time with long records truncated.
// Other failures skip the records involved.
type Engine struct {
	store        vectorindex.Store
	batchSize    int
	minSubBatch  int
	maxItemChars int
	onProgress   func(done, total int)
}

type EngineOption func(*Engine)

// WithProgress registers a callback run after each batch.
func WithProgress(fn func(done, total int)) EngineOption {
	return func(e *Engine) {
		e.onProgress = fn
	}
}

func NewEngine(store vectorindex.Store, cfg config.IngestionConfig, opts ...EngineOption) *Engine {
	e := &Engine{
		store:        store,
		batchSize:    cfg.BatchSize,
		minSubBatch:  cfg.MinSubBatch,
		maxItemChars: cfg.MaxItemChars,
	}
	if e.batchSize < 1 {
		e.batchSize = 20
	}
	if e.minSubBatch < 1 {
		e.minSubBatch = 5
	}
	if e.maxItemChars < 1 {
		e.maxItemChars = 2000
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type item struct {
	index  int
	record models.Record
}

// Upsert writes records and reports what was written, truncated and skipped.
// It only returns an error for context cancellation or a dimension mismatch.
func (e *Engine) Upsert(ctx context.Context, records []models.Record) (*Report, error) {
	report := &Report{Total: len(records)}
	totalBatches := (len(records) + e.batchSize - 1) / e.batchSize

	for start := 0; start < len(records); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		end := min(start+e.batchSize, len(records))
		batchNumber := start/e.batchSize + 1

		batch := make([]item, 0, end-start)
		for i := start; i < end; i++ {
			batch = append(batch, item{index: i, record: records[i]})
		}

		log.Info().Msgf("Upserting batch %d/%d (%d records)", batchNumber, totalBatches, len(batch))
		if err := e.upsertBatch(ctx, report, batch); err != nil {
			return report, err
		}
		if e.onProgress != nil {
			e.onProgress(report.Written+len(report.Skipped), report.Total)
		}
	}

	log.Info().
		Int("written", report.Written).
		Int("skipped", len(report.Skipped)).
		Int("truncated", report.Truncated).
		Msg("Upsert finished")
	return report, nil
}

func (e *Engine) upsertBatch(ctx context.Context, report *Report, batch []item) error {
	err := e.write(ctx, batch)
	if err == nil {
		report.Written += len(batch)
		return nil
	}
	if isFatal(err) {
		return err
	}
	if !vectorindex.IsOversized(err) {
		e.skip(report, batch, err)
		return nil
	}

	subSize := max(e.minSubBatch, e.batchSize/4)
	log.Warn().Err(err).Msgf("Batch too large, retrying in sub-batches of %d", subSize)

	for start := 0; start < len(batch); start += subSize {
		sub := batch[start:min(start+subSize, len(batch))]
		err := e.write(ctx, sub)
		if err == nil {
			report.Written += len(sub)
			continue
		}
		if isFatal(err) {
			return err
		}
		if !vectorindex.IsOversized(err) {
			e.skip(report, sub, err)
			continue
		}

		log.Warn().Err(err).Msg("Sub-batch too large, writing records one at a time")
		for _, it := range sub {
			if err := e.upsertSingle(ctx, report, it); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) upsertSingle(ctx context.Context, report *Report, it item) error {
	truncated := false
	if utf8.RuneCountInString(it.record.Content) > e.maxItemChars {
		it.record = truncate(it.record, e.maxItemChars)
		truncated = true
		log.Warn().Int("index", it.index).Str("source", it.record.Source()).
			Msgf("Truncated record to %d characters", e.maxItemChars)
	}

	err := e.write(ctx, []item{it})
	if err == nil {
		report.Written++
		if truncated {
			report.Truncated++
		}
		return nil
	}
	if isFatal(err) {
		return err
	}
	e.skip(report, []item{it}, err)
	return nil
}

// write assigns fresh IDs and sends one upsert call.
func (e *Engine) write(ctx context.Context, items []item) error {
	entries := make([]vectorindex.Entry, len(items))
	for i, it := range items {
		id, err := helper.GenerateUUID()
		if err != nil {
			return err
		}
		entries[i] = vectorindex.Entry{
			ID:       id,
			Content:  it.record.Content,
			Metadata: it.record.Metadata,
		}
	}
	return e.store.Upsert(ctx, entries)
}

func (e *Engine) skip(report *Report, items []item, err error) {
	for _, it := range items {
		log.Error().Err(err).Int("index", it.index).Str("source", it.record.Source()).Msg("Skipping record")
		report.Skipped = append(report.Skipped, Skip{
			Index:  it.index,
			Source: it.record.Source(),
			Reason: err.Error(),
		})
	}
}

func truncate(r models.Record, maxChars int) models.Record {
	runes := []rune(r.Content)
	md := r.CloneMetadata()
	md[models.MetaTruncated] = true
	return models.Record{
		Content:  string(runes[:maxChars]) + models.TruncationMarker,
		Metadata: md,
	}
}

func isFatal(err error) bool {
	return errors.Is(err, embedding.ErrDimensionMismatch) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IngestionError is returned by Pipeline.Run for failures that stop a run.
type IngestionError struct {
	Op  string
	Err error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion failed during %s: %v", e.Op, e.Err)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}
