package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analytics-rag/internal/config"
	"analytics-rag/internal/embedding"
	"analytics-rag/internal/models"
	"analytics-rag/internal/vectorindex"
)

// fakeStore fails upserts according to its rules and records every call.
type fakeStore struct {
	maxEntries int    // more entries than this is oversized, 0 disables
	maxChars   int    // any longer content is oversized, 0 disables
	poison     string // content containing it is always oversized
	broken     string // content containing it fails permanently
	fatal      error

	calls    [][]vectorindex.Entry
	stored   []vectorindex.Entry
	spec     vectorindex.IndexSpec
	ensureFn func() error
}

func (s *fakeStore) EnsureIndex(_ context.Context, spec vectorindex.IndexSpec) error {
	s.spec = spec
	if s.ensureFn != nil {
		return s.ensureFn()
	}
	return nil
}

func (s *fakeStore) ListIndexes(context.Context) ([]string, error) { return nil, nil }

func (s *fakeStore) DeleteIndex(context.Context, string) (bool, error) { return false, nil }

func (s *fakeStore) SimilaritySearch(context.Context, string, int, float32) ([]vectorindex.Match, error) {
	return nil, nil
}

func (s *fakeStore) Upsert(_ context.Context, entries []vectorindex.Entry) error {
	s.calls = append(s.calls, entries)
	if s.fatal != nil {
		return s.fatal
	}
	if s.maxEntries > 0 && len(entries) > s.maxEntries {
		return vectorindex.NewUpsertError(vectorindex.KindOversized, errors.New("message length too large"))
	}
	for _, e := range entries {
		if s.broken != "" && strings.Contains(e.Content, s.broken) {
			return vectorindex.NewUpsertError(vectorindex.KindPermanent, errors.New("invalid vector"))
		}
		if (s.poison != "" && strings.Contains(e.Content, s.poison)) ||
			(s.maxChars > 0 && utf8.RuneCountInString(e.Content) > s.maxChars) {
			return vectorindex.NewUpsertError(vectorindex.KindOversized, errors.New("message length too large"))
		}
	}
	s.stored = append(s.stored, entries...)
	return nil
}

func (s *fakeStore) callSizes() []int {
	sizes := make([]int, len(s.calls))
	for i, c := range s.calls {
		sizes[i] = len(c)
	}
	return sizes
}

func makeRecords(n int) []models.Record {
	records := make([]models.Record, n)
	for i := range records {
		records[i] = models.Record{
			Content:  fmt.Sprintf("chunk %d", i),
			Metadata: map[string]any{"source": "events.csv", "row_index": i},
		}
	}
	return records
}

func defaultIngestion() config.IngestionConfig {
	return config.Default().Ingestion
}

func TestUpsertAllFit(t *testing.T) {
	store := &fakeStore{}
	var progress [][2]int
	engine := NewEngine(store, defaultIngestion(), WithProgress(func(done, total int) {
		progress = append(progress, [2]int{done, total})
	}))

	report, err := engine.Upsert(context.Background(), makeRecords(47))
	require.NoError(t, err)

	assert.Equal(t, []int{20, 20, 7}, store.callSizes())
	assert.Equal(t, 47, report.Written)
	assert.Empty(t, report.Skipped)
	assert.Equal(t, [][2]int{{20, 47}, {40, 47}, {47, 47}}, progress)
	assert.Equal(t, "chunk 0", store.stored[0].Content)
	assert.Equal(t, 0, store.stored[0].Metadata["row_index"])
}

func TestUpsertSplitsOversizedBatches(t *testing.T) {
	store := &fakeStore{maxEntries: 5}
	report, err := NewEngine(store, defaultIngestion()).Upsert(context.Background(), makeRecords(47))
	require.NoError(t, err)

	assert.Equal(t, []int{
		20, 5, 5, 5, 5,
		20, 5, 5, 5, 5,
		7, 5, 2,
	}, store.callSizes())
	assert.Equal(t, 47, report.Written)
	assert.Equal(t, 47, report.Total)
	assert.Empty(t, report.Skipped)
}

func TestUpsertFallsBackToSingleRecords(t *testing.T) {
	store := &fakeStore{maxEntries: 1}
	report, err := NewEngine(store, defaultIngestion()).Upsert(context.Background(), makeRecords(7))
	require.NoError(t, err)

	assert.Equal(t, []int{7, 5, 1, 1, 1, 1, 1, 2, 1, 1}, store.callSizes())
	assert.Equal(t, 7, report.Written)
	assert.Zero(t, report.Truncated)
}

func TestUpsertTruncatesLongRecord(t *testing.T) {
	store := &fakeStore{maxChars: 2100}
	long := models.Record{Content: strings.Repeat("é", 5000), Metadata: map[string]any{"source": "big.txt"}}

	report, err := NewEngine(store, defaultIngestion()).Upsert(context.Background(), []models.Record{long})
	require.NoError(t, err)

	require.Len(t, store.stored, 1)
	stored := store.stored[0]
	assert.Equal(t, strings.Repeat("é", 2000)+"... (content truncated)", stored.Content)
	assert.Equal(t, true, stored.Metadata["truncated"])
	assert.Equal(t, 1, report.Written)
	assert.Equal(t, 1, report.Truncated)

	// the caller's record is left alone
	assert.Len(t, long.Metadata, 1)
}

func TestUpsertSkipsRecordsThatNeverFit(t *testing.T) {
	records := makeRecords(12)
	records[3].Content = "poison pill"
	store := &fakeStore{poison: "poison"}

	report, err := NewEngine(store, defaultIngestion()).Upsert(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 11, report.Written)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, 3, report.Skipped[0].Index)
	assert.Equal(t, "events.csv", report.Skipped[0].Source)
	assert.Equal(t, report.Total, report.Written+len(report.Skipped))
}

func TestUpsertSkipsBatchOnOtherErrors(t *testing.T) {
	records := makeRecords(25)
	records[21].Content = "broken row"
	store := &fakeStore{broken: "broken"}

	report, err := NewEngine(store, defaultIngestion()).Upsert(context.Background(), records)
	require.NoError(t, err)

	// no splitting for non-size failures
	assert.Equal(t, []int{20, 5}, store.callSizes())
	assert.Equal(t, 20, report.Written)
	assert.Len(t, report.Skipped, 5)
	assert.Equal(t, report.Total, report.Written+len(report.Skipped))
}

func TestUpsertTransientErrorIsSkipped(t *testing.T) {
	store := &fakeStore{fatal: vectorindex.NewUpsertError(vectorindex.KindTransient, errors.New("503"))}
	report, err := NewEngine(store, defaultIngestion()).Upsert(context.Background(), makeRecords(3))
	require.NoError(t, err)
	assert.Len(t, store.calls, 1)
	assert.Len(t, report.Skipped, 3)
	assert.Contains(t, report.Skipped[0].Reason, "transient")
}

func TestUpsertAbortsOnDimensionMismatch(t *testing.T) {
	store := &fakeStore{fatal: fmt.Errorf("failed to embed batch: %w", embedding.ErrDimensionMismatch)}
	_, err := NewEngine(store, defaultIngestion()).Upsert(context.Background(), makeRecords(45))
	assert.ErrorIs(t, err, embedding.ErrDimensionMismatch)
	assert.Len(t, store.calls, 1)
}

func TestUpsertCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &fakeStore{}
	_, err := NewEngine(store, defaultIngestion()).Upsert(ctx, makeRecords(5))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.calls)
}

func TestUpsertFreshIDsPerAttempt(t *testing.T) {
	store := &fakeStore{maxEntries: 5}
	_, err := NewEngine(store, defaultIngestion()).Upsert(context.Background(), makeRecords(20))
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, call := range store.calls {
		for _, e := range call {
			_, err := uuid.Parse(e.ID)
			require.NoError(t, err)
			assert.False(t, seen[e.ID], "id reused: %s", e.ID)
			seen[e.ID] = true
		}
	}
	assert.Len(t, seen, 40)
}

func TestUpsertSmallBatchSize(t *testing.T) {
	cfg := defaultIngestion()
	cfg.BatchSize = 8
	store := &fakeStore{maxEntries: 4}

	report, err := NewEngine(store, cfg).Upsert(context.Background(), makeRecords(8))
	require.NoError(t, err)
	// sub-batch size never drops below the minimum
	assert.Equal(t, []int{8, 5, 1, 1, 1, 1, 1, 3}, store.callSizes())
	assert.Equal(t, 8, report.Written)
}

func TestIngestionError(t *testing.T) {
	base := errors.New("disk gone")
	err := error(&IngestionError{Op: "parse", Err: base})
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "ingestion failed during parse: disk gone", err.Error())
}
