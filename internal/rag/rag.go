package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"analytics-rag/internal/config"
	"analytics-rag/internal/models"
	"analytics-rag/internal/vectorindex"
)

const (
	candidateMultiplier = 6
	thresholdRelaxation = 0.4
	minThreshold        = 0.01
	defaultScore        = 1.0
)

type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Scorer rates how relevant content is to a question. It never fails.
type Scorer interface {
	Score(ctx context.Context, question, content string) float64
}

// LLMScorer asks a model for a 1 to 10 relevance score.
type LLMScorer struct {
	completer Completer
	limiter   *rate.Limiter
}

// NewLLMScorer paces calls to requestsPerSecond. Zero means no pacing.
func NewLLMScorer(completer Completer, requestsPerSecond float64) *LLMScorer {
	s := &LLMScorer{completer: completer}
	if requestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return s
}

func (s *LLMScorer) Score(ctx context.Context, question, content string) float64 {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			log.Warn().Err(err).Msg("Scoring skipped")
			return defaultScore
		}
	}
	resp, err := s.completer.Complete(ctx, fmt.Sprintf(models.RelevancePromptTemplate, question, content))
	if err != nil {
		log.Warn().Err(err).Msg("Error scoring document")
		return defaultScore
	}
	return parseScore(resp)
}

// parseScore returns the first whitespace separated token that is a number.
func parseScore(resp string) float64 {
	for _, tok := range strings.Fields(resp) {
		v, err := strconv.ParseFloat(tok, 64)
		if err == nil && !math.IsNaN(v) {
			return v
		}
	}
	return defaultScore
}

type Retriever struct {
	store     vectorindex.Store
	scorer    Scorer
	topK      int
	threshold float32
}

func NewRetriever(store vectorindex.Store, scorer Scorer, cfg config.RetrieverConfig) *Retriever {
	return &Retriever{
		store:     store,
		scorer:    scorer,
		topK:      cfg.TopK,
		threshold: cfg.ScoreThreshold,
	}
}

// Retrieve searches with a widened candidate count and a relaxed threshold,
// then reranks the candidates with the scorer.
func (r *Retriever) Retrieve(ctx context.Context, question string) ([]models.QueryResult, error) {
	k := r.topK * candidateMultiplier
	threshold := max(float32(minThreshold), r.threshold-thresholdRelaxation)

	log.Debug().Int("k", k).Float32("threshold", threshold).Msg("Searching index")
	matches, err := r.store.SimilaritySearch(ctx, question, k, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}
	return r.Rerank(ctx, question, matches, k), nil
}

// Rerank scores every match, orders them best first and keeps at most k.
// When the question is about user ids or event types the top result gets a
// note pointing at the CSV data.
func (r *Retriever) Rerank(ctx context.Context, question string, matches []vectorindex.Match, k int) []models.QueryResult {
	results := make([]models.QueryResult, len(matches))
	for i, m := range matches {
		results[i] = models.QueryResult{
			Record:     models.Record{Content: m.Content, Metadata: m.Metadata},
			Similarity: m.Score,
			Relevance:  r.scorer.Score(ctx, question, m.Content),
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Relevance > results[j].Relevance
	})
	if len(results) > k {
		results = results[:k]
	}

	if len(results) > 0 && mentionsCSVKeyword(question) {
		results[0].Content += models.CSVNote
	}
	return results
}

func mentionsCSVKeyword(question string) bool {
	q := strings.ToLower(question)
	for _, kw := range models.CSVKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}
