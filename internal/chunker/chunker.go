// Package chunker splits records into overlapping windows of text.
package chunker

import (
	"strings"

	"analytics-rag/internal/models"
)

const (
	DefaultChunkSize    = 2000 // runes
	DefaultChunkOverlap = 200  // runes
)

type Chunker struct {
	size    int
	overlap int
}

type Option func(*Chunker)

func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

func New(opts ...Option) *Chunker {
	c := &Chunker{
		size:    DefaultChunkSize,
		overlap: DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.size {
		c.overlap = c.size / 4
	}
	return c
}

// Chunk splits every record and returns the chunks in input order. Each chunk
// carries a copy of its parent's metadata. Blank records produce nothing.
func (c *Chunker) Chunk(records []models.Record) []models.Record {
	var chunks []models.Record
	for _, r := range records {
		for _, text := range c.Split(r.Content) {
			chunks = append(chunks, models.Record{
				Content:  text,
				Metadata: r.CloneMetadata(),
			})
		}
	}
	return chunks
}

// Split cuts content into windows of at most size runes. Consecutive windows
// share overlap runes, so together they cover the whole input.
func (c *Chunker) Split(content string) []string {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	runes := []rune(content)
	total := len(runes)
	if total <= c.size {
		return []string{content}
	}

	var chunks []string
	start := 0
	for start < total {
		end := min(start+c.size, total)
		if end < total {
			end = c.breakPoint(runes, start, end)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == total {
			break
		}
		start = end - c.overlap
	}
	return chunks
}

// breakPoint picks the end of a window. It prefers a paragraph break, then a
// line or sentence end, then a space, searching only the back part of the
// window so that the next start still moves forward. Falls back to a hard cut.
func (c *Chunker) breakPoint(runes []rune, start, end int) int {
	floor := start + max(c.overlap+1, c.size/2)
	if floor >= end {
		return end
	}

	for _, isBreak := range []func(p int) bool{
		func(p int) bool { return p >= 2 && runes[p-1] == '\n' && runes[p-2] == '\n' },
		func(p int) bool {
			if runes[p-1] == '\n' {
				return true
			}
			return p >= 2 && runes[p-1] == ' ' && strings.ContainsRune(".!?", runes[p-2])
		},
		func(p int) bool { return runes[p-1] == ' ' || runes[p-1] == '\t' },
	} {
		for p := end; p > floor; p-- {
			if isBreak(p) {
				return p
			}
		}
	}
	return end
}
