// Package vectorindex defines the vector index contract shared by the
// pinecone, chromem and pgvector backends.
package vectorindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Entry is a record ready to be written to the index. The backend embeds
// Content with its configured embedder.
type Entry struct {
	ID       string
	Content  string
	Metadata map[string]any
}

// Match is a search hit with its similarity score (higher is closer).
type Match struct {
	ID       string
	Content  string
	Metadata map[string]any
	Score    float32
}

// IndexSpec describes an index to create when it does not exist.
type IndexSpec struct {
	Name      string
	Dimension int
	Metric    string
	Cloud     string
	Region    string
}

type Store interface {
	// EnsureIndex creates the index when it is missing.
	EnsureIndex(ctx context.Context, spec IndexSpec) error
	ListIndexes(ctx context.Context) ([]string, error)
	// DeleteIndex reports whether an index was deleted. A missing index is not an error.
	DeleteIndex(ctx context.Context, name string) (bool, error)
	Upsert(ctx context.Context, entries []Entry) error
	// SimilaritySearch returns at most k matches scoring at least threshold, best first.
	SimilaritySearch(ctx context.Context, query string, k int, threshold float32) ([]Match, error)
}

type ErrorKind int

const (
	KindPermanent ErrorKind = iota
	KindTransient
	KindOversized
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindOversized:
		return "oversized"
	default:
		return "permanent"
	}
}

// UpsertError is returned by Store.Upsert with the failure classified.
type UpsertError struct {
	Kind ErrorKind
	Err  error
}

func (e *UpsertError) Error() string {
	return fmt.Sprintf("upsert failed (%s): %v", e.Kind, e.Err)
}

func (e *UpsertError) Unwrap() error {
	return e.Err
}

func NewUpsertError(kind ErrorKind, err error) *UpsertError {
	return &UpsertError{Kind: kind, Err: err}
}

// KindOf returns the kind of an upsert error. Unclassified errors are permanent.
func KindOf(err error) ErrorKind {
	var ue *UpsertError
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return KindPermanent
}

func IsOversized(err error) bool {
	return err != nil && KindOf(err) == KindOversized
}

// PayloadSize estimates the serialized size of a batch in bytes.
func PayloadSize(entries []Entry) int {
	size := 0
	for _, e := range entries {
		size += len(e.ID) + len(e.Content)
		if b, err := json.Marshal(e.Metadata); err == nil {
			size += len(b)
		}
	}
	return size
}

// CloneMetadata copies m and adds the extra keys.
func CloneMetadata(m map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(m)+len(extra))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
