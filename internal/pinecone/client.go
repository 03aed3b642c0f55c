// Package pinecone is a vectorindex.Store over Pinecone serverless indexes.
package pinecone

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"analytics-rag/internal/config"
	"analytics-rag/internal/embedding"
	"analytics-rag/internal/vectorindex"
)

const (
	// ContentKey holds the chunk text in vector metadata.
	ContentKey     = "_content"
	maxReadyChecks = 120
)

type indexInfo struct {
	Name      string
	Dimension int
	Host      string
	Ready     bool
}

// controlPlane is the index management surface of the Pinecone API.
type controlPlane interface {
	list(ctx context.Context) ([]indexInfo, error)
	describe(ctx context.Context, name string) (indexInfo, error)
	create(ctx context.Context, spec vectorindex.IndexSpec) error
	remove(ctx context.Context, name string) error
}

// dataPlane reads and writes vectors of the index served at host.
type dataPlane interface {
	upsert(ctx context.Context, host string, vectors []*pinecone.Vector) error
	query(ctx context.Context, host string, values []float32, k int) ([]*pinecone.ScoredVector, error)
}

type Client struct {
	control         controlPlane
	data            dataPlane
	embedder        embeddings.Embedder
	indexName       string
	dimension       int
	maxRequestBytes int
	pollInterval    time.Duration

	// data plane host of indexName, resolved on first use
	host string
}

var _ vectorindex.Store = (*Client)(nil)

type Option func(*Client)

func WithPollInterval(d time.Duration) Option {
	return func(p *Client) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

func New(cfg config.VectorDBConfig, embedder embeddings.Embedder, opts ...Option) (*Client, error) {
	pc, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.Pinecone.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create pinecone client: %w", err)
	}
	sdk := sdkClient{pc: pc}
	return newClient(cfg, embedder, sdk, sdk, opts...), nil
}

func newClient(cfg config.VectorDBConfig, embedder embeddings.Embedder, control controlPlane, data dataPlane, opts ...Option) *Client {
	c := &Client{
		control:         control,
		data:            data,
		embedder:        embedder,
		indexName:       cfg.IndexName,
		dimension:       cfg.Dimension,
		maxRequestBytes: cfg.Pinecone.MaxRequestBytes,
		pollInterval:    time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) lookup(ctx context.Context, name string) (*indexInfo, error) {
	indexes, err := c.control.list(ctx)
	if err != nil {
		return nil, err
	}
	for _, idx := range indexes {
		if idx.Name == name {
			return &idx, nil
		}
	}
	return nil, nil
}

// EnsureIndex creates a serverless index when it does not exist and waits
// until it is ready.
func (c *Client) EnsureIndex(ctx context.Context, spec vectorindex.IndexSpec) error {
	existing, err := c.lookup(ctx, spec.Name)
	if err != nil {
		return fmt.Errorf("failed to look up index %s: %w", spec.Name, err)
	}
	if existing != nil {
		if existing.Dimension != 0 && existing.Dimension != spec.Dimension {
			return fmt.Errorf("%w: index %s has dimension %d, want %d",
				embedding.ErrDimensionMismatch, spec.Name, existing.Dimension, spec.Dimension)
		}
	} else {
		log.Info().Str("index", spec.Name).Int("dimension", spec.Dimension).Msg("Creating index")
		if err := c.control.create(ctx, spec); err != nil {
			return fmt.Errorf("failed to create index %s: %w", spec.Name, err)
		}
	}

	for i := 0; i < maxReadyChecks; i++ {
		idx, err := c.control.describe(ctx, spec.Name)
		if err != nil {
			return fmt.Errorf("failed to describe index %s: %w", spec.Name, err)
		}
		if idx.Ready {
			c.indexName = spec.Name
			c.host = idx.Host
			c.dimension = spec.Dimension
			return nil
		}
		log.Debug().Str("index", spec.Name).Msg("Waiting for index")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
	return fmt.Errorf("index %s not ready after %d checks", spec.Name, maxReadyChecks)
}

func (c *Client) ListIndexes(ctx context.Context) ([]string, error) {
	indexes, err := c.control.list(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", err)
	}
	names := make([]string, 0, len(indexes))
	for _, idx := range indexes {
		names = append(names, idx.Name)
	}
	sort.Strings(names)
	return names, nil
}

func (c *Client) DeleteIndex(ctx context.Context, name string) (bool, error) {
	existing, err := c.lookup(ctx, name)
	if err != nil {
		return false, fmt.Errorf("failed to look up index %s: %w", name, err)
	}
	if existing == nil {
		return false, nil
	}
	if err := c.control.remove(ctx, name); err != nil {
		return false, fmt.Errorf("failed to delete index %s: %w", name, err)
	}
	if name == c.indexName {
		c.host = ""
	}
	return true, nil
}

func (c *Client) resolveHost(ctx context.Context) (string, error) {
	if c.host == "" {
		idx, err := c.control.describe(ctx, c.indexName)
		if err != nil {
			return "", fmt.Errorf("failed to resolve host of index %s: %w", c.indexName, err)
		}
		c.host = idx.Host
	}
	return c.host, nil
}

func (c *Client) Upsert(ctx context.Context, entries []vectorindex.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	metadata := make([]*structpb.Struct, len(entries))
	size := 0
	for i, e := range entries {
		md, err := structpb.NewStruct(toMetadata(e.Metadata, e.Content))
		if err != nil {
			return vectorindex.NewUpsertError(vectorindex.KindPermanent, fmt.Errorf("failed to encode metadata: %w", err))
		}
		metadata[i] = md
		size += len(e.ID) + proto.Size(md) + 4*c.dimension
	}
	if c.maxRequestBytes > 0 && size > c.maxRequestBytes {
		return vectorindex.NewUpsertError(vectorindex.KindOversized,
			fmt.Errorf("message length too large: %d bytes exceeds %d", size, c.maxRequestBytes))
	}

	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.Content
	}
	values, err := embedding.EmbedDocuments(ctx, c.embedder, texts, c.dimension)
	if err != nil {
		return fmt.Errorf("failed to embed batch: %w", err)
	}

	vectors := make([]*pinecone.Vector, len(entries))
	for i, e := range entries {
		vectors[i] = &pinecone.Vector{Id: e.ID, Values: values[i], Metadata: metadata[i]}
	}

	host, err := c.resolveHost(ctx)
	if err != nil {
		return vectorindex.NewUpsertError(classify(err), err)
	}
	if err := c.data.upsert(ctx, host, vectors); err != nil {
		return vectorindex.NewUpsertError(classify(err), err)
	}
	return nil
}

func (c *Client) SimilaritySearch(ctx context.Context, query string, k int, threshold float32) ([]vectorindex.Match, error) {
	if k <= 0 {
		return nil, nil
	}
	values, err := embedding.EmbedQuery(ctx, c.embedder, query, c.dimension)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	host, err := c.resolveHost(ctx)
	if err != nil {
		return nil, err
	}

	scored, err := c.data.query(ctx, host, values, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query index %s: %w", c.indexName, err)
	}

	var matches []vectorindex.Match
	for _, m := range scored {
		if m == nil || m.Vector == nil || m.Score < threshold {
			continue
		}
		md := map[string]any{}
		if m.Vector.Metadata != nil {
			md = m.Vector.Metadata.AsMap()
		}
		content, _ := md[ContentKey].(string)
		delete(md, ContentKey)
		matches = append(matches, vectorindex.Match{
			ID:       m.Vector.Id,
			Content:  content,
			Metadata: md,
			Score:    m.Score,
		})
	}
	return matches, nil
}

// classify maps a failed request onto an upsert error kind. Vector writes
// travel over gRPC, index management over REST.
func classify(err error) vectorindex.ErrorKind {
	msg := strings.ToLower(err.Error())
	oversized := strings.Contains(msg, "message length too large") ||
		strings.Contains(msg, "request size") ||
		strings.Contains(msg, "larger than max")

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted:
			if oversized {
				return vectorindex.KindOversized
			}
			return vectorindex.KindTransient
		case codes.InvalidArgument, codes.OutOfRange:
			if oversized {
				return vectorindex.KindOversized
			}
			return vectorindex.KindPermanent
		case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
			return vectorindex.KindTransient
		default:
			return vectorindex.KindPermanent
		}
	}

	var netErr net.Error
	switch {
	case oversized:
		return vectorindex.KindOversized
	case errors.As(err, &netErr):
		return vectorindex.KindTransient
	case strings.Contains(msg, "429") || strings.Contains(msg, "too many requests"):
		return vectorindex.KindTransient
	default:
		return vectorindex.KindPermanent
	}
}

// toMetadata keeps the values a protobuf Struct accepts and stores the content
// under ContentKey.
func toMetadata(md map[string]any, content string) map[string]any {
	out := make(map[string]any, len(md)+1)
	for k, v := range md {
		switch val := v.(type) {
		case nil:
		case string, bool, int, int32, int64, uint32, uint64, float32, float64:
			out[k] = val
		case []string:
			list := make([]any, len(val))
			for i, s := range val {
				list[i] = s
			}
			out[k] = list
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	if _, taken := md[ContentKey]; taken {
		log.Warn().Str("key", ContentKey).Msg("Metadata key is reserved, value replaced by the content")
	}
	out[ContentKey] = content
	return out
}
