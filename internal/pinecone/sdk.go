package pinecone

import (
	"context"

	"github.com/pinecone-io/go-pinecone/pinecone"

	"analytics-rag/internal/vectorindex"
)

// sdkClient serves both planes from the go-pinecone client.
type sdkClient struct {
	pc *pinecone.Client
}

func toIndexInfo(idx *pinecone.Index) indexInfo {
	if idx == nil {
		return indexInfo{}
	}
	info := indexInfo{Name: idx.Name, Dimension: int(idx.Dimension), Host: idx.Host}
	if idx.Status != nil {
		info.Ready = idx.Status.Ready
	}
	return info
}

func (s sdkClient) list(ctx context.Context) ([]indexInfo, error) {
	indexes, err := s.pc.ListIndexes(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]indexInfo, 0, len(indexes))
	for _, idx := range indexes {
		out = append(out, toIndexInfo(idx))
	}
	return out, nil
}

func (s sdkClient) describe(ctx context.Context, name string) (indexInfo, error) {
	idx, err := s.pc.DescribeIndex(ctx, name)
	if err != nil {
		return indexInfo{}, err
	}
	return toIndexInfo(idx), nil
}

func (s sdkClient) create(ctx context.Context, spec vectorindex.IndexSpec) error {
	_, err := s.pc.CreateServerlessIndex(ctx, &pinecone.CreateServerlessIndexRequest{
		Name:      spec.Name,
		Dimension: int32(spec.Dimension),
		Metric:    pinecone.IndexMetric(spec.Metric),
		Cloud:     pinecone.Cloud(spec.Cloud),
		Region:    spec.Region,
	})
	return err
}

func (s sdkClient) remove(ctx context.Context, name string) error {
	return s.pc.DeleteIndex(ctx, name)
}

func (s sdkClient) upsert(ctx context.Context, host string, vectors []*pinecone.Vector) error {
	conn, err := s.pc.IndexWithNamespace(host, "")
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.UpsertVectors(&ctx, vectors)
	return err
}

func (s sdkClient) query(ctx context.Context, host string, values []float32, k int) ([]*pinecone.ScoredVector, error) {
	conn, err := s.pc.IndexWithNamespace(host, "")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	resp, err := conn.QueryByVectorValues(&ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          values,
		TopK:            uint32(k),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, err
	}
	return resp.Matches, nil
}
