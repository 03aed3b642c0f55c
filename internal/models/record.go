package models

// Record is a unit of text plus its metadata. Parsed documents, CSV rows and
// chunks are all Records.
type Record struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// CloneMetadata returns a shallow copy of the record metadata.
func (r Record) CloneMetadata() map[string]any {
	m := make(map[string]any, len(r.Metadata))
	for k, v := range r.Metadata {
		m[k] = v
	}
	return m
}

// Source returns the metadata "source" value, if any.
func (r Record) Source() string {
	if s, ok := r.Metadata[MetaSource].(string); ok {
		return s
	}
	return ""
}

// QueryResult is a reranked record returned for a question
type QueryResult struct {
	Record
	Similarity float32 `json:"similarity"`
	Relevance  float64 `json:"relevance"`
}
