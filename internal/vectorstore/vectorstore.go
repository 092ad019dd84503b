// Package vectorstore provides the VectorStore contract plus Qdrant and
// in-memory adapters used by the RAG Query Service and the scraper's
// background ingestion path.
package vectorstore

import "context"

// Result is one similarity-search hit.
type Result struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// VectorStore upserts and queries embedding vectors scoped by arbitrary
// string metadata (conversation id, source url, ...).
type VectorStore interface {
	Add(ctx context.Context, id string, vector []float32, metadata map[string]string) error
	Delete(ctx context.Context, id string) error
	Query(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Result, error)
	Dimension() int
	Close() error
}
