package types

import (
	"context"
)

// Core interfaces

// Embedder turns text into a fixed-length vector. Implementations must be
// deterministic for identical input within one model version.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Record is what the vector index persists: one vector plus the text and
// flat metadata it was computed from.
type Record struct {
	ID       string
	Text     string
	Vector   []float32
	Metadata map[string]string
}

// Hit is a nearest-neighbour match. Distance is cosine distance in [0,2].
type Hit struct {
	Record
	Distance float64
}

// Filter is a set of exact-equality constraints on metadata fields.
type Filter map[string]string

// VectorIndex stores records and answers nearest-neighbour queries.
type VectorIndex interface {
	// Connect prepares the collection. Calling it twice is harmless.
	Connect(ctx context.Context) error
	// Upsert writes the batch atomically, replacing records with equal IDs.
	Upsert(ctx context.Context, records []Record) error
	// Nearest returns up to k hits ordered nearest first.
	Nearest(ctx context.Context, vector []float32, k int, filter Filter) ([]Hit, error)
	// GetByField returns the first record whose metadata field equals value,
	// or nil when there is none.
	GetByField(ctx context.Context, field, value string) (*Record, error)
	Count(ctx context.Context) (int, error)
	// Reset drops and recreates the collection.
	Reset(ctx context.Context) error
	Close()
}
