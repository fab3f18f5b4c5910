// Package lore implements retrieval of lore entries from a vector index and
// the packing of ranked results into bounded, attributed context blocks.
package lore

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/xhad/lore/internal/models"
	"github.com/xhad/lore/internal/types"
)

// State is the lifecycle position of a Repository.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// EmbedderFactory creates the embedding provider. A Repository calls it at
// most once over its lifetime.
type EmbedderFactory func(ctx context.Context) (types.Embedder, error)

// warmer is implemented by embedders that can load their model ahead of the
// first query.
type warmer interface {
	Warm(ctx context.Context) error
}

// Repository converts between lore documents and vector index records and
// turns index distances into relevance scores.
type Repository struct {
	index       types.VectorIndex
	newEmbedder EmbedderFactory
	logger      *zap.Logger

	mu       sync.Mutex
	state    atomic.Int32
	embedder types.Embedder
}

// NewRepository returns an uninitialized repository over index.
func NewRepository(index types.VectorIndex, newEmbedder EmbedderFactory, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{
		index:       index,
		newEmbedder: newEmbedder,
		logger:      logger,
	}
}

// StaticEmbedder adapts an already constructed embedder to an EmbedderFactory.
func StaticEmbedder(e types.Embedder) EmbedderFactory {
	return func(context.Context) (types.Embedder, error) { return e, nil }
}

// Initialize connects the index and creates the embedder. Concurrent callers
// are serialized; once the repository is ready further calls return nil
// immediately. A failed attempt leaves the repository uninitialized.
func (r *Repository) Initialize(ctx context.Context) error {
	if r.State() == StateReady {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() == StateReady {
		return nil
	}

	r.state.Store(int32(StateInitializing))
	if err := r.initialize(ctx); err != nil {
		r.state.Store(int32(StateUninitialized))
		r.logger.Error("lore repository initialization failed", zap.Error(err))
		return err
	}
	r.state.Store(int32(StateReady))
	r.logger.Info("lore repository ready", zap.Int("dimensions", r.embedder.Dimensions()))
	return nil
}

func (r *Repository) initialize(ctx context.Context) error {
	if r.index == nil {
		return fmt.Errorf("lore: no vector index configured")
	}
	if err := r.index.Connect(ctx); err != nil {
		return upstream("connect index", err)
	}

	if r.embedder == nil {
		if r.newEmbedder == nil {
			return fmt.Errorf("lore: no embedder configured")
		}
		e, err := r.newEmbedder(ctx)
		if err != nil {
			return upstream("create embedder", err)
		}
		r.embedder = e
	}

	if w, ok := r.embedder.(warmer); ok {
		if err := w.Warm(ctx); err != nil {
			return upstream("warm embedder", err)
		}
	}
	return nil
}

func (r *Repository) State() State {
	return State(r.state.Load())
}

func (r *Repository) Ready() bool {
	return r.State() == StateReady
}

func (r *Repository) checkReady() error {
	switch r.State() {
	case StateReady:
		return nil
	case StateInitializing:
		return ErrInitializing
	default:
		return ErrNotInitialized
	}
}

// DocumentCount reports the number of stored documents, or 0 when the
// repository is not ready or the index cannot be reached.
func (r *Repository) DocumentCount(ctx context.Context) int {
	if !r.Ready() {
		return 0
	}
	n, err := r.index.Count(ctx)
	if err != nil {
		r.logger.Warn("failed to count documents", zap.Error(err))
		return 0
	}
	return n
}

// AddDocuments embeds each document in turn and writes the batch with one
// upsert. Any embedding failure aborts the batch before it is written.
func (r *Repository) AddDocuments(ctx context.Context, docs []models.Document) error {
	if err := r.checkReady(); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	records := make([]types.Record, 0, len(docs))
	for _, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("lore: document %q has no id", doc.Title)
		}
		if doc.Text == "" {
			return fmt.Errorf("lore: document %s has no text", doc.ID)
		}
		doc.Category = models.NormalizeCategory(string(doc.Category))

		vec, err := r.embedder.Embed(ctx, doc.Text)
		if err != nil {
			return upstream("embed document "+doc.ID, err)
		}
		records = append(records, types.Record{
			ID:       doc.ID,
			Text:     doc.Text,
			Vector:   vec,
			Metadata: doc.Metadata(),
		})
	}

	if err := r.index.Upsert(ctx, records); err != nil {
		return upstream("upsert documents", err)
	}
	r.logger.Debug("stored lore batch", zap.Int("documents", len(records)))
	return nil
}

// Search returns up to limit results for query, nearest first, dropping any
// whose relevance falls below minRelevance. A category other than any
// restricts the search to documents of that category.
func (r *Repository) Search(ctx context.Context, query string, limit int, category models.Category, minRelevance float64) ([]models.Result, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, upstream("embed query", err)
	}

	var filter types.Filter
	if !category.IsAny() {
		filter = types.Filter{models.FieldCategory: string(category)}
	}

	hits, err := r.index.Nearest(ctx, vec, limit, filter)
	if err != nil {
		return nil, upstream("query index", err)
	}

	results := make([]models.Result, 0, len(hits))
	for _, h := range hits {
		relevance := Relevance(h.Distance)
		if relevance < minRelevance {
			continue
		}
		results = append(results, toResult(h.Record, relevance))
	}
	return results, nil
}

// GetByTitle returns the document whose title matches exactly, with
// relevance 1. It does not consult the embedder.
func (r *Repository) GetByTitle(ctx context.Context, title string) (*models.Result, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}
	if title == "" {
		return nil, nil
	}

	rec, err := r.index.GetByField(ctx, models.FieldTitle, title)
	if err != nil {
		return nil, upstream("look up title", err)
	}
	if rec == nil {
		return nil, nil
	}
	res := toResult(*rec, 1.0)
	return &res, nil
}

// Clear drops and recreates the underlying collection.
func (r *Repository) Clear(ctx context.Context) error {
	if err := r.checkReady(); err != nil {
		return err
	}
	if err := r.index.Reset(ctx); err != nil {
		return upstream("reset index", err)
	}
	r.logger.Info("lore collection cleared")
	return nil
}

// Relevance converts a cosine distance into a score in [-1,1], higher is better.
func Relevance(distance float64) float64 {
	return math.Max(-1, math.Min(1, 1-distance))
}

func toResult(rec types.Record, relevance float64) models.Result {
	return models.Result{
		Text:      rec.Text,
		Title:     rec.Metadata[models.FieldTitle],
		Category:  models.Category(rec.Metadata[models.FieldCategory]),
		Relevance: relevance,
		SourceURL: rec.Metadata[models.FieldSourceURL],
	}
}
