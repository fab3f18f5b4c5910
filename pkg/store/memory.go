package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xhad/lore/internal/types"
)

// MemoryStore is an in-process vector index using brute-force cosine search.
// It keeps insertion order so equal distances come back deterministically.
type MemoryStore struct {
	dimensions int

	mu      sync.RWMutex
	order   []string
	records map[string]types.Record
}

// NewMemoryStore returns an empty index for vectors of the given width.
func NewMemoryStore(dimensions int) *MemoryStore {
	return &MemoryStore{
		dimensions: dimensions,
		records:    make(map[string]types.Record),
	}
}

func (m *MemoryStore) Connect(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryStore) Upsert(ctx context.Context, records []types.Record) error {
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("store: record without id")
		}
		if m.dimensions > 0 && len(r.Vector) != m.dimensions {
			return fmt.Errorf("store: record %s has %d dimensions, expected %d", r.ID, len(r.Vector), m.dimensions)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if _, exists := m.records[r.ID]; !exists {
			m.order = append(m.order, r.ID)
		}
		m.records[r.ID] = copyRecord(r)
	}
	return nil
}

func (m *MemoryStore) Nearest(ctx context.Context, vector []float32, k int, filter types.Filter) ([]types.Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]types.Hit, 0, len(m.order))
	for _, id := range m.order {
		r := m.records[id]
		if !matches(r.Metadata, filter) {
			continue
		}
		d, err := CosineDistance(vector, r.Vector)
		if err != nil {
			return nil, err
		}
		hits = append(hits, types.Hit{Record: copyRecord(r), Distance: d})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *MemoryStore) GetByField(ctx context.Context, field, value string) (*types.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.order {
		r := m.records[id]
		if v, ok := r.Metadata[field]; ok && v == value {
			out := copyRecord(r)
			return &out, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order), nil
}

func (m *MemoryStore) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = nil
	m.records = make(map[string]types.Record)
	return nil
}

func (m *MemoryStore) Close() {}

func matches(metadata map[string]string, filter types.Filter) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

func copyRecord(r types.Record) types.Record {
	out := types.Record{ID: r.ID, Text: r.Text}
	if r.Vector != nil {
		out.Vector = append([]float32(nil), r.Vector...)
	}
	if r.Metadata != nil {
		out.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

var _ types.VectorIndex = (*MemoryStore)(nil)
