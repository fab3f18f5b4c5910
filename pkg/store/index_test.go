package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/lore/internal/types"
)

func testRecords() []types.Record {
	return []types.Record{
		{ID: "sigmar", Text: "Sigmar Heldenhammer founded the Empire.", Vector: []float32{1, 0, 0},
			Metadata: map[string]string{"title": "Sigmar", "category": "character"}},
		{ID: "altdorf", Text: "Altdorf is the capital of the Empire.", Vector: []float32{0, 1, 0},
			Metadata: map[string]string{"title": "Altdorf", "category": "location"}},
		{ID: "karl-franz", Text: "Karl Franz is the current Emperor.", Vector: []float32{0.9, 0.1, 0},
			Metadata: map[string]string{"title": "Karl Franz", "category": "character"}},
	}
}

// exerciseIndex runs the behaviour every backend must share against a
// freshly connected, empty three-dimensional index.
func exerciseIndex(t *testing.T, idx types.VectorIndex) {
	t.Helper()
	ctx := context.Background()

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, idx.Upsert(ctx, testRecords()))

	n, err = idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	t.Run("nearest orders by distance", func(t *testing.T) {
		hits, err := idx.Nearest(ctx, []float32{1, 0, 0}, 3, nil)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, "sigmar", hits[0].ID)
		assert.Equal(t, "karl-franz", hits[1].ID)
		assert.Equal(t, "altdorf", hits[2].ID)
		assert.InDelta(t, 0.0, hits[0].Distance, 1e-6)
		assert.InDelta(t, 1.0, hits[2].Distance, 1e-6)
		assert.Equal(t, "Sigmar", hits[0].Metadata["title"])
	})

	t.Run("nearest respects k", func(t *testing.T) {
		hits, err := idx.Nearest(ctx, []float32{1, 0, 0}, 1, nil)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "sigmar", hits[0].ID)

		hits, err = idx.Nearest(ctx, []float32{1, 0, 0}, 0, nil)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("nearest filters on metadata", func(t *testing.T) {
		hits, err := idx.Nearest(ctx, []float32{1, 0, 0}, 5, types.Filter{"category": "location"})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "altdorf", hits[0].ID)

		hits, err = idx.Nearest(ctx, []float32{1, 0, 0}, 5, types.Filter{"category": "deity"})
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("get by field", func(t *testing.T) {
		r, err := idx.GetByField(ctx, "title", "Altdorf")
		require.NoError(t, err)
		require.NotNil(t, r)
		assert.Equal(t, "altdorf", r.ID)
		assert.Equal(t, "Altdorf is the capital of the Empire.", r.Text)

		r, err = idx.GetByField(ctx, "title", "altdorf")
		require.NoError(t, err)
		assert.Nil(t, r, "lookup is case-sensitive")
	})

	t.Run("upsert replaces by id", func(t *testing.T) {
		updated := testRecords()[1]
		updated.Text = "Altdorf sits on the river Reik."
		require.NoError(t, idx.Upsert(ctx, []types.Record{updated}))

		n, err := idx.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		r, err := idx.GetByField(ctx, "title", "Altdorf")
		require.NoError(t, err)
		require.NotNil(t, r)
		assert.Equal(t, "Altdorf sits on the river Reik.", r.Text)
	})

	t.Run("reset empties the index", func(t *testing.T) {
		require.NoError(t, idx.Reset(ctx))
		n, err := idx.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		hits, err := idx.Nearest(ctx, []float32{1, 0, 0}, 5, nil)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}
