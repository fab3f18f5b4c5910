package lore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/lore/internal/models"
	"github.com/xhad/lore/internal/types"
	"github.com/xhad/lore/pkg/store"
)

func TestRepositoryNotInitialized(t *testing.T) {
	repo := NewRepository(store.NewMemoryStore(3), StaticEmbedder(newStubEmbedder()), nil)
	ctx := context.Background()

	assert.Equal(t, StateUninitialized, repo.State())
	assert.Equal(t, 0, repo.DocumentCount(ctx))

	_, err := repo.Search(ctx, "anything", 5, models.CategoryAny, 0.3)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = repo.GetByTitle(ctx, "Sigmar")
	assert.ErrorIs(t, err, ErrNotInitialized)

	err = repo.AddDocuments(ctx, testDocuments())
	assert.ErrorIs(t, err, ErrNotInitialized)

	assert.ErrorIs(t, repo.Clear(ctx), ErrNotInitialized)
}

func TestRepositoryFailsFastWhileInitializing(t *testing.T) {
	release := make(chan struct{})
	factory := func(ctx context.Context) (types.Embedder, error) {
		<-release
		return newStubEmbedder(), nil
	}
	repo := NewRepository(store.NewMemoryStore(3), factory, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- repo.Initialize(ctx) }()

	require.Eventually(t, func() bool { return repo.State() == StateInitializing }, time.Second, time.Millisecond)

	_, err := repo.Search(ctx, "anything", 5, models.CategoryAny, 0.3)
	assert.ErrorIs(t, err, ErrInitializing)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, 0, repo.DocumentCount(ctx))

	close(release)
	require.NoError(t, <-done)
	assert.True(t, repo.Ready())
}

func TestRepositoryInitializeCreatesEmbedderOnce(t *testing.T) {
	var created atomic.Int32
	factory := func(ctx context.Context) (types.Embedder, error) {
		created.Add(1)
		time.Sleep(5 * time.Millisecond)
		return newStubEmbedder(), nil
	}
	repo := NewRepository(store.NewMemoryStore(3), factory, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.Initialize(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.True(t, repo.Ready())

	require.NoError(t, repo.Initialize(context.Background()))
	assert.Equal(t, int32(1), created.Load())
}

func TestRepositoryInitializeFailureCanRetry(t *testing.T) {
	boom := errors.New("ollama unreachable")
	attempts := 0
	factory := func(ctx context.Context) (types.Embedder, error) {
		attempts++
		if attempts == 1 {
			return nil, boom
		}
		return newStubEmbedder(), nil
	}
	repo := NewRepository(store.NewMemoryStore(3), factory, nil)
	ctx := context.Background()

	err := repo.Initialize(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateUninitialized, repo.State())

	require.NoError(t, repo.Initialize(ctx))
	assert.Equal(t, StateReady, repo.State())
	assert.Equal(t, 2, attempts)
}

func TestRepositorySearch(t *testing.T) {
	repo := newTestRepository(t, newStubEmbedder())
	ctx := context.Background()

	assert.Equal(t, 3, repo.DocumentCount(ctx))

	t.Run("ordered and above floor", func(t *testing.T) {
		results, err := repo.Search(ctx, "Sigmar", 5, models.CategoryAny, 0.3)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "Sigmar", results[0].Title)
		assert.Equal(t, "Karl Franz", results[1].Title)
		assert.InDelta(t, 1.0, results[0].Relevance, 1e-6)
		assert.InDelta(t, 0.8, results[1].Relevance, 1e-6)
		for i, r := range results {
			assert.GreaterOrEqual(t, r.Relevance, 0.3)
			if i > 0 {
				assert.LessOrEqual(t, r.Relevance, results[i-1].Relevance)
			}
		}
	})

	t.Run("category filter excludes other categories", func(t *testing.T) {
		results, err := repo.Search(ctx, "capital city", 5, models.CategoryLocation, 0.3)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "Altdorf", results[0].Title)
		assert.Equal(t, models.CategoryLocation, results[0].Category)
		assert.Equal(t, "https://wiki.example/Altdorf", results[0].SourceURL)

		results, err = repo.Search(ctx, "Sigmar", 5, models.CategoryLocation, 0.3)
		require.NoError(t, err)
		assert.Empty(t, results, "Sigmar is a deity and must never match a location search")
	})

	t.Run("limit caps candidates", func(t *testing.T) {
		results, err := repo.Search(ctx, "Sigmar", 1, models.CategoryAny, -1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "Sigmar", results[0].Title)
	})

	t.Run("empty results are not an error", func(t *testing.T) {
		results, err := repo.Search(ctx, "Nagash", 5, models.CategoryAny, 0.3)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestRepositoryGetByTitle(t *testing.T) {
	emb := newStubEmbedder()
	repo := newTestRepository(t, emb)
	ctx := context.Background()
	before := emb.Calls()

	r, err := repo.GetByTitle(ctx, "Karl Franz")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, 1.0, r.Relevance)
	assert.Equal(t, models.CategoryCharacter, r.Category)
	assert.Equal(t, karlFranzText, r.Text)

	r, err = repo.GetByTitle(ctx, "karl franz")
	require.NoError(t, err)
	assert.Nil(t, r)

	assert.Equal(t, before, emb.Calls(), "title lookup must not embed")
}

func TestRepositoryAddDocumentsAbortsBatchOnEmbeddingFailure(t *testing.T) {
	emb := newStubEmbedder()
	repo := newTestRepository(t, emb)
	ctx := context.Background()

	emb.failOn = "second entry body"
	batch := []models.Document{
		{ID: "first", Title: "First", Category: models.CategoryItem, Text: "first entry body"},
		{ID: "second", Title: "Second", Category: models.CategoryItem, Text: "second entry body"},
	}
	err := repo.AddDocuments(ctx, batch)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, errEmbed)

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Contains(t, upErr.Op, "second")

	assert.Equal(t, 3, repo.DocumentCount(ctx), "earlier batches stay, the failed batch writes nothing")

	r, err := repo.GetByTitle(ctx, "First")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestRepositoryAddDocuments(t *testing.T) {
	repo := newTestRepository(t, newStubEmbedder())
	ctx := context.Background()

	require.NoError(t, repo.AddDocuments(ctx, nil))

	updated := testDocuments()[1]
	updated.Text = "Altdorf, the Imperial capital, straddles the river Reik."
	updated.Category = "city"
	require.NoError(t, repo.AddDocuments(ctx, []models.Document{updated}))
	assert.Equal(t, 3, repo.DocumentCount(ctx))

	r, err := repo.GetByTitle(ctx, "Altdorf")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, updated.Text, r.Text)
	assert.Equal(t, models.CategoryLocation, r.Category)

	err = repo.AddDocuments(ctx, []models.Document{{ID: "", Title: "nameless", Text: "text"}})
	assert.Error(t, err)
}

func TestRepositoryClear(t *testing.T) {
	repo := newTestRepository(t, newStubEmbedder())
	ctx := context.Background()

	require.NoError(t, repo.Clear(ctx))
	assert.Equal(t, 0, repo.DocumentCount(ctx))
	assert.True(t, repo.Ready())
}

func TestRelevance(t *testing.T) {
	assert.Equal(t, 1.0, Relevance(0))
	assert.Equal(t, 0.0, Relevance(1))
	assert.Equal(t, -1.0, Relevance(2))
	assert.Equal(t, -1.0, Relevance(2.5))
	assert.Equal(t, 1.0, Relevance(-0.1))
}
