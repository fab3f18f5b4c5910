package lore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xhad/lore/internal/models"
	"github.com/xhad/lore/pkg/config"
	"github.com/xhad/lore/pkg/store"
)

var errEmbed = errors.New("embedding backend down")

// stubEmbedder returns fixed vectors per text and a fallback for the rest.
type stubEmbedder struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	fallback []float32
	failOn   string
	calls    int
	last     string
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.last = text
	if text == e.failOn {
		return nil, errEmbed
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	if e.fallback != nil {
		return e.fallback, nil
	}
	return []float32{0, 0, 1}, nil
}

func (e *stubEmbedder) Dimensions() int { return 3 }

func (e *stubEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *stubEmbedder) Last() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

const (
	sigmarText    = "Sigmar Heldenhammer united the tribes of men and was raised to godhood."
	altdorfText   = "Altdorf is the capital city of the Empire, seat of the Emperor and the Colleges of Magic."
	karlFranzText = "Karl Franz is the Emperor, wielder of the Runefang and rider of the griffon Deathclaw."
)

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{vectors: map[string][]float32{
		sigmarText:     {1, 0, 0},
		altdorfText:    {0, 1, 0},
		karlFranzText:  {0.8, 0.6, 0},
		"capital city": {0.1, 1, 0},
		"Sigmar":       {1, 0, 0},
		"Altdorff":     {0, 1, 0.1},
		"Nagash":       {0, 0, 1},
	}}
}

func testDocuments() []models.Document {
	return []models.Document{
		{ID: "sigmar", Title: "Sigmar", Category: models.CategoryDeity, Text: sigmarText},
		{ID: "altdorf", Title: "Altdorf", Category: models.CategoryLocation, Text: altdorfText,
			SourceURL: "https://wiki.example/Altdorf"},
		{ID: "karl-franz", Title: "Karl Franz", Category: models.CategoryCharacter, Text: karlFranzText},
	}
}

// newTestRepository returns a ready repository over an in-memory index
// holding testDocuments.
func newTestRepository(t *testing.T, emb *stubEmbedder) *Repository {
	t.Helper()
	repo := NewRepository(store.NewMemoryStore(3), StaticEmbedder(emb), nil)
	require.NoError(t, repo.Initialize(context.Background()))
	require.NoError(t, repo.AddDocuments(context.Background(), testDocuments()))
	return repo
}

func newTestService(t *testing.T, emb *stubEmbedder) *Service {
	t.Helper()
	return NewService(newTestRepository(t, emb), config.RetrievalConfig{}, nil)
}
