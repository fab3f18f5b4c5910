package mcp

import (
	"context"

	"github.com/xhad/lore/internal/models"
	"github.com/xhad/lore/pkg/lore"
)

type mockRetriever struct {
	results []models.Result
	entity  *models.Result
	context models.Context
	status  lore.Status
	err     error

	lastQuery     string
	lastOpts      lore.SearchOptions
	lastCategory  models.Category
	lastEntities  []string
	lastMaxLength int
}

func (m *mockRetriever) Search(ctx context.Context, query string, opts lore.SearchOptions) ([]models.Result, error) {
	m.lastQuery = query
	m.lastOpts = opts
	return m.results, m.err
}

func (m *mockRetriever) LookupEntity(ctx context.Context, name string, category models.Category) (*models.Result, error) {
	m.lastQuery = name
	m.lastCategory = category
	return m.entity, m.err
}

func (m *mockRetriever) ContextForSituation(ctx context.Context, situation string, entities []string, maxLength int) (models.Context, error) {
	m.lastQuery = situation
	m.lastEntities = entities
	m.lastMaxLength = maxLength
	return m.context, m.err
}

func (m *mockRetriever) GetRandomLore(ctx context.Context, category models.Category) (*models.Result, error) {
	m.lastCategory = category
	return m.entity, m.err
}

func (m *mockRetriever) Status(ctx context.Context) lore.Status {
	return m.status
}
