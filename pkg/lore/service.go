package lore

import (
	"context"
	"math/rand/v2"
	"strings"

	"go.uber.org/zap"

	"github.com/xhad/lore/internal/models"
	"github.com/xhad/lore/pkg/config"
)

const (
	DefaultLimit            = 5
	DefaultMinRelevance     = 0.3
	DefaultMaxContextLength = 2000

	DefaultSituationLimit        = 5
	DefaultSituationMinRelevance = 0.25
	DefaultSituationMaxLength    = 3000

	randomCandidates = 10
)

// SeedQueries are the broad queries GetRandomLore samples from.
var SeedQueries = []string{
	"legendary hero",
	"ancient history",
	"famous battle",
	"important city",
	"dangerous creature",
	"powerful artifact",
	"gods and worship",
	"secret organization",
	"forbidden magic",
}

// SearchOptions tune a search. Zero values select the defaults; a negative
// MinRelevance disables the relevance floor.
type SearchOptions struct {
	Limit        int
	Category     models.Category
	MinRelevance float64
}

// ContextOptions tune a search whose results are packed into a Context.
type ContextOptions struct {
	SearchOptions
	MaxContextLength int
}

// Status summarizes the repository for callers at the boundary.
type Status struct {
	Ready         bool   `json:"ready"`
	State         string `json:"state"`
	DocumentCount int    `json:"documentCount"`
}

// Service applies retrieval policy on top of a Repository.
type Service struct {
	repo   *Repository
	config config.RetrievalConfig
	logger *zap.Logger

	// intn returns a uniform value in [0,n).
	intn func(n int) int
}

// NewService wraps repo. Zero fields in cfg fall back to the package defaults.
func NewService(repo *Repository, cfg config.RetrievalConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.MinRelevance == 0 {
		cfg.MinRelevance = DefaultMinRelevance
	}
	if cfg.MaxContextLength <= 0 {
		cfg.MaxContextLength = DefaultMaxContextLength
	}
	if cfg.SituationLimit <= 0 {
		cfg.SituationLimit = DefaultSituationLimit
	}
	if cfg.SituationMinRelevance == 0 {
		cfg.SituationMinRelevance = DefaultSituationMinRelevance
	}
	if cfg.SituationMaxLength <= 0 {
		cfg.SituationMaxLength = DefaultSituationMaxLength
	}
	return &Service{
		repo:   repo,
		config: cfg,
		logger: logger,
		intn:   rand.IntN,
	}
}

// Repository returns the underlying repository.
func (s *Service) Repository() *Repository {
	return s.repo
}

func (s *Service) withDefaults(opts SearchOptions) SearchOptions {
	if opts.Limit <= 0 {
		opts.Limit = s.config.DefaultLimit
	}
	if opts.Category == "" {
		opts.Category = models.CategoryAny
	}
	switch {
	case opts.MinRelevance == 0:
		opts.MinRelevance = s.config.MinRelevance
	case opts.MinRelevance < 0:
		opts.MinRelevance = -1
	}
	return opts
}

func (s *Service) Search(ctx context.Context, query string, opts SearchOptions) ([]models.Result, error) {
	opts = s.withDefaults(opts)
	return s.repo.Search(ctx, query, opts.Limit, opts.Category, opts.MinRelevance)
}

// LookupEntity resolves name by exact title first and only falls back to the
// single best semantic match when no title matches. It returns nil when
// neither finds anything.
func (s *Service) LookupEntity(ctx context.Context, name string, category models.Category) (*models.Result, error) {
	exact, err := s.repo.GetByTitle(ctx, name)
	if err != nil {
		return nil, err
	}
	if exact != nil {
		return exact, nil
	}

	s.logger.Debug("no exact title match, falling back to semantic search", zap.String("name", name))
	results, err := s.Search(ctx, name, SearchOptions{Limit: 1, Category: category})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

// BuildContext packs results into at most maxLength characters.
func (s *Service) BuildContext(results []models.Result, maxLength int) models.Context {
	return BuildContext(results, maxLength)
}

func (s *Service) SearchWithContext(ctx context.Context, query string, opts ContextOptions) (models.Context, error) {
	results, err := s.Search(ctx, query, opts.SearchOptions)
	if err != nil {
		return models.Context{}, err
	}
	maxLength := opts.MaxContextLength
	if maxLength <= 0 {
		maxLength = s.config.MaxContextLength
	}
	return BuildContext(results, maxLength), nil
}

// GetContextForSituation gathers lore relevant to a described situation and
// the entities involved in it, using the situational budget.
func (s *Service) GetContextForSituation(ctx context.Context, situation string, entities []string) (models.Context, error) {
	return s.ContextForSituation(ctx, situation, entities, s.config.SituationMaxLength)
}

// ContextForSituation is GetContextForSituation with an explicit budget.
// The search casts a wider net than a plain search: more candidates and a
// lower relevance floor.
func (s *Service) ContextForSituation(ctx context.Context, situation string, entities []string, maxLength int) (models.Context, error) {
	if maxLength <= 0 {
		maxLength = s.config.SituationMaxLength
	}
	return s.SearchWithContext(ctx, SituationQuery(situation, entities), ContextOptions{
		SearchOptions: SearchOptions{
			Limit:        s.config.SituationLimit,
			Category:     models.CategoryAny,
			MinRelevance: s.config.SituationMinRelevance,
		},
		MaxContextLength: maxLength,
	})
}

// SituationQuery joins the situation and entity names with single spaces.
func SituationQuery(situation string, entities []string) string {
	parts := make([]string, 0, len(entities)+1)
	parts = append(parts, situation)
	parts = append(parts, entities...)
	return strings.Join(parts, " ")
}

// GetRandomLore returns one entry reachable from a randomly chosen seed
// query, or nil when that query finds nothing.
func (s *Service) GetRandomLore(ctx context.Context, category models.Category) (*models.Result, error) {
	seed := SeedQueries[s.intn(len(SeedQueries))]
	results, err := s.Search(ctx, seed, SearchOptions{Limit: randomCandidates, Category: category})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		s.logger.Debug("seed query returned nothing", zap.String("seed", seed))
		return nil, nil
	}
	pick := results[s.intn(len(results))]
	return &pick, nil
}

func (s *Service) Status(ctx context.Context) Status {
	st := Status{
		Ready: s.repo.Ready(),
		State: s.repo.State().String(),
	}
	if st.Ready {
		st.DocumentCount = s.repo.DocumentCount(ctx)
	}
	return st
}
