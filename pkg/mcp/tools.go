package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/xhad/lore/internal/models"
	"github.com/xhad/lore/pkg/lore"
	"github.com/xhad/lore/pkg/render"
)

const defaultContextLength = 2000

// SearchInput is the input schema for lore_search.
type SearchInput struct {
	Query    string `json:"query" jsonschema:"what to search the lore for" validate:"required"`
	Category string `json:"category,omitempty" jsonschema:"restrict results to one category (character, location, creature, item, event, organization, deity, spell, general or any)" validate:"omitempty,category"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of results, 1 to 10 (default 5)" validate:"omitempty,min=1,max=10"`
}

type SearchOutput struct {
	Results []models.Result `json:"results"`
	Count   int             `json:"count"`
}

// LookupInput is the input schema for lore_lookup.
type LookupInput struct {
	Name     string `json:"name" jsonschema:"the name of a character, place, item or other entity" validate:"required"`
	Category string `json:"category,omitempty" jsonschema:"category to restrict the fallback search to" validate:"omitempty,category"`
}

type LookupOutput struct {
	Found  bool           `json:"found"`
	Result *models.Result `json:"result,omitempty"`
}

// ContextInput is the input schema for lore_context.
type ContextInput struct {
	Situation string   `json:"situation" jsonschema:"a description of the current scene or situation" validate:"required"`
	Entities  []string `json:"entities,omitempty" jsonschema:"names of entities involved in the situation" validate:"omitempty,dive,required"`
	MaxLength int      `json:"maxLength,omitempty" jsonschema:"character budget for the packed context (default 2000)" validate:"omitempty,min=1"`
}

type ContextOutput struct {
	Text        string   `json:"text"`
	SourceCount int      `json:"sourceCount"`
	Sources     []string `json:"sources"`
}

// RandomInput is the input schema for lore_random.
type RandomInput struct {
	Category string `json:"category,omitempty" jsonschema:"category to draw from (default any)" validate:"omitempty,category"`
}

type StatusInput struct{}

// StatusOutput reports readiness. DocumentCount is present only once the
// repository is ready.
type StatusOutput struct {
	Ready         bool `json:"ready"`
	DocumentCount *int `json:"documentCount,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "lore_search",
		Description: "Search lore entries by meaning, optionally within one category",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "lore_lookup",
		Description: "Look up a named entity, by exact title first and by similarity otherwise",
	}, s.handleLookup)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "lore_context",
		Description: "Gather lore relevant to a situation and the entities in it, packed into a bounded text block with sources",
	}, s.handleContext)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "lore_random",
		Description: "Return a random lore entry, optionally from one category",
	}, s.handleRandom)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "lore_status",
		Description: "Report whether the lore database is ready and how many entries it holds",
	}, s.handleStatus)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// parseCategory is only reached after validation, so the error is unreachable.
func parseCategory(s string) models.Category {
	c, err := models.ParseCategory(s)
	if err != nil {
		return models.CategoryAny
	}
	return c
}

func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	if err := s.check(input); err != nil {
		return nil, SearchOutput{}, err
	}

	results, err := s.service.Search(ctx, input.Query, lore.SearchOptions{
		Limit:    input.Limit,
		Category: parseCategory(input.Category),
	})
	if err != nil {
		s.logger.Warn("lore_search failed", zap.String("query", input.Query), zap.Error(err))
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{Results: results, Count: len(results)}
	if output.Results == nil {
		output.Results = []models.Result{}
	}
	return textResult(render.Search(input.Query, results)), output, nil
}

func (s *Server) handleLookup(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input LookupInput,
) (*mcp.CallToolResult, LookupOutput, error) {
	if err := s.check(input); err != nil {
		return nil, LookupOutput{}, err
	}

	r, err := s.service.LookupEntity(ctx, input.Name, parseCategory(input.Category))
	if err != nil {
		s.logger.Warn("lore_lookup failed", zap.String("name", input.Name), zap.Error(err))
		return nil, LookupOutput{}, err
	}
	return textResult(render.Lookup(input.Name, r)), LookupOutput{Found: r != nil, Result: r}, nil
}

func (s *Server) handleContext(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ContextInput,
) (*mcp.CallToolResult, ContextOutput, error) {
	if err := s.check(input); err != nil {
		return nil, ContextOutput{}, err
	}

	maxLength := input.MaxLength
	if maxLength <= 0 {
		maxLength = defaultContextLength
	}

	c, err := s.service.ContextForSituation(ctx, input.Situation, input.Entities, maxLength)
	if err != nil {
		s.logger.Warn("lore_context failed", zap.Error(err))
		return nil, ContextOutput{}, err
	}
	sources := c.Sources
	if sources == nil {
		sources = []string{}
	}
	return textResult(render.Context(c)), ContextOutput{
		Text:        c.Text,
		SourceCount: c.SourceCount,
		Sources:     sources,
	}, nil
}

func (s *Server) handleRandom(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RandomInput,
) (*mcp.CallToolResult, LookupOutput, error) {
	if err := s.check(input); err != nil {
		return nil, LookupOutput{}, err
	}

	r, err := s.service.GetRandomLore(ctx, parseCategory(input.Category))
	if err != nil {
		return nil, LookupOutput{}, err
	}
	return textResult(render.Random(r)), LookupOutput{Found: r != nil, Result: r}, nil
}

func (s *Server) handleStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	st := s.service.Status(ctx)
	out := StatusOutput{Ready: st.Ready}
	if st.Ready {
		count := st.DocumentCount
		out.DocumentCount = &count
	}
	return textResult(render.JSON(out)), out, nil
}
