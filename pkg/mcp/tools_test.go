package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/lore/internal/models"
	"github.com/xhad/lore/pkg/lore"
)

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

var altdorf = models.Result{
	Title: "Altdorf", Category: models.CategoryLocation, Relevance: 0.91, Text: "Capital of the Empire.",
}

func TestServer_handleSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("returns rendered results", func(t *testing.T) {
		mock := &mockRetriever{results: []models.Result{altdorf}}
		server, err := NewServer(mock, nil)
		require.NoError(t, err)

		res, output, err := server.handleSearch(ctx, nil, SearchInput{Query: "capital", Category: "cities", Limit: 3})
		require.NoError(t, err)
		assert.Equal(t, 1, output.Count)
		assert.Equal(t, "Altdorf", output.Results[0].Title)
		assert.Equal(t, 3, mock.lastOpts.Limit)
		assert.Equal(t, models.CategoryLocation, mock.lastOpts.Category)
		assert.Contains(t, text(t, res), "1. **Altdorf** (location, 91% relevant)")
	})

	t.Run("defaults", func(t *testing.T) {
		mock := &mockRetriever{}
		server, err := NewServer(mock, nil)
		require.NoError(t, err)

		res, output, err := server.handleSearch(ctx, nil, SearchInput{Query: "griffon"})
		require.NoError(t, err)
		assert.Equal(t, 0, output.Count)
		assert.NotNil(t, output.Results)
		assert.Equal(t, models.CategoryAny, mock.lastOpts.Category)
		assert.Equal(t, 0, mock.lastOpts.Limit)
		assert.Equal(t, `No lore found for "griffon".`, text(t, res))
	})

	t.Run("rejects invalid arguments", func(t *testing.T) {
		server, err := NewServer(&mockRetriever{}, nil)
		require.NoError(t, err)

		for _, input := range []SearchInput{
			{},
			{Query: "x", Limit: 11},
			{Query: "x", Limit: -1},
			{Query: "x", Category: "spaceship"},
		} {
			_, _, err := server.handleSearch(ctx, nil, input)
			assert.Error(t, err, "%+v", input)
		}
	})

	t.Run("search failure is an error", func(t *testing.T) {
		server, err := NewServer(&mockRetriever{err: lore.ErrNotInitialized}, nil)
		require.NoError(t, err)

		_, _, err = server.handleSearch(ctx, nil, SearchInput{Query: "x"})
		assert.ErrorIs(t, err, lore.ErrNotReady)
	})
}

func TestServer_handleLookup(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		hit := altdorf
		mock := &mockRetriever{entity: &hit}
		server, err := NewServer(mock, nil)
		require.NoError(t, err)

		res, output, err := server.handleLookup(ctx, nil, LookupInput{Name: "Altdorf", Category: "location"})
		require.NoError(t, err)
		assert.True(t, output.Found)
		assert.Equal(t, models.CategoryLocation, mock.lastCategory)
		assert.Contains(t, text(t, res), "**Altdorf** (location)")
	})

	t.Run("not found is distinct from failure", func(t *testing.T) {
		server, err := NewServer(&mockRetriever{}, nil)
		require.NoError(t, err)

		res, output, err := server.handleLookup(ctx, nil, LookupInput{Name: "Nagash"})
		require.NoError(t, err)
		assert.False(t, output.Found)
		assert.Contains(t, text(t, res), "not found")

		failing, err := NewServer(&mockRetriever{err: errors.New("index offline")}, nil)
		require.NoError(t, err)
		_, _, err = failing.handleLookup(ctx, nil, LookupInput{Name: "Nagash"})
		assert.Error(t, err)
	})

	t.Run("name is required", func(t *testing.T) {
		server, err := NewServer(&mockRetriever{}, nil)
		require.NoError(t, err)
		_, _, err = server.handleLookup(ctx, nil, LookupInput{})
		assert.Error(t, err)
	})
}

func TestServer_handleContext(t *testing.T) {
	ctx := context.Background()
	mock := &mockRetriever{context: models.Context{
		Text: "## Relevant Lore\n\n### Altdorf\nCapital.", SourceCount: 1, Sources: []string{"Altdorf"},
	}}
	server, err := NewServer(mock, nil)
	require.NoError(t, err)

	res, output, err := server.handleContext(ctx, nil, ContextInput{Situation: "arriving at the gates", Entities: []string{"Altdorf"}})
	require.NoError(t, err)
	assert.Equal(t, 2000, mock.lastMaxLength)
	assert.Equal(t, []string{"Altdorf"}, mock.lastEntities)
	assert.Equal(t, []string{"Altdorf"}, output.Sources)
	assert.Equal(t, "## Relevant Lore\n\n### Altdorf\nCapital.\n\nSources: Altdorf", text(t, res))

	_, _, err = server.handleContext(ctx, nil, ContextInput{Situation: "x", MaxLength: 500})
	require.NoError(t, err)
	assert.Equal(t, 500, mock.lastMaxLength)

	_, _, err = server.handleContext(ctx, nil, ContextInput{Situation: "x", Entities: []string{""}})
	assert.Error(t, err)

	empty, err := NewServer(&mockRetriever{}, nil)
	require.NoError(t, err)
	res, output, err = empty.handleContext(ctx, nil, ContextInput{Situation: "x"})
	require.NoError(t, err)
	assert.NotNil(t, output.Sources)
	assert.Equal(t, "No relevant lore found.", text(t, res))
}

func TestServer_handleRandomAndStatus(t *testing.T) {
	ctx := context.Background()
	mock := &mockRetriever{status: lore.Status{Ready: true, State: "ready", DocumentCount: 12}}
	server, err := NewServer(mock, nil)
	require.NoError(t, err)

	res, output, err := server.handleRandom(ctx, nil, RandomInput{Category: "gods"})
	require.NoError(t, err)
	assert.False(t, output.Found)
	assert.Equal(t, models.CategoryDeity, mock.lastCategory)
	assert.Equal(t, "No lore available.", text(t, res))

	res, st, err := server.handleStatus(ctx, nil, StatusInput{})
	require.NoError(t, err)
	assert.True(t, st.Ready)
	require.NotNil(t, st.DocumentCount)
	assert.Equal(t, 12, *st.DocumentCount)
	assert.JSONEq(t, `{"ready": true, "documentCount": 12}`, text(t, res))
}

func TestServer_handleStatusNotReady(t *testing.T) {
	mock := &mockRetriever{status: lore.Status{Ready: false, State: "uninitialized"}}
	server, err := NewServer(mock, nil)
	require.NoError(t, err)

	res, st, err := server.handleStatus(context.Background(), nil, StatusInput{})
	require.NoError(t, err)
	assert.Nil(t, st.DocumentCount)
	assert.JSONEq(t, `{"ready": false}`, text(t, res))

	structured, err := json.Marshal(st)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ready": false}`, string(structured))
}

func TestContextOutputKeys(t *testing.T) {
	out, err := json.Marshal(ContextOutput{Text: "t", SourceCount: 1, Sources: []string{"A"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"text": "t", "sourceCount": 1, "sources": ["A"]}`, string(out))
}

func TestServerOverInMemoryTransport(t *testing.T) {
	ctx := context.Background()
	mock := &mockRetriever{results: []models.Result{altdorf}}
	server, err := NewServer(mock, nil)
	require.NoError(t, err)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer serverSession.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer session.Close()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "lore_search",
		Arguments: map[string]any{"query": "capital"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, text(t, res), "Altdorf")

	res, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "lore_search",
		Arguments: map[string]any{"query": "capital", "limit": 50},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
