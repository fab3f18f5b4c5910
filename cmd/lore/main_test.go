package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/lore/internal/models"
	"github.com/xhad/lore/pkg/lore"
)

const testLore = `{"title": "Sigmar Heldenhammer", "category": "deity", "text": "Sigmar Heldenhammer united the tribes of men and founded the Empire after the battle at Black Fire Pass."}
{"title": "Altdorf", "category": "location", "text": "Altdorf is the capital of the Empire, seat of the Emperor and home of the Colleges of Magic.", "url": "https://wiki.example/Altdorf"}
{"title": "Karl Franz", "type": "characters", "text": "Karl Franz is the Emperor who rules from Altdorf and rides the griffon Deathclaw into war."}
{"title": "Stub", "text": "Too short."}
not json
`

// setupTestConfig points the CLI at a fresh SQLite index and the offline
// hash embedder, and resets command flags left over from earlier tests.
func setupTestConfig(t *testing.T) string {
	t.Helper()
	resetFlags()

	dir := t.TempDir()
	t.Setenv("HOME", dir)
	for _, key := range []string{"OLLAMA_BASE_URL", "DATABASE_URL", "LORE_INDEX", "LORE_SQLITE_PATH", "LORE_EMBEDDER", "LORE_DEBUG"} {
		t.Setenv(key, "")
	}

	path := filepath.Join(dir, "lore.yaml")
	cfg := "embedding:\n  provider: hash\n  dimensions: 1024\n" +
		"database:\n  backend: sqlite\n  sqlite_path: " + filepath.Join(dir, "lore.db") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func resetFlags() {
	configPath, indexBackend, debug = "", "", false
	searchLimit, searchCategory, searchMinRelevance, searchJSON = lore.DefaultLimit, "", 0, false
	lookupCategory = ""
	contextEntities, contextMaxLength = nil, lore.DefaultMaxContextLength
	randomCategory = ""
	clearYes = false
	ingestReset, ingestBatchSize = false, 0
	fetchReset, fetchDepth, fetchRateLimit = false, 0, 0
	askEntities = nil
	serveAddr, mcpPort = "", 0
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}()
	err := rootCmd.Execute()
	return out.String(), err
}

func writeLore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lore.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(testLore), 0o600))
	return path
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "index", "debug"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), name)
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"ingest", "fetch", "search", "lookup", "context", "random", "status", "clear", "ask", "serve", "mcp", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestVersionCmd_Executes(t *testing.T) {
	resetFlags()
	original := version
	version = "test-1.0.0"
	defer func() { version = original }()

	out, err := execute(t, "version")

	require.NoError(t, err)
	assert.Contains(t, out, "lore version test-1.0.0")
}

func TestSearchCmd_RequiresExactlyOneArg(t *testing.T) {
	resetFlags()
	_, err := execute(t, "search")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestSearchCmd_HasLimitFlag(t *testing.T) {
	flag := searchCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "n", flag.Shorthand)
	assert.Equal(t, "5", flag.DefValue)
}

func TestContextCmd_HasFlags(t *testing.T) {
	require.NotNil(t, contextCmd.Flags().Lookup("entity"))
	flag := contextCmd.Flags().Lookup("max-length")
	require.NotNil(t, flag)
	assert.Equal(t, "2000", flag.DefValue)
}

func TestSearchCmd_RejectsUnknownCategory(t *testing.T) {
	path := setupTestConfig(t)

	_, err := execute(t, "--config", path, "search", "--category", "spaceship", "anything")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown category")
}

func TestStatusCmd_InvalidBackend(t *testing.T) {
	path := setupTestConfig(t)

	_, err := execute(t, "--config", path, "--index", "bogus", "status")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "database.backend")
}

func TestClearCmd_AbortsWithoutConfirmation(t *testing.T) {
	path := setupTestConfig(t)
	rootCmd.SetIn(strings.NewReader("n\n"))

	out, err := execute(t, "--config", path, "clear")

	require.NoError(t, err)
	assert.Contains(t, out, "Aborted.")
}

func TestIngestAndQuery(t *testing.T) {
	path := setupTestConfig(t)
	file := writeLore(t)

	out, err := execute(t, "--config", path, "ingest", "--batch-size", "2", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded 3 entries")
	assert.Contains(t, out, "(1 skipped, 1 malformed), 3 in index")

	t.Run("status", func(t *testing.T) {
		resetFlags()
		out, err := execute(t, "--config", path, "status")
		require.NoError(t, err)

		var status lore.Status
		require.NoError(t, json.Unmarshal([]byte(out), &status))
		assert.True(t, status.Ready)
		assert.Equal(t, "ready", status.State)
		assert.Equal(t, 3, status.DocumentCount)
	})

	t.Run("lookup exact title", func(t *testing.T) {
		resetFlags()
		out, err := execute(t, "--config", path, "lookup", "Altdorf")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "**Altdorf** (location)"))
		assert.Contains(t, out, "Source: https://wiki.example/Altdorf")
	})

	t.Run("search", func(t *testing.T) {
		resetFlags()
		out, err := execute(t, "--config", path, "search", "--limit", "1", "--min-relevance", "-1", "Sigmar Heldenhammer")
		require.NoError(t, err)
		assert.Contains(t, out, `Found 1 lore entries for "Sigmar Heldenhammer":`)
		assert.Contains(t, out, "1. **Sigmar Heldenhammer** (deity,")
	})

	t.Run("search json with category", func(t *testing.T) {
		resetFlags()
		out, err := execute(t, "--config", path, "search", "--json", "-c", "character", "--min-relevance", "-1", "emperor")
		require.NoError(t, err)

		var results []models.Result
		require.NoError(t, json.Unmarshal([]byte(out), &results))
		require.Len(t, results, 1)
		assert.Equal(t, "Karl Franz", results[0].Title)
		assert.Equal(t, models.CategoryCharacter, results[0].Category)
	})

	t.Run("context", func(t *testing.T) {
		resetFlags()
		out, err := execute(t, "--config", path, "context", "tribes of men united", "--entity", "Sigmar")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "## Relevant Lore\n\n### Sigmar Heldenhammer\n"))
		assert.Contains(t, out, "Sources: Sigmar Heldenhammer")
	})

	t.Run("random", func(t *testing.T) {
		resetFlags()
		_, err := execute(t, "--config", path, "random")
		require.NoError(t, err)
	})

	t.Run("clear", func(t *testing.T) {
		resetFlags()
		out, err := execute(t, "--config", path, "clear", "--yes")
		require.NoError(t, err)
		assert.Contains(t, out, "Index cleared")

		resetFlags()
		out, err = execute(t, "--config", path, "status")
		require.NoError(t, err)
		assert.Contains(t, out, `"documentCount": 0`)
	})
}

func TestIngestCmd_MissingFile(t *testing.T) {
	path := setupTestConfig(t)

	_, err := execute(t, "--config", path, "ingest", filepath.Join(t.TempDir(), "missing.jsonl"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open")
}
