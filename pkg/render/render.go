// Package render formats retrieval results as text for tool and CLI output.
package render

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/xhad/lore/internal/models"
	"github.com/xhad/lore/pkg/lore"
)

// PreviewLength is the longest body excerpt shown per search result.
const PreviewLength = 500

// NotFound is the lookup response when no entry matches.
const NotFound = "not found"

const ellipsis = "..."

// Percent renders a relevance score as a whole percentage.
func Percent(relevance float64) int {
	return int(math.Round(relevance * 100))
}

// Preview shortens text to at most n runes, the "..." cut marker included.
func Preview(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	keep := n - len(ellipsis)
	if keep <= 0 {
		return string(runes[:max(n, 0)])
	}
	return strings.TrimRight(string(runes[:keep]), " \n") + ellipsis
}

func Search(query string, results []models.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No lore found for %q.", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d lore entries for %q:\n", len(results), query)
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. **%s** (%s, %d%% relevant)\n", i+1, r.Title, r.Category, Percent(r.Relevance))
		b.WriteString(Preview(r.Text, PreviewLength))
		b.WriteString("\n")
		if r.SourceURL != "" {
			fmt.Fprintf(&b, "Source: %s\n", r.SourceURL)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Entry renders a single result in full.
func Entry(r models.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** (%s)\n\n%s", r.Title, r.Category, r.Text)
	if r.SourceURL != "" {
		fmt.Fprintf(&b, "\n\nSource: %s", r.SourceURL)
	}
	return b.String()
}

func Lookup(name string, r *models.Result) string {
	if r == nil {
		return fmt.Sprintf("%q %s.", name, NotFound)
	}
	return Entry(*r)
}

func Context(c models.Context) string {
	if c.Empty() {
		return "No relevant lore found."
	}
	return c.Text + "\n\nSources: " + strings.Join(c.Sources, ", ")
}

func Random(r *models.Result) string {
	if r == nil {
		return "No lore available."
	}
	return Entry(*r)
}

func Status(s lore.Status) string {
	return JSON(s)
}

// JSON renders v as indented JSON.
func JSON(v any) string {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(out)
}
