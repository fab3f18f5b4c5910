package lore

import (
	"strings"
	"unicode/utf8"

	"github.com/xhad/lore/internal/models"
)

const (
	contextHeader = "## Relevant Lore\n\n"

	// closingReserve is held back from the budget when an entry overflows.
	closingReserve = 50
	// minTruncatedSpace is the least room worth spending on a truncated entry.
	minTruncatedSpace = 200

	ellipsis = "..."
)

// BuildContext packs results, in order, into a block of at most maxLength
// characters plus the length of a trailing ellipsis. Entries that fit are
// added whole; the first that does not is added truncated when enough room
// remains, and packing stops there. Lengths count runes.
func BuildContext(results []models.Result, maxLength int) models.Context {
	empty := models.Context{Sources: []string{}}
	if len(results) == 0 {
		return empty
	}

	var b strings.Builder
	b.WriteString(contextHeader)
	length := utf8.RuneCountInString(contextHeader)

	sources := []string{}
	seen := make(map[string]bool)
	record := func(title string) {
		if !seen[title] {
			seen[title] = true
			sources = append(sources, title)
		}
	}

	added := 0
	for _, r := range results {
		head := "### " + r.Title + "\n"
		entry := head + r.Text + "\n\n"
		n := utf8.RuneCountInString(entry)

		if length+n <= maxLength {
			b.WriteString(entry)
			length += n
			record(r.Title)
			added++
			continue
		}

		remaining := maxLength - length - closingReserve
		if remaining > minTruncatedSpace {
			if body := remaining - utf8.RuneCountInString(head); body > 0 {
				b.WriteString(head)
				b.WriteString(truncateRunes(r.Text, body))
				b.WriteString(ellipsis)
				record(r.Title)
				added++
			}
		}
		break
	}

	if added == 0 {
		return empty
	}
	return models.Context{
		Text:        strings.TrimRight(b.String(), "\n"),
		SourceCount: len(sources),
		Sources:     sources,
	}
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
