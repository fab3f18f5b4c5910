package models

import "strings"

// Document is a single lore entry as stored in the vector index.
// Documents are immutable once written; re-adding an ID overwrites it.
type Document struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Title     string   `json:"title"`
	Category  Category `json:"category"`
	Aliases   []string `json:"aliases,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	SourceURL string   `json:"source_url,omitempty"`
}

// Metadata flattens the document fields that travel with the vector.
func (d Document) Metadata() map[string]string {
	md := map[string]string{
		FieldTitle:    d.Title,
		FieldCategory: string(d.Category),
	}
	if d.SourceURL != "" {
		md[FieldSourceURL] = d.SourceURL
	}
	if len(d.Aliases) > 0 {
		md[FieldAliases] = strings.Join(d.Aliases, listSeparator)
	}
	if len(d.Tags) > 0 {
		md[FieldTags] = strings.Join(d.Tags, listSeparator)
	}
	return md
}

// Metadata keys understood by every index backend.
const (
	FieldTitle     = "title"
	FieldCategory  = "category"
	FieldSourceURL = "source_url"
	FieldAliases   = "aliases"
	FieldTags      = "tags"
)

const listSeparator = "|"

// SplitList reverses the list encoding used for aliases and tags in metadata.
func SplitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, listSeparator)
}
