package models

// Result is a single ranked hit produced by a query. Relevance is derived
// from vector distance and is never stored.
type Result struct {
	Text      string   `json:"text"`
	Title     string   `json:"title"`
	Category  Category `json:"category"`
	Relevance float64  `json:"relevance"`
	SourceURL string   `json:"sourceUrl,omitempty"`
}

// Context is a bounded, attributed block of lore assembled from results.
type Context struct {
	Text        string   `json:"text"`
	SourceCount int      `json:"sourceCount"`
	Sources     []string `json:"sources"`
}

// Empty reports whether the context carries no lore.
func (c Context) Empty() bool {
	return c.Text == ""
}
