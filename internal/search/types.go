package search

import "context"

// Result is one extracted search hit.
type Result struct {
	Title string
	URL   string
}

// Searcher defines a pluggable web search backend.
type Searcher interface {
	// Search returns a text digest of the top pages for query, or an
	// empty string when nothing useful was found.
	Search(ctx context.Context, query string) (string, error)
}
