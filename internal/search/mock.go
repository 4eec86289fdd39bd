package search

import "context"

type mockSearcher struct{}

func NewMockSearcher() Searcher { return &mockSearcher{} }

func (m *mockSearcher) Search(ctx context.Context, query string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return "[mock search digest for " + query + "]", nil
}
