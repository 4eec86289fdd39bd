package chat

import (
	"context"
	"strings"
	"time"
)

type mockCompleter struct{}

func NewMockCompleter() Completer { return &mockCompleter{} }

func (m *mockCompleter) Complete(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	if req.JSONOutput {
		return `{"dialogue":[{"id":1,"user":"M","text":"[mock turn]"},{"id":2,"user":"F","text":"[mock turn]"}]}`, nil
	}
	return "[mock completion for " + strings.TrimSpace(req.User) + "]", nil
}
