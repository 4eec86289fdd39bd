package chat

import "context"

// Request describes a single chat completion call.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	// JSONOutput asks the backend for a JSON object response where the
	// backend supports constrained output.
	JSONOutput bool
}

// Completer defines a pluggable chat completion backend. Responses are
// returned whole; the dialogue loop consumes full rounds, not token streams.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}
