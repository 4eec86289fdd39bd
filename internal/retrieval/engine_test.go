package retrieval

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
)

// stubEmbedder returns fixed vectors per text and counts backend calls.
type stubEmbedder struct {
	vectors map[string][]float32
	fail    map[string]bool
	calls   int
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.calls++
	if s.fail[text] {
		return nil, errors.New("backend unavailable")
	}
	vec, ok := s.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no stub vector for %q", text)
	}
	return vec, nil
}

func newTestEngine(t *testing.T, stub *stubEmbedder, topK int, threshold float64) (*Engine, *Cache) {
	t.Helper()
	ctx := context.Background()
	cache, err := OpenCache(ctx, filepath.Join(t.TempDir(), "cache.db"), testLogger())
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	embedder := NewCachingEmbedder(stub, cache, "stub")
	return NewEngine(NewChunker(5, 0), embedder, topK, threshold, testLogger()), cache
}

func TestQueryRanksDescendingWithThreshold(t *testing.T) {
	ctx := context.Background()
	stub := &stubEmbedder{vectors: map[string][]float32{
		"q":        {1, 0},
		"close":    {0.9, 0.1},
		"closer":   {1, 0.01},
		"far":      {0, 1},
		"moderate": {0.7, 0.7},
	}}
	engine, _ := newTestEngine(t, stub, 10, 0.7)

	for _, text := range []string{"close", "closer", "far", "moderate"} {
		if _, err := engine.IndexDocument(ctx, "doc-"+text, text); err != nil {
			t.Fatalf("index %q: %v", text, err)
		}
	}

	matches, err := engine.Query(ctx, "q")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches above threshold, got %d", len(matches))
	}
	if matches[0].Text != "closer" || matches[1].Text != "close" {
		t.Fatalf("unexpected order: %v", matches)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Fatalf("scores not descending: %v", matches)
		}
	}
}

func TestQueryClampsToTopK(t *testing.T) {
	ctx := context.Background()
	stub := &stubEmbedder{vectors: map[string][]float32{"q": {1, 0}}}
	for i := 0; i < 8; i++ {
		text := fmt.Sprintf("candidate%d", i)
		stub.vectors[text] = []float32{1, 0}
	}
	engine, _ := newTestEngine(t, stub, 3, 0)

	for i := 0; i < 8; i++ {
		text := fmt.Sprintf("candidate%d", i)
		if _, err := engine.IndexDocument(ctx, "d", text); err != nil {
			t.Fatalf("index: %v", err)
		}
	}

	matches, err := engine.Query(ctx, "q")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("expected topK=3 matches, got %d", len(matches))
	}
	// Equal scores keep candidate order.
	for i, m := range matches {
		if m.Text != fmt.Sprintf("candidate%d", i) {
			t.Fatalf("expected stable tie order, got %v", matches)
		}
	}
}

func TestQueryEmbeddingFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	stub := &stubEmbedder{
		vectors: map[string][]float32{"text": {1, 0}},
		fail:    map[string]bool{"q": true},
	}
	engine, _ := newTestEngine(t, stub, 5, 0)
	if _, err := engine.IndexDocument(ctx, "d", "text"); err != nil {
		t.Fatalf("index: %v", err)
	}
	if _, err := engine.Query(ctx, "q"); err == nil {
		t.Fatal("expected query embedding failure to be fatal")
	}
}

func TestQuerySkipsFailingCandidates(t *testing.T) {
	ctx := context.Background()
	stub := &stubEmbedder{
		vectors: map[string][]float32{
			"q":    {1, 0},
			"good": {1, 0},
		},
		fail: map[string]bool{"bad": true},
	}
	engine, _ := newTestEngine(t, stub, 5, 0)
	if _, err := engine.IndexDocument(ctx, "d1", "good"); err != nil {
		t.Fatalf("index: %v", err)
	}
	if _, err := engine.IndexDocument(ctx, "d2", "bad"); err != nil {
		t.Fatalf("index: %v", err)
	}

	matches, err := engine.Query(ctx, "q")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 1 || matches[0].Text != "good" {
		t.Fatalf("expected only the healthy candidate, got %v", matches)
	}
}

func TestCachingEmbedderSkipsBackendOnHit(t *testing.T) {
	ctx := context.Background()
	stub := &stubEmbedder{vectors: map[string][]float32{"text": {1, 2, 3}}}
	cache, err := OpenCache(ctx, filepath.Join(t.TempDir(), "cache.db"), testLogger())
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer cache.Close()

	embedder := NewCachingEmbedder(stub, cache, "stub")
	if _, err := embedder.Embed(ctx, "text"); err != nil {
		t.Fatalf("first embed: %v", err)
	}
	if _, err := embedder.Embed(ctx, "text"); err != nil {
		t.Fatalf("second embed: %v", err)
	}
	if stub.calls != 1 {
		t.Fatalf("expected one backend call, got %d", stub.calls)
	}
}
