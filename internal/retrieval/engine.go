package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
)

// Match is one ranked chunk.
type Match struct {
	DocID string
	Index int
	Text  string
	Score float64
}

// Engine indexes document chunks and ranks them against queries by cosine
// similarity. Chunk vectors go through the caching embedder, so ranking a
// previously indexed document costs no backend calls.
type Engine struct {
	chunker   *Chunker
	embedder  Embedder
	topK      int
	threshold float64
	log       *slog.Logger

	mu     sync.RWMutex
	chunks []chunkEntry
}

type chunkEntry struct {
	docID string
	index int
	text  string
}

func NewEngine(chunker *Chunker, embedder Embedder, topK int, threshold float64, log *slog.Logger) *Engine {
	return &Engine{
		chunker:   chunker,
		embedder:  embedder,
		topK:      topK,
		threshold: threshold,
		log:       log.With(slog.String("component", "retrieval")),
	}
}

// IndexDocument splits text into chunks, warms their embeddings, and adds
// them to the candidate set. Returns the number of chunks indexed.
func (e *Engine) IndexDocument(ctx context.Context, docID, text string) (int, error) {
	parts := e.chunker.Split(text)
	if len(parts) == 0 {
		return 0, fmt.Errorf("document %s produced no chunks", docID)
	}

	for i, part := range parts {
		if _, err := e.embedder.Embed(ctx, part); err != nil {
			// Warm failures are not fatal; the chunk can still be
			// embedded (or skipped) at query time.
			e.log.Warn("chunk embedding failed during indexing",
				slog.String("doc_id", docID),
				slog.Int("chunk", i),
				slog.String("error", err.Error()))
		}
	}

	e.mu.Lock()
	for i, part := range parts {
		e.chunks = append(e.chunks, chunkEntry{docID: docID, index: i, text: part})
	}
	e.mu.Unlock()

	return len(parts), nil
}

// HasDocument reports whether docID contributed chunks to the index.
func (e *Engine) HasDocument(docID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, c := range e.chunks {
		if c.docID == docID {
			return true
		}
	}
	return false
}

// Query embeds the query and returns at most topK chunks scoring at or above
// the threshold, in descending score order. Equal scores keep index order.
// A query embedding failure is fatal; a candidate embedding failure skips
// that candidate.
func (e *Engine) Query(ctx context.Context, query string) ([]Match, error) {
	qvec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	e.mu.RLock()
	candidates := make([]chunkEntry, len(e.chunks))
	copy(candidates, e.chunks)
	e.mu.RUnlock()

	var matches []Match
	for _, c := range candidates {
		cvec, err := e.embedder.Embed(ctx, c.text)
		if err != nil {
			e.log.Warn("skipping candidate chunk",
				slog.String("doc_id", c.docID),
				slog.Int("chunk", c.index),
				slog.String("error", err.Error()))
			continue
		}
		score := cosine(qvec, cvec)
		if score < e.threshold {
			continue
		}
		matches = append(matches, Match{DocID: c.docID, Index: c.index, Text: c.text, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > e.topK {
		matches = matches[:e.topK]
	}
	return matches, nil
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
