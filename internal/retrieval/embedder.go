package retrieval

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Embedder defines a pluggable text embedding backend.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CachingEmbedder wraps a backend with the durable cache. A cache hit never
// touches the backend; a miss embeds, persists, then returns.
type CachingEmbedder struct {
	backend Embedder
	cache   *Cache
	model   string
}

func NewCachingEmbedder(backend Embedder, cache *Cache, model string) *CachingEmbedder {
	return &CachingEmbedder{backend: backend, cache: cache, model: model}
}

func (e *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.cache.Get(ctx, text); ok {
		return vec, nil
	}
	vec, err := e.backend.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := e.cache.Put(ctx, text, e.model, vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// mockEmbedder derives a deterministic unit vector from the content hash, so
// identical texts rank identically across runs without any backend.
type mockEmbedder struct {
	dim int
}

func NewMockEmbedder(dim int) Embedder {
	if dim <= 0 {
		dim = 64
	}
	return &mockEmbedder{dim: dim}
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, m.dim)
	var norm float64
	for i := range vec {
		bits := binary.LittleEndian.Uint32(sum[(i*4)%28:])
		v := float32(bits%1000)/500 - 1
		vec[i] = v
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}

type ollamaEmbedder struct {
	endpoint string
	model    string
	client   *http.Client
}

func NewOllamaEmbedder(endpoint, model string) Embedder {
	return &ollamaEmbedder{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (e *ollamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: []string{text}})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ollama returned status %s", resp.Status)
	}

	var parsed ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode ollama embeddings: %w", err)
	}
	if len(parsed.Embeddings) == 0 {
		return nil, errors.New("ollama returned no embeddings")
	}
	return parsed.Embeddings[0], nil
}

type openaiEmbedder struct {
	client openai.Client
	model  string
}

func NewOpenAIEmbedder(apiKey, model string) (Embedder, error) {
	if apiKey == "" {
		return nil, errors.New("openai embedding backend requires an API key")
	}
	return &openaiEmbedder{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

func (e *openaiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai returned no embeddings")
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
