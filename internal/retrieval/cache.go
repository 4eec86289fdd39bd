package retrieval

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Cache is the process-wide embedding cache. Entries are keyed by exact
// content and persisted before a computed vector is ever returned, so a
// restart never re-embeds text it has already paid for. Writes replace the
// whole entry; concurrent writers for the same text race benignly
// (last writer wins, both wrote a valid vector for identical content).
type Cache struct {
	mu    sync.RWMutex
	db    *sql.DB
	log   *slog.Logger
	clock func() time.Time
}

func OpenCache(ctx context.Context, path string, log *slog.Logger) (*Cache, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS embeddings (
    content_key TEXT PRIMARY KEY,
    model TEXT,
    vector BLOB NOT NULL,
    created_at TIMESTAMP NOT NULL
);
`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}

	return &Cache{
		db:    db,
		log:   log.With(slog.String("component", "embedding-cache")),
		clock: time.Now,
	}, nil
}

func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func contentKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached vector for text, if present.
func (c *Cache) Get(ctx context.Context, text string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var blob []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT vector FROM embeddings WHERE content_key = ?`, contentKey(text)).Scan(&blob)
	if err != nil {
		if err != sql.ErrNoRows {
			c.log.Warn("cache lookup failed", slog.String("error", err.Error()))
		}
		return nil, false
	}
	vec, err := decodeVector(blob)
	if err != nil {
		c.log.Warn("cache entry undecodable", slog.String("error", err.Error()))
		return nil, false
	}
	return vec, true
}

// Put persists the vector for text, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, text, model string, vec []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO embeddings(content_key, model, vector, created_at)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(content_key) DO UPDATE SET model=excluded.model, vector=excluded.vector, created_at=excluded.created_at`,
		contentKey(text), model, encodeVector(vec), c.clock().UTC())
	if err != nil {
		return fmt.Errorf("persist embedding: %w", err)
	}
	return nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}
