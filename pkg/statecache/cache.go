// Package statecache persists small pieces of client state between sessions:
// the last zoom scale, the last viewport offset, and a short-TTL copy of the
// full tree used to paint something useful before the first fetch lands.
//
// Everything here is a cache keyed in a local SQLite file with explicit
// expiry, never a source of truth. The tree entry is invalidated after any
// successful mutation.
package statecache

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/tomvdbrandt/canopy/pkg/model"
)

// DefaultTTL is how long cached entries stay valid.
const DefaultTTL = 5 * time.Minute

// Well-known keys.
const (
	keyTree     = "tree"
	keyViewport = "viewport"
)

// Viewport is the persisted scroll/zoom state of the tree view.
type Viewport struct {
	Zoom    float64 `json:"zoom"`
	OffsetX int     `json:"offset_x"`
	OffsetY int     `json:"offset_y"`
}

// Cache is a TTL-expiring key-value store backed by SQLite.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithClock injects a clock, used by tests to exercise expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Open creates or opens the cache database at path.
func Open(path string, opts ...Option) (*Cache, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("opening state cache: %w", err)
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			expires_at INTEGER NOT NULL
		)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state cache schema: %w", err)
	}

	c := &Cache{db: db, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Put stores value under key with the cache TTL.
func (c *Cache) Put(key string, value []byte) error {
	expires := c.now().Add(c.ttl).Unix()
	_, err := c.db.Exec(
		`INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expires)
	if err != nil {
		return fmt.Errorf("writing cache key %q: %w", key, err)
	}
	return nil
}

// Get returns the value for key. ok is false for a miss or an expired entry;
// expired rows are lazily deleted.
func (c *Cache) Get(key string) ([]byte, bool, error) {
	var value []byte
	var expires int64
	err := c.db.QueryRow(`SELECT value, expires_at FROM kv WHERE key = ?`, key).
		Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache key %q: %w", key, err)
	}
	if c.now().Unix() >= expires {
		c.Delete(key)
		return nil, false, nil
	}
	return value, true, nil
}

// Delete removes key. Missing keys are not an error.
func (c *Cache) Delete(key string) error {
	_, err := c.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}

// SaveTree caches the full tree snapshot.
func (c *Cache) SaveTree(nodes []model.Node) error {
	data, err := model.EncodeNodes(nodes)
	if err != nil {
		return err
	}
	return c.Put(keyTree, data)
}

// LoadTree returns the cached tree snapshot if present and fresh.
func (c *Cache) LoadTree() ([]model.Node, bool, error) {
	data, ok, err := c.Get(keyTree)
	if err != nil || !ok {
		return nil, false, err
	}
	nodes, err := model.DecodeNodes(data)
	if err != nil {
		// A corrupt cache entry is a miss, not a failure.
		c.Delete(keyTree)
		return nil, false, nil
	}
	return nodes, true, nil
}

// InvalidateTree drops the cached tree. Called after any successful mutation
// so a stale snapshot can never shadow server state.
func (c *Cache) InvalidateTree() error {
	return c.Delete(keyTree)
}

// SaveViewport persists the scroll/zoom state.
func (c *Cache) SaveViewport(v Viewport) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Put(keyViewport, data)
}

// LoadViewport returns the persisted scroll/zoom state if fresh.
func (c *Cache) LoadViewport() (Viewport, bool, error) {
	data, ok, err := c.Get(keyViewport)
	if err != nil || !ok {
		return Viewport{}, false, err
	}
	var v Viewport
	if err := json.Unmarshal(data, &v); err != nil {
		c.Delete(keyViewport)
		return Viewport{}, false, nil
	}
	return v, true, nil
}
