// Package cache stores timestamped result snapshots with TTL-based expiry.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/justestif/lastfm-recommender/internal/metrics"
	"github.com/justestif/lastfm-recommender/internal/store"
)

// DefaultTTL is how long an entry stays valid after it is written.
const DefaultTTL = time.Hour

// Entry is one persisted snapshot.
type Entry struct {
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Decode unmarshals the snapshot payload into v.
func (e *Entry) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Key derives the storage key for an operation and its ordered parameters.
// Identical inputs always produce the same key; parameter order matters.
func Key(op string, params ...string) string {
	if params == nil {
		params = []string{}
	}
	encoded, _ := json.Marshal(params)

	h := sha256.New()
	h.Write([]byte(op))
	h.Write(encoded)
	return hex.EncodeToString(h.Sum(nil))
}

// Cache reads and writes entries through a store.Store.
type Cache struct {
	store  store.Store
	ttl    int64
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock sets the time source used for timestamps and expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Cache. A non-positive ttl selects DefaultTTL.
// The TTL is truncated to whole seconds.
func New(s store.Store, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		store:  s,
		ttl:    int64(ttl / time.Second),
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured lifetime.
func (c *Cache) TTL() time.Duration {
	return time.Duration(c.ttl) * time.Second
}

// Get returns the entry for key, or nil if it is missing, expired or
// unreadable as an entry. An error is returned only when the store itself
// fails.
func (c *Cache) Get(ctx context.Context, key string) (*Entry, error) {
	entry, err := c.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, nil
	}
	if c.expired(entry) {
		metrics.CacheLookups.WithLabelValues("expired").Inc()
		return nil, nil
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return entry, nil
}

// Put overwrites key with data stamped at the current time.
func (c *Cache) Put(ctx context.Context, key string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding cache payload: %w", err)
	}
	raw, err := json.Marshal(Entry{Timestamp: c.now().Unix(), Data: payload})
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	if err := c.store.Put(ctx, key, raw); err != nil {
		return &store.PersistenceError{Op: "cache put", Key: key, Err: err}
	}
	return nil
}

// Expiry returns the seconds remaining before key expires. It is 0 when no
// readable entry exists and negative once the entry has expired.
func (c *Cache) Expiry(ctx context.Context, key string) int64 {
	entry, err := c.load(ctx, key)
	if err != nil || entry == nil {
		return 0
	}
	return entry.Timestamp + c.ttl - c.now().Unix()
}

// Delete removes a single entry.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.store.Delete(ctx, key); err != nil {
		return &store.PersistenceError{Op: "cache delete", Key: key, Err: err}
	}
	return nil
}

// Purge removes every entry.
func (c *Cache) Purge(ctx context.Context) error {
	if err := c.store.Purge(ctx); err != nil {
		return &store.PersistenceError{Op: "cache purge", Err: err}
	}
	c.logger.Info("cache purged")
	return nil
}

func (c *Cache) expired(e *Entry) bool {
	return c.now().Unix()-e.Timestamp >= c.ttl
}

// load reads and decodes an entry without expiry checks. Corrupt entries
// are logged and reported as absent.
func (c *Cache) load(ctx context.Context, key string) (*Entry, error) {
	raw, err := c.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil || entry.Timestamp == 0 {
		c.logger.Warn("ignoring corrupt cache entry", zap.String("key", key), zap.Error(err))
		return nil, nil
	}
	return &entry, nil
}
