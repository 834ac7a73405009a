package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"brochure-pdf/internal/infra/logging"
)

const (
	keyPrefix  = "pdfcache:"
	minTTL     = time.Minute
	opDeadline = time.Second
)

// PDFCache stores rendered documents in Redis keyed by engine and HTML.
// A nil *PDFCache is a disabled cache.
type PDFCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New returns a cache backed by rdb. TTLs below one minute are raised to one minute.
func New(rdb *redis.Client, ttl time.Duration) *PDFCache {
	if rdb == nil {
		return nil
	}
	if ttl < minTTL {
		ttl = minTTL
	}
	return &PDFCache{rdb: rdb, ttl: ttl}
}

// Key derives the cache key for html rendered by engine.
func Key(engine, html string) string {
	h := sha256.New()
	h.Write([]byte(engine))
	h.Write([]byte{0})
	h.Write([]byte(html))
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached PDF, or nil on a miss. Redis errors are logged and
// reported as a miss.
func (c *PDFCache) Get(ctx context.Context, key string) []byte {
	if c == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, opDeadline)
	defer cancel()

	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		logging.Warn("Redis read failed", "error", err)
		return nil
	}
	logging.Info("PDF cache hit", "key", key)
	return data
}

// Set stores data under key. Failures are logged and otherwise ignored.
func (c *PDFCache) Set(ctx context.Context, key string, data []byte) {
	if c == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, opDeadline)
	defer cancel()

	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logging.Warn("Redis write failed", "error", err)
	}
}

// Ping reports whether Redis is reachable.
func (c *PDFCache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, opDeadline)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}
