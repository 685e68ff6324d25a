package rewrite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/eclectech/internal/observe"
	"github.com/MrWong99/eclectech/pkg/store"
)

// KeyPrefix prefixes every cache key in the backing store.
const KeyPrefix = "accessibilityHtml:"

// DefaultMinLength is the length a cached document must exceed to be
// considered valid. Anything shorter is a truncated or failed rewrite.
const DefaultMinLength = 100

// ErrInvalidEntry is returned by [Cache.Put] for markup that would fail the
// read-side validity check.
var ErrInvalidEntry = errors.New("rewrite: cache entry too short")

// Key returns the store key for fingerprint fp.
func Key(fp string) string { return KeyPrefix + fp }

// CacheEntry describes one cached rewrite.
type CacheEntry struct {
	Fingerprint string
	ID          string
	Size        int
	UpdatedAt   time.Time
}

// CacheOption configures a [Cache].
type CacheOption func(*Cache)

// WithMinLength overrides [DefaultMinLength]. Non-positive values are ignored.
func WithMinLength(n int) CacheOption {
	return func(c *Cache) {
		if n > 0 {
			c.minLen = n
		}
	}
}

// WithCacheMetrics records lookups on m instead of [observe.DefaultMetrics].
func WithCacheMetrics(m *observe.Metrics) CacheOption {
	return func(c *Cache) { c.metrics = m }
}

// Cache stores finished rewrites keyed by feature fingerprint. It is safe for
// concurrent use.
type Cache struct {
	kv      store.KV
	minLen  int
	metrics *observe.Metrics
}

// NewCache returns a cache over kv.
func NewCache(kv store.KV, opts ...CacheOption) *Cache {
	c := &Cache{kv: kv, minLen: DefaultMinLength}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// MinLength returns the validity threshold in bytes.
func (c *Cache) MinLength() int { return c.minLen }

func (c *Cache) valid(markup string) bool { return len(markup) > c.minLen }

// Get returns the markup cached for fp. An entry that fails validation is
// removed and reported as absent.
func (c *Cache) Get(ctx context.Context, fp string) (string, bool, error) {
	v, ok, err := c.kv.Get(ctx, Key(fp))
	if err != nil {
		return "", false, fmt.Errorf("rewrite: cache get: %w", err)
	}
	if !ok {
		c.metrics.RecordCacheLookup(ctx, observe.CacheMiss)
		return "", false, nil
	}
	if !c.valid(v) {
		c.metrics.RecordCacheLookup(ctx, observe.CacheInvalid)
		slog.Warn("evicting invalid cached rewrite", "fingerprint", fp, "bytes", len(v))
		if err := c.kv.Delete(ctx, Key(fp)); err != nil {
			return "", false, fmt.Errorf("rewrite: cache evict: %w", err)
		}
		return "", false, nil
	}
	c.metrics.RecordCacheLookup(ctx, observe.CacheHit)
	return v, true, nil
}

// Put stores markup under fp. Markup that would not pass validation is
// rejected with [ErrInvalidEntry].
func (c *Cache) Put(ctx context.Context, fp, markup string) error {
	if !c.valid(markup) {
		return fmt.Errorf("%w: %d bytes, need more than %d", ErrInvalidEntry, len(markup), c.minLen)
	}
	if err := c.kv.Put(ctx, Key(fp), markup); err != nil {
		return fmt.Errorf("rewrite: cache put: %w", err)
	}
	return nil
}

// Invalidate removes the entry for fp.
func (c *Cache) Invalidate(ctx context.Context, fp string) error {
	if err := c.kv.Delete(ctx, Key(fp)); err != nil {
		return fmt.Errorf("rewrite: cache invalidate: %w", err)
	}
	return nil
}

// List returns every cached rewrite ordered by fingerprint.
func (c *Cache) List(ctx context.Context) ([]CacheEntry, error) {
	entries, err := c.kv.List(ctx, KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("rewrite: cache list: %w", err)
	}
	out := make([]CacheEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, CacheEntry{
			Fingerprint: strings.TrimPrefix(e.Key, KeyPrefix),
			ID:          e.ID,
			Size:        len(e.Value),
			UpdatedAt:   e.UpdatedAt,
		})
	}
	return out, nil
}

// Purge removes every cached rewrite and returns how many were removed.
func (c *Cache) Purge(ctx context.Context) (int, error) {
	entries, err := c.kv.List(ctx, KeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("rewrite: cache purge: %w", err)
	}
	var errs []error
	n := 0
	for _, e := range entries {
		if err := c.kv.Delete(ctx, e.Key); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	if len(errs) > 0 {
		return n, fmt.Errorf("rewrite: cache purge: %w", errors.Join(errs...))
	}
	return n, nil
}
