package cache

import (
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const defaultCleanupInterval = 5 * time.Minute

// Cache is a typed view over an in-process expiring map.
type Cache[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V)
	Delete(key string)
	Flush()
}

type ttlCache[V any] struct {
	store *gocache.Cache
	ttl   time.Duration
}

// NewTTLCache returns a cache whose entries expire after ttl. A non-positive
// ttl disables caching: Set becomes a no-op.
func NewTTLCache[V any](ttl time.Duration) Cache[V] {
	return &ttlCache[V]{
		store: gocache.New(ttl, defaultCleanupInterval),
		ttl:   ttl,
	}
}

func (c *ttlCache[V]) Get(key string) (V, bool) {
	var zero V
	raw, ok := c.store.Get(key)
	if !ok {
		return zero, false
	}
	value, ok := raw.(V)
	if !ok {
		return zero, false
	}
	return value, true
}

func (c *ttlCache[V]) Set(key string, value V) {
	if c.ttl <= 0 {
		return
	}
	c.store.Set(key, value, c.ttl)
}

func (c *ttlCache[V]) Delete(key string) {
	c.store.Delete(key)
}

func (c *ttlCache[V]) Flush() {
	c.store.Flush()
}

// Key joins non-empty parts into a normalized cache key.
func Key(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
