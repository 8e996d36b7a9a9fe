package naming

import (
	"context"
	"math"
	"sync"

	"github.com/ryanbastic/go-geodrop/internal/geo"
)

type cacheKey struct{ lat, lng int64 }

// Cached memoises successful resolutions on a grid of roughly 11 m
// (4 decimal places). Failures are not cached.
type Cached struct {
	next Resolver

	mu      sync.RWMutex
	entries map[cacheKey]string
	order   []cacheKey
	limit   int
}

// NewCached wraps next with a cache holding at most limit names.
func NewCached(next Resolver, limit int) *Cached {
	if limit <= 0 {
		limit = 1024
	}
	return &Cached{next: next, entries: make(map[cacheKey]string, limit), limit: limit}
}

func keyFor(c geo.Coordinate) cacheKey {
	return cacheKey{lat: int64(math.Round(c.Lat * 1e4)), lng: int64(math.Round(c.Lng * 1e4))}
}

func (c *Cached) Resolve(ctx context.Context, loc geo.Coordinate) (string, error) {
	k := keyFor(loc)
	c.mu.RLock()
	name, ok := c.entries[k]
	c.mu.RUnlock()
	if ok {
		return name, nil
	}

	name, err := c.next.Resolve(ctx, loc)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	if _, exists := c.entries[k]; !exists {
		if len(c.order) >= c.limit {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, k)
	}
	c.entries[k] = name
	c.mu.Unlock()
	return name, nil
}

// Len reports the number of cached names.
func (c *Cached) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
