package cache

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/spotterhq/spotter/internal/storage"
	"github.com/spotterhq/spotter/pkg/core"
)

// keyPrecision is the origin rounding step in degrees. Queries whose origins
// round to the same cell share an entry.
const keyPrecision = 0.001

// cellSlack widens the upstream radius so one entry covers every origin in
// its cell: 0.001 degrees is at most ~157 m diagonally.
const cellSlack = 160.0

// CandidateCache memoizes candidate lookups per category and origin cell.
// Aircraft move, so their entries use a much shorter TTL than static objects.
// Errors are never cached.
type CandidateCache struct {
	next        storage.Source
	store       *gocache.Cache
	ttl         time.Duration
	aircraftTTL time.Duration

	Hits   SafeCounter
	Misses SafeCounter
}

// NewCandidateCache wraps next. Entries expire after ttl, or aircraftTTL for aircraft.
func NewCandidateCache(next storage.Source, ttl, aircraftTTL time.Duration) *CandidateCache {
	return &CandidateCache{
		next:        next,
		store:       gocache.New(ttl, 2*ttl),
		ttl:         ttl,
		aircraftTTL: aircraftTTL,
	}
}

func cacheKey(category core.Category, origin core.GeoCoordinate, radius float64) string {
	lat := math.Round(origin.Latitude/keyPrecision) * keyPrecision
	lon := math.Round(origin.Longitude/keyPrecision) * keyPrecision
	return fmt.Sprintf("%s|%.3f|%.3f|%.0f", category, lat, lon, radius)
}

// FetchCandidates serves from the cache or falls through to the wrapped source.
// Callers must filter by exact distance since cached sets cover a whole cell.
func (c *CandidateCache) FetchCandidates(ctx context.Context, category core.Category, origin core.GeoCoordinate, radius float64) ([]core.CandidateObject, error) {
	key := cacheKey(category, origin, radius)
	if v, ok := c.store.Get(key); ok {
		c.Hits.Inc()
		return clone(v.([]core.CandidateObject)), nil
	}
	c.Misses.Inc()

	objs, err := c.next.FetchCandidates(ctx, category, origin, radius+cellSlack)
	if err != nil {
		return nil, err
	}

	ttl := c.ttl
	if category.IsAircraft() {
		ttl = c.aircraftTTL
	}
	c.store.Set(key, clone(objs), ttl)
	return objs, nil
}

// Flush drops every entry.
func (c *CandidateCache) Flush() {
	c.store.Flush()
}

// Len returns the number of cached entries, including expired ones not yet evicted.
func (c *CandidateCache) Len() int {
	return c.store.ItemCount()
}

func clone(objs []core.CandidateObject) []core.CandidateObject {
	if objs == nil {
		return nil
	}
	out := make([]core.CandidateObject, len(objs))
	copy(out, objs)
	return out
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
