// Package assets caches tile payloads in front of the fetchers.
//
// Imagery is fetched progressively: the first request for a tile asks for the
// prefix its coarsest resolution needs, later requests extend the cached
// bytes with only the missing tail.
package assets

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Faultbox/globestream/internal/network"
)

// Config sizes the cache.
type Config struct {
	MaxBytes    int64
	NumCounters int64
}

// DefaultConfig returns a 256 MB cache.
func DefaultConfig() Config {
	return Config{
		MaxBytes:    256 << 20,
		NumCounters: 100000,
	}
}

// Stats is a snapshot of cache activity.
type Stats struct {
	Hits         int64
	Misses       int64
	BytesFetched int64
}

type entry struct {
	data     []byte
	complete bool // data is the whole payload
}

func (e *entry) satisfies(need int64) bool {
	if e.complete {
		return true
	}
	return need > 0 && int64(len(e.data)) >= need
}

// Cache holds payload bytes keyed by server and path.
type Cache struct {
	fetcher network.Fetcher
	store   *ristretto.Cache[string, *entry]
	group   singleflight.Group
	log     *zap.Logger

	hits    atomic.Int64
	misses  atomic.Int64
	fetched atomic.Int64
}

// New creates a cache reading through fetcher.
func New(fetcher network.Fetcher, cfg Config, log *zap.Logger) (*Cache, error) {
	if log == nil {
		log = zap.NewNop()
	}
	store, err := ristretto.NewCache(&ristretto.Config[string, *entry]{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating payload cache: %w", err)
	}
	return &Cache{
		fetcher: fetcher,
		store:   store,
		log:     log.Named("assets"),
	}, nil
}

func cacheKey(srv network.Server, path string) string {
	return fmt.Sprintf("%d|%s", srv.ID, path)
}

// Get returns at least need bytes of the payload at path, or the whole
// payload when need is 0 or the payload is shorter. The returned slice is
// shared and must not be modified.
func (c *Cache) Get(ctx context.Context, srv network.Server, path string, need int64) ([]byte, error) {
	key := cacheKey(srv, path)

	if e, ok := c.store.Get(key); ok && e.satisfies(need) {
		c.hits.Add(1)
		return e.data, nil
	}
	c.misses.Add(1)

	for {
		v, err, _ := c.group.Do(key, func() (any, error) {
			return c.extend(ctx, key, srv, path, need)
		})
		if err != nil {
			return nil, err
		}
		// A coalesced flight may have been sized for a smaller request.
		if e := v.(*entry); e.satisfies(need) {
			return e.data, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// extend fetches the bytes missing from the cached prefix.
func (c *Cache) extend(ctx context.Context, key string, srv network.Server, path string, need int64) (*entry, error) {
	cur, ok := c.store.Get(key)
	if ok && cur.satisfies(need) {
		return cur, nil
	}

	var have []byte
	if ok {
		have = cur.data
	}
	rng := network.Range{Offset: int64(len(have))}
	if need > 0 {
		rng.Length = need - rng.Offset
	}

	got, err := c.fetcher.Fetch(ctx, srv, path, rng)
	if err != nil {
		return nil, err
	}
	c.fetched.Add(int64(len(got)))

	data := make([]byte, 0, len(have)+len(got))
	data = append(data, have...)
	data = append(data, got...)

	e := &entry{
		data:     data,
		complete: rng.Length == 0 || int64(len(got)) < rng.Length,
	}
	if len(data) == 0 && !e.complete {
		e.complete = true
	}

	cost := int64(len(data))
	if cost == 0 {
		cost = 1
	}
	if !c.store.Set(key, e, cost) {
		c.log.Debug("payload not admitted", zap.String("path", path), zap.Int64("bytes", cost))
	}
	c.store.Wait()

	c.log.Debug("fetched payload",
		zap.String("path", path),
		zap.Int64("offset", rng.Offset),
		zap.Int("bytes", len(got)),
		zap.Bool("complete", e.complete))
	return e, nil
}

// Invalidate drops a cached payload.
func (c *Cache) Invalidate(srv network.Server, path string) {
	c.store.Del(cacheKey(srv, path))
}

// Stats returns cache statistics.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		BytesFetched: c.fetched.Load(),
	}
}

// Close releases the cache.
func (c *Cache) Close() {
	c.store.Close()
}
