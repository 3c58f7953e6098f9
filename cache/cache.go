// Package cache memoizes computed routes. Entries are tagged with the graph version they were computed
// against and a lookup at any other version misses, so processes sharing one store never serve a route
// from an older graph.
package cache

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/pkg/errors"

	"github.com/autom8ter/pathfinder/graph"
)

// Options configures a RouteCache.
type Options struct {
	// LifeWindow is how long an entry lives. Defaults to 10 minutes.
	LifeWindow time.Duration
	// CleanWindow is the interval between expired entry sweeps. Defaults to 1 minute.
	CleanWindow time.Duration
	// Shards must be a power of two. Defaults to 64.
	Shards int
	// MaxEntriesInWindow sizes the initial allocation. Defaults to 10000.
	MaxEntriesInWindow int
}

// RouteCache is a concurrency safe cache of routes keyed by (from, to).
type RouteCache struct {
	c *bigcache.BigCache
}

// New creates a RouteCache. The cache's janitor stops when ctx is cancelled.
func New(ctx context.Context, opts Options) (*RouteCache, error) {
	if opts.LifeWindow <= 0 {
		opts.LifeWindow = 10 * time.Minute
	}
	if opts.CleanWindow <= 0 {
		opts.CleanWindow = time.Minute
	}
	if opts.Shards <= 0 {
		opts.Shards = 64
	}
	if opts.MaxEntriesInWindow <= 0 {
		opts.MaxEntriesInWindow = 10000
	}
	cfg := bigcache.DefaultConfig(opts.LifeWindow)
	cfg.CleanWindow = opts.CleanWindow
	cfg.Shards = opts.Shards
	cfg.MaxEntriesInWindow = opts.MaxEntriesInWindow
	cfg.MaxEntrySize = 8 + 4*16
	cfg.Verbose = false
	c, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "cache: failed to create route cache")
	}
	return &RouteCache{c: c}, nil
}

func key(from, to graph.Node) string {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(graph.KeyOf(from, to)))
	return string(b)
}

// Get returns the route cached for (from, to) at graph version.
func (r *RouteCache) Get(from, to graph.Node, version uint64) (graph.Route, bool) {
	raw, err := r.c.Get(key(from, to))
	if err != nil || len(raw) < 8 {
		return nil, false
	}
	if binary.BigEndian.Uint64(raw[:8]) != version {
		return nil, false
	}
	nodes, err := graph.DecodeNodes(raw[8:])
	if err != nil {
		return nil, false
	}
	return graph.Route(nodes), true
}

// Set caches route for (from, to), computed at graph version.
func (r *RouteCache) Set(from, to graph.Node, version uint64, route graph.Route) error {
	entry := make([]byte, 8, 8+4*len(route))
	binary.BigEndian.PutUint64(entry, version)
	entry = append(entry, graph.EncodeNodes(route)...)
	return errors.Wrap(r.c.Set(key(from, to), entry), "cache: set")
}

// Reset drops every entry.
func (r *RouteCache) Reset() error {
	return errors.Wrap(r.c.Reset(), "cache: reset")
}

// Len returns the number of cached routes.
func (r *RouteCache) Len() int {
	return r.c.Len()
}

// Stats returns hit and miss counters.
func (r *RouteCache) Stats() bigcache.Stats {
	return r.c.Stats()
}

// Close stops the janitor and releases memory.
func (r *RouteCache) Close() error {
	return r.c.Close()
}
