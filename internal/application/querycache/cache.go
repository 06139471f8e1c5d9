package querycache

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultStale is how long a cached list is served without refetching.
const DefaultStale = 30 * time.Second

// Resource names
const (
	ResourceSessions     = "sessions"
	ResourceGoals        = "goals"
	ResourcePayments     = "payments"
	ResourceUsers        = "users"
	ResourceOrganization = "organization"
)

// Key identifies one cached query.
type Key struct {
	Resource string
	Scope    string // e.g. "org=o1;coach=c1"
	Filters  string // encoded query parameters
}

// String returns a stable representation of k.
func (k Key) String() string {
	return k.Resource + "|" + k.Scope + "|" + k.Filters
}

type entry struct {
	value     any
	fetchedAt time.Time
}

// Options configures a Cache. Zero values take the defaults.
type Options struct {
	Stale time.Duration
	Now   func() time.Time
}

// Cache is the process-wide query cache. Each resource carries a generation
// that Invalidate bumps; a fetch started under an older generation never
// repopulates the cache.
type Cache struct {
	stale time.Duration
	now   func() time.Time
	group singleflight.Group

	mu      sync.Mutex
	entries map[Key]entry
	gens    map[string]uint64

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates an empty Cache.
func New(opts Options) *Cache {
	c := &Cache{
		stale:   opts.Stale,
		now:     opts.Now,
		entries: make(map[Key]entry),
		gens:    make(map[string]uint64),
	}
	if c.stale <= 0 {
		c.stale = DefaultStale
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Get returns the cached value for key or calls fetch. Concurrent misses for
// the same key and generation share one fetch.
// PRE: every Get for key uses the same T
// POST: On success the value is cached unless key.Resource was invalidated meanwhile
func Get[T any](ctx context.Context, c *Cache, key Key, fetch func(ctx context.Context) (T, error)) (T, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && c.now().Sub(e.fetchedAt) < c.stale {
		c.mu.Unlock()
		if v, ok := e.value.(T); ok {
			c.hits.Add(1)
			return v, nil
		}
	} else {
		c.mu.Unlock()
	}
	c.misses.Add(1)

	c.mu.Lock()
	gen := c.gens[key.Resource]
	c.mu.Unlock()

	flight := key.String() + "#" + strconv.FormatUint(gen, 10)
	v, err, shared := c.group.Do(flight, func() (any, error) {
		val, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gens[key.Resource] == gen {
			c.entries[key] = entry{value: val, fetchedAt: c.now()}
		} else {
			log.Debug().Str("key", key.String()).Msg("cache_fill_discarded")
		}
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if shared {
		log.Debug().Str("key", key.String()).Msg("cache_fetch_shared")
	}
	return v.(T), nil
}

// Invalidate drops every entry of resource and bumps its generation.
// Call only after the mutation that changed resource has succeeded.
// POST: No fetch started before the call can repopulate resource
func (c *Cache) Invalidate(resources ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range resources {
		c.gens[r]++
		for k := range c.entries {
			if k.Resource == r {
				delete(c.entries, k)
			}
		}
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns hit and miss counters.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Optimistic is an in-progress optimistic change to one resource.
// Use: Snapshot, then Apply, then exactly one of Commit or Rollback.
type Optimistic struct {
	cache    *Cache
	resource string
	gen      uint64
	saved    map[Key]entry
	done     bool
}

// Snapshot records the current entries of resource.
func (c *Cache) Snapshot(resource string) *Optimistic {
	c.mu.Lock()
	defer c.mu.Unlock()
	saved := make(map[Key]entry)
	for k, e := range c.entries {
		if k.Resource == resource {
			saved[k] = e
		}
	}
	return &Optimistic{cache: c, resource: resource, gen: c.gens[resource], saved: saved}
}

// Apply replaces every cached value of type T in the snapshot's resource with
// f(value). f must return a new value rather than mutate its argument.
// PRE: Commit and Rollback have not been called
func Apply[T any](o *Optimistic, f func(T) T) {
	c := o.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	if o.done || c.gens[o.resource] != o.gen {
		return
	}
	for k, e := range c.entries {
		if k.Resource != o.resource {
			continue
		}
		if v, ok := e.value.(T); ok {
			e.value = f(v)
			c.entries[k] = e
		}
	}
}

// Commit ends the change after the server accepted it and invalidates the
// resource so the next read refetches.
func (o *Optimistic) Commit() {
	if o.done {
		return
	}
	o.done = true
	o.cache.Invalidate(o.resource)
}

// Rollback restores the snapshot after the server rejected the change.
// Entries are left alone if the resource was invalidated since Snapshot.
func (o *Optimistic) Rollback() {
	if o.done {
		return
	}
	o.done = true
	c := o.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[o.resource] != o.gen {
		return
	}
	for k := range c.entries {
		if k.Resource == o.resource {
			delete(c.entries, k)
		}
	}
	for k, e := range o.saved {
		c.entries[k] = e
	}
}
