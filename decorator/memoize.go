// Package decorator wraps an arbitrary function in a Cache, deriving cache
// keys from its call arguments via keycodec: wrap a function f, producing a
// cached function f' that shares a Cache and a key-derivation strategy.
// Two constructors are provided: NewLRU for a fixed-size cache
// with no TTL, and NewTTL for a TTL-bounded cache with an optional size cap.
package decorator

import (
	"context"
	"time"

	"github.com/mthomsen/coalesce/cache"
	"github.com/mthomsen/coalesce/keycodec"
)

// Func is the wrapped call's shape: any positional arguments, one value or
// an error.
type Func[V any] func(ctx context.Context, args ...interface{}) (V, error)

// config accumulates Memoized construction options.
type config struct {
	skipArgs int
	useCache bool
}

// Option configures a Memoized wrapper.
type Option func(*config)

// WithSkipArgs drops the first n positional arguments from key derivation
// (e.g. a receiver smuggled in as args[0]).
func WithSkipArgs(n int) Option {
	return func(c *config) { c.skipArgs = n }
}

// WithoutCacheByDefault makes Call bypass the cache (always invoking fn)
// unless overridden per-call via CallOptions.UseCache.
func WithoutCacheByDefault() Option {
	return func(c *config) { c.useCache = false }
}

func newConfig(opts []Option) config {
	cfg := config{useCache: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Memoized wraps Func with a Cache and a KeyCodec.
type Memoized[V any] struct {
	cache    cache.Cache[string, V]
	codec    *keycodec.Codec
	fn       Func[V]
	ttl      time.Duration
	ttlSet   bool
	useCache bool
}

// NewLRU builds a fixed-size, TTL-less memoized wrapper around fn: entries
// live until evicted by the LRU policy, never by expiry.
func NewLRU[V any](fn Func[V], maxSize int, opts ...Option) (*Memoized[V], error) {
	cfg := newConfig(opts)
	c, err := cache.New[string, V](cache.Options[string, V]{
		Capacity: maxSize,
	})
	if err != nil {
		return nil, err
	}
	return &Memoized[V]{
		cache:    c,
		codec:    keycodec.New(keycodec.WithSkipArgs(cfg.skipArgs)),
		fn:       fn,
		useCache: cfg.useCache,
	}, nil
}

// NewTTL builds a TTL-bounded memoized wrapper around fn. maxSize <= 0
// means unlimited entry count (TTL is the only eviction pressure).
func NewTTL[V any](fn Func[V], ttl time.Duration, maxSize int, opts ...Option) (*Memoized[V], error) {
	cfg := newConfig(opts)
	capacity := maxSize
	if capacity <= 0 {
		capacity = cache.Unlimited
	}
	c, err := cache.New[string, V](cache.Options[string, V]{
		Capacity:   capacity,
		DefaultTTL: ttl,
	})
	if err != nil {
		return nil, err
	}
	return &Memoized[V]{
		cache:    c,
		codec:    keycodec.New(keycodec.WithSkipArgs(cfg.skipArgs)),
		fn:       fn,
		ttl:      ttl,
		ttlSet:   true,
		useCache: cfg.useCache,
	}, nil
}

// CallOption overrides one Call's cache usage.
type CallOption func(*callConfig)

type callConfig struct {
	useCacheSet bool
	useCache    bool
}

// WithUseCache overrides this call's cache bypass setting.
func WithUseCache(use bool) CallOption {
	return func(c *callConfig) { c.useCacheSet, c.useCache = true, use }
}

// Call derives a key from args and returns the cached value, invoking fn on
// a miss. Concurrent calls sharing the same derived key are coalesced via
// the underlying Cache's SingleFlight.
func (m *Memoized[V]) Call(ctx context.Context, args []interface{}, opts ...CallOption) (V, error) {
	ccfg := callConfig{useCache: m.useCache}
	for _, opt := range opts {
		opt(&ccfg)
	}

	key := m.codec.Key(args...)
	getOpts := []cache.GetOption[string, V]{
		cache.WithLoader[string, V](func(ctx context.Context) (V, error) {
			return m.fn(ctx, args...)
		}),
	}
	if m.ttlSet {
		getOpts = append(getOpts, cache.WithGetTTL[string, V](m.ttl))
	}
	if !ccfg.useCache {
		getOpts = append(getOpts, cache.WithoutCache[string, V]())
	}
	return m.cache.Get(ctx, key, getOpts...)
}

// Invalidate removes the cached result for the call identified by args, if
// present. Returns false if no such entry existed.
func (m *Memoized[V]) Invalidate(args ...interface{}) bool {
	return m.cache.Delete(m.codec.Key(args...))
}

// Clear drops every memoized result.
func (m *Memoized[V]) Clear() { m.cache.Clear() }

// GetMetrics returns the underlying cache's metrics snapshot.
func (m *Memoized[V]) GetMetrics() cache.Snapshot { return m.cache.GetMetrics() }
