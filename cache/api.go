package cache

import (
	"context"
	"fmt"
	"time"
)

// LoadFunc is the unary loader contract: no arguments beyond the
// context, returns a value or an error.
type LoadFunc[V any] func(ctx context.Context) (V, error)

// BatchLoadFunc is the batch loader contract: takes the batch's key
// list in enrolment order, returns a mapping. (BatchLoadFuncSlice is the
// alternative for loaders that prefer positional results.)
type BatchLoadFunc[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

// BatchLoadFuncSlice is the positional-result variant of BatchLoadFunc: the
// returned slice must be aligned index-for-index with the requested keys.
type BatchLoadFuncSlice[K comparable, V any] func(ctx context.Context, keys []K) ([]V, error)

// Cache is the public facade. All methods are safe for
// concurrent use by multiple goroutines.
type Cache[K comparable, V any] interface {
	// Get looks up key. On a hit it touches the entry to MRU and returns.
	// On a miss, it routes through whichever loader was supplied via opts:
	// a BatchLoader through the BatchCoalescer, a Loader through
	// SingleFlight, or neither, in which case it returns ErrNoLoader.
	Get(ctx context.Context, key K, opts ...GetOption[K, V]) (V, error)

	// Add inserts key→value only if key is not already present, using the
	// cache's DefaultTTL. Returns false if the key already exists.
	Add(key K, value V) bool

	// Set inserts or overwrites key→value, using DefaultTTL unless
	// overridden by a SetOption, and touches the entry to MRU.
	Set(key K, value V, opts ...SetOption)

	// Delete removes key if present and returns true on success. It does
	// not cancel an in-flight load for key: that load, on
	// completion, still inserts and wakes its waiters.
	Delete(key K) bool

	// Clear drops all entries. It does not abort in-flight loads or
	// batches, and does not reset metrics.
	Clear()

	// Warmup invokes loaders[k] (through SingleFlight, so a concurrent Get
	// for the same key joins) for every key currently absent, and Sets the
	// result with DefaultTTL. A per-key failure does not abort the rest;
	// failures are joined and returned together.
	Warmup(ctx context.Context, loaders map[K]LoadFunc[V]) error

	// GetMetrics returns a consistent snapshot of the cache's counters.
	GetMetrics() Snapshot

	// Len returns the number of resident entries across all shards.
	Len() int

	// Close marks the cache closed; in-flight loads and batches still run
	// to completion. Current implementation is a
	// soft close and always returns nil.
	Close() error
}

// getConfig accumulates one Get call's optional parameters.
type getConfig[K comparable, V any] struct {
	loader      LoadFunc[V]
	batchLoader BatchLoadFunc[K, V]
	batchID     string
	ttl         time.Duration
	ttlSet      bool
	useCache    bool
}

// GetOption configures a single Get call.
type GetOption[K comparable, V any] func(*getConfig[K, V])

// WithLoader routes a miss through SingleFlight via the unary loader fn.
func WithLoader[K comparable, V any](fn LoadFunc[V]) GetOption[K, V] {
	return func(c *getConfig[K, V]) { c.loader = fn }
}

// WithBatchLoader routes a miss through the BatchCoalescer. id identifies
// the batch loader's identity: concurrent Get calls sharing the
// same id within one BatchWindow are coalesced into a single fn invocation.
func WithBatchLoader[K comparable, V any](id string, fn BatchLoadFunc[K, V]) GetOption[K, V] {
	return func(c *getConfig[K, V]) {
		c.batchLoader = fn
		c.batchID = id
	}
}

// WithBatchLoaderSlice routes a miss through the BatchCoalescer using the
// positional-result batch contract: fn
// returns a slice aligned index-for-index with the requested keys instead
// of a mapping. It is adapted internally into the mapping shape the
// coalescer expects, so it shares buckets and windowing with
// WithBatchLoader calls made under the same id.
func WithBatchLoaderSlice[K comparable, V any](id string, fn BatchLoadFuncSlice[K, V]) GetOption[K, V] {
	return func(c *getConfig[K, V]) {
		c.batchLoader = func(ctx context.Context, keys []K) (map[K]V, error) {
			vals, err := fn(ctx, keys)
			if err != nil {
				return nil, err
			}
			if len(vals) != len(keys) {
				return nil, fmt.Errorf("batch: positional result length %d does not match %d requested keys", len(vals), len(keys))
			}
			out := make(map[K]V, len(keys))
			for i, k := range keys {
				out[k] = vals[i]
			}
			return out, nil
		}
		c.batchID = id
	}
}

// WithGetTTL overrides DefaultTTL for the entry a successful WithLoader
// call stores. A non-positive ttl means "do not cache the loaded value":
// the loader still runs and its value is returned, but no entry is
// created. It has no effect on a WithBatchLoader/WithBatchLoaderSlice call;
// a successful batch result is always stored with DefaultTTL.
func WithGetTTL[K comparable, V any](ttl time.Duration) GetOption[K, V] {
	return func(c *getConfig[K, V]) { c.ttl, c.ttlSet = ttl, true }
}

// WithoutCache bypasses the hit path entirely: the call always takes the
// miss path and its loaded result is Set. Through SingleFlight, concurrent
// use_cache=true callers for the same key collapse into this call, and this
// call joins a load for the key that is already in flight instead of
// starting a second one.
func WithoutCache[K comparable, V any]() GetOption[K, V] {
	return func(c *getConfig[K, V]) { c.useCache = false }
}

func newGetConfig[K comparable, V any](opts []GetOption[K, V]) getConfig[K, V] {
	cfg := getConfig[K, V]{useCache: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// setConfig accumulates one Set call's optional parameters.
type setConfig struct {
	ttl    time.Duration
	ttlSet bool
}

// SetOption configures a single Set call.
type SetOption func(*setConfig)

// WithSetTTL overrides DefaultTTL for this Set call. A non-positive ttl
// disables expiration for this entry (distinct from Get's "don't cache"
// non-positive convention — Set always stores).
func WithSetTTL(ttl time.Duration) SetOption {
	return func(c *setConfig) { c.ttl, c.ttlSet = ttl, true }
}

func newSetConfig(opts []SetOption) setConfig {
	var cfg setConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
