package cache

import (
	"context"
	goerrors "errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mthomsen/coalesce/internal/batch"
	"github.com/mthomsen/coalesce/internal/singleflight"
	"github.com/mthomsen/coalesce/internal/util"
	"github.com/mthomsen/coalesce/policy/lru"
)

// cacheImpl is a sharded in-memory KV store with a pluggable eviction
// policy, single-flight load coalescing, and DataLoader-style batch
// coalescing. All methods are safe for concurrent use by multiple
// goroutines.
type cacheImpl[K comparable, V any] struct {
	shards []*shard[K, V]
	hash   func(K) uint64
	closed atomic.Bool

	opt     Options[K, V]
	metrics atomicMetrics

	sf    singleflight.Group[K, V]
	batch *batch.Coalescer[K, V]
}

// New constructs a cache from opt, returning a ConfigError if opt is
// invalid. Defaults (nil Metrics/Logger/Clock, zero Shards/Capacity/
// MaxBatchSize, nil Policy) are applied as documented on Options.
func New[K comparable, V any](opt Options[K, V]) (Cache[K, V], error) {
	if err := opt.validate(); err != nil {
		return nil, err
	}
	if opt.Policy == nil {
		opt.Policy = lru.New[K, V]()
	}

	sh := opt.Shards
	if sh <= 0 {
		sh = util.ReasonableShardCount()
	} else {
		sh = int(util.NextPow2(uint64(sh)))
	}
	opt.Shards = sh

	c := &cacheImpl[K, V]{
		hash: util.Fnv64a[K],
		opt:  opt,
	}
	c.opt.metrics = &c.metrics

	perShardCap := opt.Capacity
	if perShardCap != Unlimited {
		perShardCap = (opt.Capacity + sh - 1) / sh
	}
	c.shards = make([]*shard[K, V], sh)
	for i := range c.shards {
		c.shards[i] = newShard[K, V](perShardCap, opt.Policy, &c.opt)
	}

	c.batch = batch.New[K, V](opt.BatchWindow, opt.MaxBatchSize, func(loaderID string, keys int) {
		c.metrics.recordBatchCall()
		c.opt.Metrics.BatchCall(keys)
	}, opt.Logger)

	return c, nil
}

// ---- Cache[K,V] implementation ----

// Get implements the unified facade lookup. See GetOption for the
// supported per-call parameters.
func (c *cacheImpl[K, V]) Get(ctx context.Context, key K, opts ...GetOption[K, V]) (V, error) {
	cfg := newGetConfig[K, V](opts)

	if cfg.useCache {
		if v, ok := c.getShard(key).get(key, c.now()); ok {
			c.metrics.recordHit()
			return v, nil
		}
	}

	switch {
	case cfg.batchLoader != nil:
		return c.getViaBatch(ctx, key, cfg)
	case cfg.loader != nil:
		return c.getViaLoader(ctx, key, cfg)
	default:
		c.metrics.recordMiss()
		var zero V
		return zero, ErrNoLoader
	}
}

// getViaLoader routes a miss through SingleFlight. Only the goroutine that
// actually runs the loader (the leader) records a miss; every joined
// waiter records a hit, since it was served without itself incurring a
// load: one miss, N-1 hits for an N-way thundering herd.
func (c *cacheImpl[K, V]) getViaLoader(ctx context.Context, key K, cfg getConfig[K, V]) (V, error) {
	var ranLoader bool
	v, err := c.sf.Do(ctx, key, func() (V, error) {
		ranLoader = true
		c.metrics.recordMiss()
		c.metrics.recordLoad()
		c.opt.Metrics.Load()

		val, lerr := cfg.loader(ctx)
		if lerr != nil {
			var zero V
			return zero, NewLoadError(key, lerr)
		}
		c.maybeStoreFromLoad(key, val, cfg, c.now())
		return val, nil
	})
	if err == nil && !ranLoader {
		c.metrics.recordHit()
	}
	return v, err
}

// getViaBatch routes a miss through the BatchCoalescer. Unlike the unary
// loader path, a per-call WithGetTTL override does not apply here: a
// successful batch result is always stored with DefaultTTL, regardless of
// any TTL override passed to this particular Get.
func (c *cacheImpl[K, V]) getViaBatch(ctx context.Context, key K, cfg getConfig[K, V]) (V, error) {
	c.metrics.recordMiss()

	fn := batch.LoadFunc[K, V](cfg.batchLoader)
	v, err := c.batch.Load(ctx, cfg.batchID, key, fn)
	if err != nil {
		return v, c.wrapBatchErr(cfg.batchID, key, err)
	}
	now := c.now()
	c.setAt(key, v, c.deadlineAt(c.opt.DefaultTTL, now), now)
	return v, nil
}

// wrapBatchErr translates internal/batch's loader-agnostic errors into the
// cache's own structured error kinds.
func (c *cacheImpl[K, V]) wrapBatchErr(loaderID string, key K, err error) error {
	var fe *batch.FailError
	if goerrors.As(err, &fe) {
		return NewBatchError(loaderID, fe.Keys, fe.Cause)
	}
	if goerrors.Is(err, batch.ErrKeyAbsent) {
		return NewKeyAbsentInBatchError(loaderID, key)
	}
	return err
}

// maybeStoreFromLoad caches a freshly loaded value per the TTL resolution
// rules: an explicit non-positive per-call TTL means "do not cache"; no
// explicit TTL falls back to DefaultTTL (0 = never expires, still cached).
func (c *cacheImpl[K, V]) maybeStoreFromLoad(key K, val V, cfg getConfig[K, V], now int64) {
	if cfg.ttlSet {
		if cfg.ttl <= 0 {
			return
		}
		c.setAt(key, val, now+int64(cfg.ttl), now)
		return
	}
	c.setAt(key, val, c.deadlineAt(c.opt.DefaultTTL, now), now)
}

// Add inserts key→value only if absent, using DefaultTTL.
func (c *cacheImpl[K, V]) Add(key K, value V) bool {
	if c.closed.Load() {
		return false
	}
	now := c.now()
	return c.getShard(key).add(key, value, c.deadlineAt(c.opt.DefaultTTL, now), c.costOf(value), now)
}

// Set inserts or overwrites key→value, using DefaultTTL unless a SetOption
// overrides it, and promotes the entry to MRU.
func (c *cacheImpl[K, V]) Set(key K, value V, opts ...SetOption) {
	if c.closed.Load() {
		return
	}
	cfg := newSetConfig(opts)
	ttl := c.opt.DefaultTTL
	if cfg.ttlSet {
		ttl = cfg.ttl
	}
	now := c.now()
	c.getShard(key).set(key, value, c.deadlineAt(ttl, now), c.costOf(value), now)
}

// Delete removes key if present.
func (c *cacheImpl[K, V]) Delete(key K) bool {
	if c.closed.Load() {
		return false
	}
	return c.getShard(key).remove(key)
}

// Clear drops every entry across every shard.
func (c *cacheImpl[K, V]) Clear() {
	for _, s := range c.shards {
		s.clear()
	}
}

// Warmup loads every currently-absent key in loaders concurrently, joining
// any Get already in flight for the same key via SingleFlight. Per-key
// failures are collected and returned together; one failing key never
// aborts the others.
func (c *cacheImpl[K, V]) Warmup(ctx context.Context, loaders map[K]LoadFunc[V]) error {
	if len(loaders) == 0 {
		return nil
	}
	now := c.now()

	var mu sync.Mutex
	var errs []error
	var g errgroup.Group

	for key, loader := range loaders {
		key, loader := key, loader
		if _, ok := c.getShard(key).get(key, now); ok {
			continue
		}
		g.Go(func() error {
			if _, err := c.Get(ctx, key, WithLoader[K, V](loader)); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return goerrors.Join(errs...)
}

// GetMetrics returns a consistent snapshot of the cache's own counters,
// independent of whatever Metrics implementation Options.Metrics plugs in.
func (c *cacheImpl[K, V]) GetMetrics() Snapshot {
	return c.metrics.snapshot()
}

// Len returns the total number of resident entries across all shards.
func (c *cacheImpl[K, V]) Len() int {
	total := 0
	for _, s := range c.shards {
		total += s.length()
	}
	return total
}

// Close marks the cache closed; further Add/Set/Delete calls are ignored,
// but in-flight loads and batches still run to completion.
func (c *cacheImpl[K, V]) Close() error {
	c.closed.Store(true)
	return nil
}

// ---- helpers ----

// getShard picks a shard by hashing the key; len(c.shards) is guaranteed
// to be a power of two.
func (c *cacheImpl[K, V]) getShard(key K) *shard[K, V] {
	h := c.hash(key)
	return c.shards[util.ShardIndex(h, len(c.shards))]
}

func (c *cacheImpl[K, V]) setAt(key K, val V, expiresAt int64, now int64) {
	c.getShard(key).set(key, val, expiresAt, c.costOf(val), now)
}

func (c *cacheImpl[K, V]) now() int64 { return c.opt.Clock.NowUnixNano() }

// deadlineAt converts a relative TTL into an absolute UnixNano deadline.
// A non-positive ttl returns 0 (no expiration).
func (c *cacheImpl[K, V]) deadlineAt(ttl time.Duration, now int64) int64 {
	if ttl <= 0 {
		return 0
	}
	return now + int64(ttl)
}

// costOf computes the per-entry cost (clamped to int32 range).
func (c *cacheImpl[K, V]) costOf(v V) int32 {
	if c.opt.Cost == nil {
		return 0
	}
	iv := c.opt.Cost(v)
	if iv < 0 {
		iv = 0
	}
	if iv > math.MaxInt32 {
		iv = math.MaxInt32
	}
	return int32(iv)
}
