// Package cache provides a fast, generic, sharded in-memory cache with
// pluggable eviction policies (LRU by default), per-entry TTL, single-flight
// load coalescing, DataLoader-style batch coalescing, lightweight metrics,
// and cost-based capacity.
//
// Design
//
//   - Concurrency: the cache is split into shards, each protected by an
//     RWMutex. The default shard count is chosen by a heuristic
//     (ReasonableShardCount) and is a power of two. Sharding reduces
//     contention while keeping memory overhead small.
//
//   - Storage: each shard keeps a map[K]*node for lookups and an intrusive
//     MRU↔LRU doubly linked list for ordering. All operations are O(1)
//     expected.
//
//   - Policies: eviction policy is pluggable via the policy package. LRU is
//     the default. A 2Q policy is provided (resists scan pollution). More
//     policies can be added without changing the shard.
//
//   - TTL: entries can have per-item deadlines (UnixNano). Expiration is
//     lazy on read, and also swept opportunistically (a bounded number of
//     entries per Set/Get/Add call) rather than by a background goroutine.
//
//   - Cost/MaxCost: besides entry count (Capacity), a user-defined "cost"
//     per value (Options.Cost) can be accounted against a global MaxCost.
//     Shards split the MaxCost budget evenly.
//
//   - Get: routes a miss through a unary Loader (single-flight, exactly one
//     real load per key regardless of how many callers ask concurrently)
//     or a BatchLoader (coalesced across distinct keys within BatchWindow).
//     If neither is supplied, Get returns ErrNoLoader.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Load/BatchCall/Size
//     signals for export (e.g. to Prometheus). Independently, GetMetrics
//     always answers from the cache's own always-on counters.
//
//   - Callbacks: Options.OnEvict(k, v, reason) is called for every eviction
//     (reason is one of EvictPolicy, EvictTTL, EvictCapacity).
//
// Basic usage
//
//	c, err := cache.New[string, []byte](cache.Options[string, []byte]{Capacity: 10_000})
//	c.Set("a", []byte("1"))
//	if v, err := c.Get(context.Background(), "a"); err == nil {
//	    _ = v
//	}
//	c.Delete("a")
//
// Loading on miss (single-flight)
//
//	c, _ := cache.New[string, string](cache.Options[string, string]{Capacity: 1024})
//	v, err := c.Get(ctx, "key", cache.WithLoader[string, string](func(ctx context.Context) (string, error) {
//	    return "v:key", nil // e.g. fetch from DB
//	}))
//
// Loading on miss (batch coalescing)
//
//	v, err := c.Get(ctx, "key", cache.WithBatchLoader[string, string]("users", func(ctx context.Context, keys []string) (map[string]string, error) {
//	    return fetchMany(ctx, keys) // one call serves every key enrolled within BatchWindow
//	}))
//
// Using an alternative policy (2Q)
//
//	c, _ := cache.New[string, string](cache.Options[string, string]{
//	    Capacity: 50_000,
//	    Shards:   4, // 12_500 entries per shard; 2Q sizes are per shard
//	    Policy:   twoq.New[string, string](3_125 /* A1in ≈ 25% */, 6_250 /* ghosts */),
//	})
//
// Exporting metrics (example Prometheus adapter)
//
//	m := prom.New(nil, "coalesce", "demo", nil) // implements Metrics
//	c, _ := cache.New[string, []byte](cache.Options[string, []byte]{
//	    Capacity: 10_000,
//	    Metrics:  m,
//	})
//
// Thread-safety & complexity
//
// All methods on Cache are safe for concurrent use. Typical operation cost
// is O(1) expected: one map access and a constant amount of pointer fixes.
// Eviction work is also O(1) per removed item.
//
// See options.go for all available Options fields and package policy for
// the Policy/Hooks interfaces used to implement custom strategies.
package cache
