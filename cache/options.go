package cache

import (
	"time"

	"github.com/mthomsen/coalesce/policy"
)

// Unlimited, passed as Options.Capacity, disables count-based eviction
// entirely.
const Unlimited = -1

// BatchWindowImmediate, passed as Options.BatchWindow, makes the coalescer
// flush on the next scheduler yield instead of waiting out a window. Calls
// enrolled before that flush fires still share one batch.
const BatchWindowImmediate = time.Duration(-1)

const (
	DefaultCapacity     = 128
	DefaultBatchWindow  = 5 * time.Millisecond
	DefaultMaxBatchSize = 100

	// sweepBudget bounds how many entries the opportunistic expired-entry
	// sweep examines per Set/Get/Add call.
	sweepBudget = 8
)

// Options configures the cache behavior. Zero values are mostly safe; see
// each field. validate() is called by New and applies defaults / rejects
// invalid combinations with a ConfigError.
type Options[K comparable, V any] struct {
	// Capacity is the entry count limit. 0 => DefaultCapacity.
	// Unlimited disables count-based eviction. Any other negative value
	// is a ConfigError.
	Capacity int

	// Shards defines the number of shards the index is split across for
	// concurrency. If 0, an automatic value is chosen (≈2*GOMAXPROCS) and
	// rounded to the next power of two. Capacity is divided across shards:
	// each shard holds at most ceil(Capacity/Shards) entries and evicts its
	// own least recently used entry, so eviction order is global only with
	// Shards = 1, and the total can exceed Capacity when Capacity is not a
	// multiple of the shard count (see New and shard.go).
	Shards int

	// Policy is a pluggable eviction policy (LRU/2Q/…); nil => LRU, the
	// default the documented eviction-order guarantees hold for.
	Policy policy.Policy[K, V]

	// DefaultTTL applies to Set/GetOptions when no per-call TTL is given.
	// 0 means "no TTL" (never expires). Negative is a ConfigError.
	DefaultTTL time.Duration

	// BatchWindow is the DataLoader-style coalescing window.
	// 0 => DefaultBatchWindow. BatchWindowImmediate flushes on the next
	// scheduler yield. Any other negative value is a ConfigError.
	BatchWindow time.Duration

	// MaxBatchSize hard-caps a single batch invocation.
	// 0 => DefaultMaxBatchSize. Negative is a ConfigError.
	MaxBatchSize int

	// Cost-based limiting (bytes, or any user-defined weight). If Cost is
	// non-nil and MaxCost > 0, the cache evicts until both entry count and
	// total cost limits are satisfied.
	Cost    func(v V) int // nil = all entries have equal cost (0)
	MaxCost int64         // total cost limit; 0 disables cost limiting

	// Observability.
	// OnEvict is called on eviction under the shard lock; keep callbacks
	// lightweight.
	OnEvict func(k K, v V, reason EvictReason)
	Metrics Metrics
	Logger  Logger

	// Clock allows overriding the time source (tests). Nil => go-timecache.
	Clock Clock

	// metrics is the owning cacheImpl's internal counter set (atomicMetrics).
	// Set by New before shards are constructed; shards use it to feed
	// GetMetrics() eviction counts, independent of the pluggable Metrics
	// interface above.
	metrics *atomicMetrics
}

// validate applies defaults and rejects invalid configuration, returning a
// ConfigError rather than panicking — construction is the only place
// this cache ever returns a configuration-shaped error.
func (o *Options[K, V]) validate() error {
	switch {
	case o.Capacity == 0:
		o.Capacity = DefaultCapacity
	case o.Capacity < 0 && o.Capacity != Unlimited:
		return NewConfigError("Capacity", o.Capacity)
	}

	switch {
	case o.BatchWindow == 0:
		o.BatchWindow = DefaultBatchWindow
	case o.BatchWindow == BatchWindowImmediate:
		o.BatchWindow = 0
	case o.BatchWindow < 0:
		return NewConfigError("BatchWindow", o.BatchWindow)
	}

	switch {
	case o.MaxBatchSize == 0:
		o.MaxBatchSize = DefaultMaxBatchSize
	case o.MaxBatchSize < 0:
		return NewConfigError("MaxBatchSize", o.MaxBatchSize)
	}

	if o.DefaultTTL < 0 {
		return NewConfigError("DefaultTTL", o.DefaultTTL)
	}

	if o.MaxCost < 0 {
		return NewConfigError("MaxCost", o.MaxCost)
	}

	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	if o.Logger == nil {
		o.Logger = NoOpLogger{}
	}
	if o.Clock == nil {
		o.Clock = systemClock{}
	}
	return nil
}
