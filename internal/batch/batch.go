// Package batch implements DataLoader-style request coalescing: concurrent
// callers for the same loader identity within a short time window are
// merged into a single batch call, keyed by an arbitrary K rather than by
// position, so distinct keys requested by distinct callers still share one
// underlying invocation.
package batch

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrKeyAbsent is returned to a waiter whose key the batch function's
// result map does not contain.
var ErrKeyAbsent = errors.New("batch: key absent from batch result")

// Logger receives debug notifications about flush decisions, the one place
// batching behavior is otherwise invisible to a caller. It is structurally
// identical to cache.Logger's Debug method, so a cache.Options.Logger value
// can be passed into New without this package importing cache.
type Logger interface {
	Debug(msg string, keyvals ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}

// FailError wraps a batch function's own failure (as opposed to a single
// missing key). Keys is the size of the batch that failed.
type FailError struct {
	Cause error
	Keys  int
}

func (e *FailError) Error() string { return "batch: loader failed: " + e.Cause.Error() }
func (e *FailError) Unwrap() error { return e.Cause }

// LoadFunc is invoked with the deduplicated set of keys enrolled in one
// flushed batch, in first-enrolled order, and must return a value for every
// key it can satisfy. A key missing from vals is reported to its waiters as
// ErrKeyAbsent. There is no per-key error: a non-nil err fails every key in
// the batch.
type LoadFunc[K comparable, V any] func(ctx context.Context, keys []K) (vals map[K]V, err error)

type result[V any] struct {
	val V
	err error
}

// bucket holds one in-flight, not-yet-flushed batch for a given loader
// identity.
type bucket[K comparable, V any] struct {
	mu      sync.Mutex
	keys    []K // enrollment order, deduplicated
	waiters map[K][]chan result[V]
	timer   *time.Timer
	flushed bool
}

// Coalescer batches concurrent Load calls sharing a loader identity.
type Coalescer[K comparable, V any] struct {
	mu      sync.Mutex
	buckets map[string]*bucket[K, V]
	window  time.Duration
	maxSize int

	onBatchCall func(loaderID string, keys int)
	logger      Logger
}

// New builds a Coalescer. window == 0 means "flush on the next cooperative
// yield": time.AfterFunc(0, ...) fires at once and runs the flush on its
// own goroutine, so every call that enrolls before that goroutine detaches
// the bucket shares the batch; it is not a disabled-batching sentinel. onBatchCall, if non-nil, is
// invoked once per actual loader invocation (used to drive Metrics.BatchCall).
// logger, if nil, discards flush notifications.
func New[K comparable, V any](window time.Duration, maxSize int, onBatchCall func(loaderID string, keys int), logger Logger) *Coalescer[K, V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Coalescer[K, V]{
		buckets:     make(map[string]*bucket[K, V]),
		window:      window,
		maxSize:     maxSize,
		onBatchCall: onBatchCall,
		logger:      logger,
	}
}

// Load enrolls key into the current (or a freshly started) batch for
// loaderID and blocks until that batch flushes or ctx is cancelled.
// Cancelling ctx only abandons this caller's wait; the batch itself (and
// every other waiter on it) is unaffected.
func (c *Coalescer[K, V]) Load(ctx context.Context, loaderID string, key K, fn LoadFunc[K, V]) (V, error) {
	ch := make(chan result[V], 1)

	// c.mu is held across the append and the maxSize check below so that
	// reaching max_batch_size and unpublishing the bucket from c.buckets
	// happen atomically: no concurrent Load for this loaderID can observe
	// the bucket in c.buckets once it has reached the cap, so none can
	// append a key past it, so a bucket never exceeds maxBatchSize.
	c.mu.Lock()
	b, ok := c.buckets[loaderID]
	if !ok {
		b = &bucket[K, V]{waiters: make(map[K][]chan result[V])}
		c.buckets[loaderID] = b
	}

	b.mu.Lock()
	if _, seen := b.waiters[key]; !seen {
		b.keys = append(b.keys, key)
	}
	b.waiters[key] = append(b.waiters[key], ch)
	first := b.timer == nil
	if first {
		b.timer = time.AfterFunc(c.window, func() { c.flush(loaderID, b, fn) })
	}
	full := len(b.keys) >= c.maxSize
	if full && c.buckets[loaderID] == b {
		delete(c.buckets, loaderID)
	}
	b.mu.Unlock()
	c.mu.Unlock()

	if full {
		c.flush(loaderID, b, fn)
	}

	select {
	case r := <-ch:
		return r.val, r.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// flush runs fn over b's enrolled keys exactly once and distributes results
// to every waiter, including waiters that joined after the timer fired but
// before this goroutine acquired b.mu (none can: the bucket is unpublished
// from c.buckets before fn runs, so a concurrent Load starts a new bucket).
func (c *Coalescer[K, V]) flush(loaderID string, b *bucket[K, V], fn LoadFunc[K, V]) {
	c.mu.Lock()
	if c.buckets[loaderID] == b {
		delete(c.buckets, loaderID)
	}
	c.mu.Unlock()

	b.mu.Lock()
	if b.flushed {
		b.mu.Unlock()
		return
	}
	b.flushed = true
	if b.timer != nil {
		b.timer.Stop()
	}
	keys := b.keys
	waiters := b.waiters
	b.mu.Unlock()

	if len(keys) == 0 {
		return
	}

	c.logger.Debug("batch flush", "loader", loaderID, "keys", len(keys))

	if c.onBatchCall != nil {
		c.onBatchCall(loaderID, len(keys))
	}

	vals, err := fn(context.Background(), keys)
	if err != nil {
		fe := &FailError{Cause: err, Keys: len(keys)}
		for _, chs := range waiters {
			for _, ch := range chs {
				ch <- result[V]{err: fe}
			}
		}
		return
	}

	for _, k := range keys {
		chs := waiters[k]
		v, ok := vals[k]
		for _, ch := range chs {
			if ok {
				ch <- result[V]{val: v}
			} else {
				ch <- result[V]{err: ErrKeyAbsent}
			}
		}
	}
}
