package cache

import (
	"sync"

	"github.com/mthomsen/coalesce/internal/util"
	"github.com/mthomsen/coalesce/policy"
)

// shard is an independent partition of the cache with its own lock, map,
// and an intrusive doubly linked list (head=MRU, tail=LRU). It owns both
// the LRU bookkeeping and the opportunistic TTL sweep.
type shard[K comparable, V any] struct {
	// ---- guarded by mu ----
	mu      sync.RWMutex
	m       map[K]*node[K, V]
	head    *node[K, V] // MRU
	tail    *node[K, V] // LRU
	len     int         // number of resident entries
	cost    int64       // total cost (if MaxCost is enabled)
	cap     int         // per-shard entry capacity; Unlimited disables the check
	maxCost int64       // per-shard cost limit (0 = disabled)

	// sweepCursor is the next node to examine on the opportunistic sweep,
	// preserved across calls so repeated sweeps make progress around the
	// list instead of always re-checking the same tail entries.
	sweepCursor *node[K, V]

	pol policy.ShardPolicy[K, V]
	opt *Options[K, V]

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_      util.CacheLinePad
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
	evicts util.PaddedAtomicUint64
}

// newShard initializes a shard with per-shard capacity, policy factory, and
// shared options. maxCost is derived by splitting opt.MaxCost evenly across
// shards.
func newShard[K comparable, V any](capacity int, pol policy.Policy[K, V], opt *Options[K, V]) *shard[K, V] {
	s := &shard[K, V]{
		m:   make(map[K]*node[K, V]),
		cap: capacity,
		opt: opt,
	}

	if opt.MaxCost > 0 {
		shards := opt.Shards
		if shards <= 0 {
			shards = util.ReasonableShardCount()
		}
		s.maxCost = (opt.MaxCost + int64(shards) - 1) / int64(shards)
	}

	h := shardHooks[K, V]{s: s}
	s.pol = pol.New(h)
	return s
}

// set inserts or updates an entry and promotes it according to the policy.
// expiresAt is an absolute UnixNano deadline (0 = no TTL); cost is the
// logical weight (0 = equal). now is the caller's current time, reused to
// drive the opportunistic sweep without an extra clock read.
func (s *shard[K, V]) set(k K, v V, expiresAt int64, cost int32, now int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.m[k]; ok {
		oldCost := int64(n.cost)
		n.val = v
		n.insertedAt = now
		n.expiresAt = expiresAt
		n.cost = cost
		s.cost += int64(cost) - oldCost

		s.pol.OnUpdate(n)
		s.enforceLimitsLocked()
		s.sweepLocked(now)
		return
	}

	n := &node[K, V]{key: k, val: v, insertedAt: now, expiresAt: expiresAt, cost: cost}
	s.m[k] = n

	if ev := s.pol.OnAdd(n); ev != nil {
		s.evictNode(ev.(*node[K, V]), EvictPolicy)
	}
	s.enforceLimitsLocked()
	s.sweepLocked(now)
}

// add inserts a NEW entry (no update) as MRU via policy hooks. Returns false
// if the key already exists.
func (s *shard[K, V]) add(k K, v V, expiresAt int64, cost int32, now int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.m[k]; exists {
		return false
	}
	n := &node[K, V]{key: k, val: v, insertedAt: now, expiresAt: expiresAt, cost: cost}
	s.m[k] = n

	if ev := s.pol.OnAdd(n); ev != nil {
		s.evictNode(ev.(*node[K, V]), EvictPolicy)
	}
	s.enforceLimitsLocked()
	s.sweepLocked(now)
	return true
}

// get returns the value and promotes the entry according to the policy. If
// the entry is expired as of now, it is evicted inline and a miss is
// reported (lazy expiry). Before returning it runs the opportunistic sweep.
func (s *shard[K, V]) get(k K, now int64) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.sweepLocked(now)

	n, ok := s.m[k]
	if !ok {
		s.misses.Add(1)
		s.opt.Metrics.Miss()
		var zero V
		return zero, false
	}
	if n.expired(now) {
		s.evictNode(n, EvictTTL)
		s.misses.Add(1)
		s.opt.Metrics.Miss()
		var zero V
		return zero, false
	}

	s.pol.OnGet(n)
	s.hits.Add(1)
	s.opt.Metrics.Hit()
	return n.val, true
}

// remove deletes an entry by key. Returns true if the entry existed.
func (s *shard[K, V]) remove(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[k]
	if !ok {
		return false
	}
	s.pol.OnRemove(n)
	s.removeNode(n)
	delete(s.m, k)
	return true
}

// clear drops every entry in this shard without running eviction callbacks:
// it is a bulk reset, not per-key removal.
func (s *shard[K, V]) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = make(map[K]*node[K, V])
	s.head, s.tail = nil, nil
	s.len, s.cost = 0, 0
	s.sweepCursor = nil
}

// length returns the number of resident entries in this shard.
func (s *shard[K, V]) length() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.len
}

// -------------------- internals (mu held) --------------------

// sweepLocked opportunistically evicts up to sweepBudget expired entries,
// starting from where the previous sweep left off. It never runs as a
// background task; it only does work piggybacked on a Set/Get/Add call
// that already holds the lock.
func (s *shard[K, V]) sweepLocked(now int64) {
	cur := s.sweepCursor
	if cur == nil {
		cur = s.tail
	}
	for i := 0; i < sweepBudget && cur != nil; i++ {
		next := cur.prev // walk from LRU toward MRU
		if cur.expired(now) {
			s.pol.OnRemove(cur)
			s.removeNode(cur)
			delete(s.m, cur.key)
			s.evicts.Add(1)
			s.opt.metrics.recordEviction()
			s.opt.Metrics.Evict(EvictTTL)
			s.opt.Logger.Debug("opportunistic sweep evicted expired entry", "key", cur.key)
			if cb := s.opt.OnEvict; cb != nil {
				cb(cur.key, cur.val, EvictTTL)
			}
		}
		cur = next
	}
	s.sweepCursor = cur
}

// insertFront inserts n at MRU in O(1).
func (s *shard[K, V]) insertFront(n *node[K, V]) {
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
	s.len++
	s.cost += int64(n.cost)
}

// moveToFront promotes n to MRU in O(1).
func (s *shard[K, V]) moveToFront(n *node[K, V]) {
	if n == s.head {
		return
	}
	s.detach(n)
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

// removeNode removes n from the list and updates counters in O(1).
func (s *shard[K, V]) removeNode(n *node[K, V]) {
	if s.sweepCursor == n {
		s.sweepCursor = n.prev
	}
	s.detach(n)
	n.prev, n.next = nil, nil
	s.len--
	s.cost -= int64(n.cost)
	if s.cost < 0 {
		s.cost = 0
	}
}

// detach unlinks n from the list without touching counters.
func (s *shard[K, V]) detach(n *node[K, V]) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.head == n {
		s.head = n.next
	}
	if s.tail == n {
		s.tail = n.prev
	}
}

// back returns the current LRU node in O(1).
func (s *shard[K, V]) back() *node[K, V] { return s.tail }

// evictNode removes the node, updates metrics/counters, and calls OnEvict.
func (s *shard[K, V]) evictNode(n *node[K, V], reason EvictReason) {
	s.pol.OnRemove(n)
	s.removeNode(n)
	delete(s.m, n.key)
	s.evicts.Add(1)
	s.opt.metrics.recordEviction()
	s.opt.Metrics.Evict(reason)
	if cb := s.opt.OnEvict; cb != nil {
		cb(n.key, n.val, reason)
	}
}

// enforceLimitsLocked evicts LRU items until both count and cost limits are
// satisfied. cap == Unlimited disables the count-based check entirely.
func (s *shard[K, V]) enforceLimitsLocked() {
	if s.cap != Unlimited {
		for s.len > s.cap {
			if tail := s.back(); tail != nil {
				s.evictNode(tail, EvictCapacity)
			} else {
				break
			}
		}
	}
	if s.maxCost > 0 {
		for s.cost > s.maxCost {
			if tail := s.back(); tail != nil {
				s.evictNode(tail, EvictCapacity)
			} else {
				break
			}
		}
	}
	s.opt.Metrics.Size(s.len, s.cost)
}

// -------------------- policy hooks --------------------

// shardHooks adapts the shard's list operations to policy.Hooks.
type shardHooks[K comparable, V any] struct{ s *shard[K, V] }

func (h shardHooks[K, V]) MoveToFront(x policy.Node[K, V]) { h.s.moveToFront(x.(*node[K, V])) }
func (h shardHooks[K, V]) PushFront(x policy.Node[K, V])   { h.s.insertFront(x.(*node[K, V])) }
func (h shardHooks[K, V]) Remove(x policy.Node[K, V]) {
	h.s.removeNode(x.(*node[K, V]))
}
func (h shardHooks[K, V]) Back() policy.Node[K, V] { return h.s.back() }
func (h shardHooks[K, V]) Len() int                { return h.s.len }
