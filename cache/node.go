package cache

// node is an intrusive doubly linked list element owned by a shard: key,
// value, insertedAt, expiresAt, with recency implicit in list membership
// (head = MRU, tail = LRU).
type node[K comparable, V any] struct {
	key K
	val V

	// Intrusive list links: head is MRU, tail is LRU.
	prev *node[K, V]
	next *node[K, V]

	// insertedAt is the UnixNano the entry was last (re)written.
	insertedAt int64

	// expiresAt is the absolute UnixNano deadline, or 0 for "never".
	// Invariant: expiresAt == 0 || expiresAt > insertedAt.
	expiresAt int64

	// cost is the logical weight used when MaxCost is enabled (0 = equal).
	cost int32
}

// Key returns the node key (part of policy.Node interface).
func (n *node[K, V]) Key() K { return n.key }

// Value returns a pointer to the stored value (part of policy.Node interface).
// NOTE: callers must only read/write through this pointer while holding the
// shard lock; otherwise data races may occur.
func (n *node[K, V]) Value() *V { return &n.val }

// expired reports whether the entry is expired as of now (UnixNano).
// A lookup at time t treats the entry as expired iff expiresAt <= t.
func (n *node[K, V]) expired(now int64) bool {
	return n.expiresAt != 0 && now >= n.expiresAt
}
