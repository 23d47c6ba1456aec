// Package policy defines the pluggable eviction policy seam between the
// cache's shards and the recency strategies that order them. A shard owns
// its map and intrusive list; a policy only decides how nodes move through
// that list and which node to give up when the shard asks.
package policy

// Node is what a policy sees of a cache entry: the key, and a pointer to
// the value so it can be updated in place without re-linking the node.
type Node[K comparable, V any] interface {
	Key() K
	Value() *V
}

// Hooks are the O(1) list operations a shard lends to its policy instance.
// Every call happens under the shard lock. The hooks manage only the
// ordering list; the key→node map stays with the shard.
type Hooks[K comparable, V any] interface {
	// MoveToFront promotes the node to MRU.
	MoveToFront(Node[K, V])
	// PushFront inserts a newly admitted node at MRU.
	PushFront(Node[K, V])
	// Remove detaches the node from the list.
	Remove(Node[K, V])
	// Back returns the current LRU node, or nil when empty.
	Back() Node[K, V]
	// Len returns the number of resident nodes in the shard.
	Len() int
}

// ShardPolicy is one shard's policy instance. All methods run under that
// shard's lock.
//
// OnAdd may return an eviction candidate (e.g. the tail of a probation
// queue); the shard calls OnRemove for it and then evicts it. OnGet and
// OnUpdate typically promote. OnRemove lets the policy update its own
// bookkeeping (ghost lists and the like); the shard does the actual
// deletion.
type ShardPolicy[K comparable, V any] interface {
	OnAdd(Node[K, V]) (evict Node[K, V])
	OnGet(Node[K, V])
	OnUpdate(Node[K, V])
	OnRemove(Node[K, V])
}

// Policy is a factory producing per-shard policy instances bound to that
// shard's Hooks.
type Policy[K comparable, V any] interface {
	New(Hooks[K, V]) ShardPolicy[K, V]
}
