// Package lru is the default eviction policy: classic move-to-front
// least-recently-used ordering.
package lru

import "github.com/mthomsen/coalesce/policy"

type factory[K comparable, V any] struct{}

// New returns the LRU policy factory.
func New[K comparable, V any]() policy.Policy[K, V] { return factory[K, V]{} }

func (factory[K, V]) New(h policy.Hooks[K, V]) policy.ShardPolicy[K, V] {
	return &lru[K, V]{h: h}
}

// lru keeps no state of its own; the shard's intrusive list IS the policy
// state, manipulated through the hooks.
type lru[K comparable, V any] struct {
	h policy.Hooks[K, V]
}

// OnAdd admits at MRU. LRU never proposes an eviction itself; the shard's
// capacity enforcement evicts from the tail.
func (p *lru[K, V]) OnAdd(n policy.Node[K, V]) (evict policy.Node[K, V]) {
	p.h.PushFront(n)
	return nil
}

// OnGet promotes to MRU.
func (p *lru[K, V]) OnGet(n policy.Node[K, V]) { p.h.MoveToFront(n) }

// OnUpdate counts as a use.
func (p *lru[K, V]) OnUpdate(n policy.Node[K, V]) { p.h.MoveToFront(n) }

func (p *lru[K, V]) OnRemove(policy.Node[K, V]) {}
