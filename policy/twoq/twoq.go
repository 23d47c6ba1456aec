// Package twoq implements the 2Q eviction policy, which resists scan
// pollution better than plain LRU: first-time keys sit in a probation
// queue (A1in) and only graduate to the mature region (Am) on a second
// use, while a ghost list of recently evicted probation keys (A1out)
// grants returning keys direct admission to Am.
package twoq

import (
	"container/list"

	"github.com/mthomsen/coalesce/policy"
)

type factory[K comparable, V any] struct {
	capIn    int
	capGhost int
}

// New builds a 2Q policy factory. capIn sizes the probation queue and
// capGhost the ghost list, both per shard — common choices are ~25% and
// ~50-100% of the shard capacity respectively.
func New[K comparable, V any](capIn, capGhost int) policy.Policy[K, V] {
	if capIn < 1 {
		capIn = 1
	}
	if capGhost < 1 {
		capGhost = 1
	}
	return factory[K, V]{capIn: capIn, capGhost: capGhost}
}

func (f factory[K, V]) New(h policy.Hooks[K, V]) policy.ShardPolicy[K, V] {
	return &twoQ[K, V]{
		h:         h,
		capIn:     f.capIn,
		capGhost:  f.capGhost,
		inList:    list.New(),
		inIdx:     make(map[policy.Node[K, V]]*list.Element),
		ghostList: list.New(),
		ghostIdx:  make(map[K]*list.Element),
	}
}

// twoQ tracks which resident nodes are still on probation (inList/inIdx,
// MRU at Front) and which evicted probation keys are remembered as ghosts
// (ghostList/ghostIdx, keys only). A resident node absent from inIdx is in
// Am; Am's ordering lives entirely in the shard's own list via the hooks.
// All methods run under the shard lock.
type twoQ[K comparable, V any] struct {
	h policy.Hooks[K, V]

	capIn    int
	capGhost int

	inList *list.List
	inIdx  map[policy.Node[K, V]]*list.Element

	ghostList *list.List
	ghostIdx  map[K]*list.Element
}

// OnAdd admits a ghost-remembered key straight into Am; everything else
// enters probation. A probation overflow proposes A1in's LRU for eviction.
func (q *twoQ[K, V]) OnAdd(n policy.Node[K, V]) (evict policy.Node[K, V]) {
	k := n.Key()
	if ge, ok := q.ghostIdx[k]; ok {
		q.ghostList.Remove(ge)
		delete(q.ghostIdx, k)
		q.h.PushFront(n)
		return nil
	}

	q.h.PushFront(n)
	q.inIdx[n] = q.inList.PushFront(n)

	if q.inList.Len() > q.capIn {
		if tail := q.inList.Back(); tail != nil {
			return tail.Value.(policy.Node[K, V])
		}
	}
	return nil
}

// OnGet graduates a probation node to Am and promotes it to MRU.
func (q *twoQ[K, V]) OnGet(n policy.Node[K, V]) {
	if el, ok := q.inIdx[n]; ok {
		q.inList.Remove(el)
		delete(q.inIdx, n)
	}
	q.h.MoveToFront(n)
}

// OnUpdate counts as a use.
func (q *twoQ[K, V]) OnUpdate(n policy.Node[K, V]) { q.OnGet(n) }

// OnRemove remembers an evicted probation key as a ghost; removals from Am
// leave no ghost. The ghost list is trimmed from its LRU end past capGhost.
func (q *twoQ[K, V]) OnRemove(n policy.Node[K, V]) {
	el, ok := q.inIdx[n]
	if !ok {
		return
	}
	q.inList.Remove(el)
	delete(q.inIdx, n)

	k := n.Key()
	if old := q.ghostIdx[k]; old != nil {
		q.ghostList.Remove(old)
	}
	q.ghostIdx[k] = q.ghostList.PushFront(k)

	for q.ghostList.Len() > q.capGhost {
		tail := q.ghostList.Back()
		if tail == nil {
			break
		}
		delete(q.ghostIdx, tail.Value.(K))
		q.ghostList.Remove(tail)
	}
}
