package twoq

import (
	"testing"

	"github.com/mthomsen/coalesce/policy"
)

type fakeNode[K comparable, V any] struct {
	k K
	v V
}

func (n *fakeNode[K, V]) Key() K    { return n.k }
func (n *fakeNode[K, V]) Value() *V { return &n.v }

type fakeHooks[K comparable, V any] struct {
	pushed []policy.Node[K, V]
	moved  []policy.Node[K, V]
}

func (h *fakeHooks[K, V]) MoveToFront(n policy.Node[K, V]) { h.moved = append(h.moved, n) }
func (h *fakeHooks[K, V]) PushFront(n policy.Node[K, V])   { h.pushed = append(h.pushed, n) }
func (h *fakeHooks[K, V]) Remove(policy.Node[K, V])        {}
func (h *fakeHooks[K, V]) Back() policy.Node[K, V]         { return nil }
func (h *fakeHooks[K, V]) Len() int                        { return 0 }

func newTwoQ(capIn, capGhost int) (*twoQ[string, int], *fakeHooks[string, int]) {
	h := &fakeHooks[string, int]{}
	return New[string, int](capIn, capGhost).New(h).(*twoQ[string, int]), h
}

// A first-time key enters probation (A1in), with no eviction proposed.
func TestTwoQ_FirstAdmissionGoesToProbation(t *testing.T) {
	t.Parallel()

	p, _ := newTwoQ(2, 4)
	n1 := &fakeNode[string, int]{k: "a", v: 1}

	if ev := p.OnAdd(n1); ev != nil {
		t.Fatalf("no eviction expected, got %v", ev)
	}
	if p.inList.Len() != 1 {
		t.Fatalf("A1in must hold 1 node, got %d", p.inList.Len())
	}
	if _, ok := p.inIdx[n1]; !ok {
		t.Fatal("n1 must be indexed in A1in")
	}
}

// Probation overflow proposes A1in's LRU as the eviction candidate.
func TestTwoQ_ProbationOverflowProposesLRU(t *testing.T) {
	t.Parallel()

	p, _ := newTwoQ(2, 4)
	n1 := &fakeNode[string, int]{k: "a", v: 1}
	n2 := &fakeNode[string, int]{k: "b", v: 2}
	n3 := &fakeNode[string, int]{k: "c", v: 3}

	p.OnAdd(n1)
	p.OnAdd(n2)
	if ev := p.OnAdd(n3); ev != n1 {
		t.Fatalf("want A1in's LRU (n1) proposed, got %v", ev)
	}
}

// Evicting a probation node remembers its key as a ghost.
func TestTwoQ_ProbationEvictionLeavesGhost(t *testing.T) {
	t.Parallel()

	p, _ := newTwoQ(2, 2)
	n1 := &fakeNode[string, int]{k: "a", v: 1}

	p.OnAdd(n1)
	p.OnRemove(n1)

	if _, ok := p.inIdx[n1]; ok {
		t.Fatal("n1 must leave A1in on removal")
	}
	if _, ok := p.ghostIdx["a"]; !ok {
		t.Fatal("key a must be remembered in A1out")
	}
}

// A ghost-remembered key re-admits straight into Am, skipping probation.
func TestTwoQ_GhostReadmissionSkipsProbation(t *testing.T) {
	t.Parallel()

	p, _ := newTwoQ(1, 2)
	n1 := &fakeNode[string, int]{k: "a", v: 1}
	p.OnAdd(n1)
	p.OnRemove(n1)

	n2 := &fakeNode[string, int]{k: "a", v: 2}
	if ev := p.OnAdd(n2); ev != nil {
		t.Fatalf("ghost readmission must not evict, got %v", ev)
	}
	if _, ok := p.inIdx[n2]; ok {
		t.Fatal("n2 must bypass A1in and land in Am")
	}
	if _, ok := p.ghostIdx["a"]; ok {
		t.Fatal("the consumed ghost entry must be dropped")
	}
}

// A use graduates a probation node to Am and promotes it.
func TestTwoQ_UseGraduatesFromProbation(t *testing.T) {
	t.Parallel()

	p, h := newTwoQ(2, 2)
	n1 := &fakeNode[string, int]{k: "a", v: 1}
	p.OnAdd(n1)

	p.OnGet(n1)
	if _, ok := p.inIdx[n1]; ok {
		t.Fatal("n1 must graduate out of A1in on use")
	}
	if len(h.moved) != 1 || h.moved[0] != n1 {
		t.Fatal("OnGet must promote the node to MRU")
	}

	// A removal after graduation is an Am removal: no ghost.
	p.OnRemove(n1)
	if _, ok := p.ghostIdx["a"]; ok {
		t.Fatal("Am removals must not populate the ghost list")
	}
}

// The ghost list is bounded: old ghosts fall off its LRU end.
func TestTwoQ_GhostCapacityEnforced(t *testing.T) {
	t.Parallel()

	p, _ := newTwoQ(8, 2)
	for _, k := range []string{"a", "b", "c"} {
		n := &fakeNode[string, int]{k: k, v: 1}
		p.OnAdd(n)
		p.OnRemove(n)
	}

	if p.ghostList.Len() != 2 {
		t.Fatalf("ghost list must be capped at 2, got %d", p.ghostList.Len())
	}
	if _, ok := p.ghostIdx["a"]; ok {
		t.Fatal("oldest ghost (a) must have been dropped")
	}
	for _, k := range []string{"b", "c"} {
		if _, ok := p.ghostIdx[k]; !ok {
			t.Fatalf("ghost %q must survive", k)
		}
	}
}
