// Package cell implements Cell, a lock-free single-slot container for a
// value of arbitrary type T.
//
// A Cell admits an unbounded number of concurrent readers and writers over
// values too large to fit in a machine word, without a mutex and without
// ever exposing a torn value to a reader. Superseded values are reclaimed by
// a chain-of-versions walk gated on a reader count, not by a stop-the-world
// pass or a mutex: see the reclamation pass in Cell.unchain below.
//
// Cell is lock-free, not wait-free: a store or load never retries, but
// Update retries on conflict. CompareAndSet does not retry: it reports
// failure to its caller instead.
package cell

import (
	"sync/atomic"

	"github.com/rogpeppe/cellkit/internal/atomptr"
)

// node owns one published value and a link to its predecessor. On
// construction, next is self-referential, marking it (for now) as the tail
// of the chain; chained is false until the node is fully linked and visible
// to other goroutines.
type node[T any] struct {
	next    atomptr.Value[node[T]]
	chained atomic.Bool
	value   *T
}

// newNode allocates an under-construction node holding value, self-linked
// as a provisional tail.
func newNode[T any](value T) *node[T] {
	n := &node[T]{value: &value}
	n.next.Store(n)
	return n
}

// publish links n behind prev and marks it chained, making it visible as a
// stable member of the chain to any goroutine that observes it.
func (n *node[T]) publish(prev *node[T]) {
	n.next.Store(prev)
	n.chained.Store(true)
}

// Cell is a lock-free, concurrency-safe single-slot container for a value
// of type T.
//
// The zero Cell is not usable; construct one with NewCell.
type Cell[T any] struct {
	head      atomptr.Value[node[T]]
	loadCount atomic.Int64
}

// NewCell returns a Cell holding value as its initial, and so far only,
// published version.
func NewCell[T any](value T) *Cell[T] {
	n := newNode(value)
	n.chained.Store(true)
	c := &Cell[T]{}
	c.head.Store(n)
	return c
}

// Load returns a handle to the currently published value. The returned
// pointer remains valid and unchanged for as long as the caller holds it,
// regardless of any later Store, Swap, CompareAndSet or Update.
func (c *Cell[T]) Load() *T {
	c.loadCount.Add(1)
	n := c.head.Load()
	val := n.value
	if c.loadCount.Add(-1) == 0 {
		c.unchain(n)
	}
	return val
}

// Store publishes value as the Cell's new current value. The value it
// replaces becomes eligible for reclamation once every load that observed
// it has returned.
func (c *Cell[T]) Store(value T) {
	n, _, _ := c.publish(value)
	c.maybeUnchain(n)
}

// Swap publishes value and returns a handle to the value it replaced.
func (c *Cell[T]) Swap(value T) *T {
	n, _, oldValue := c.publish(value)
	c.maybeUnchain(n)
	return oldValue
}

// publish allocates a node for value, links it behind the current head and
// atomically installs it as the new head, returning the new node, the node
// it replaced, and the replaced node's value.
//
// oldValue is captured straight from the head swap, before n links to old
// and before n's chained flag goes up, because old only becomes a
// candidate for some other goroutine's reclamation walk once n points to
// it by way of a chained, published next pointer — and that only happens
// inside n.publish below. Capturing oldValue first reads it while this
// goroutine still holds old exclusively, before any concurrent maybeUnchain
// (ours or another goroutine's, racing in on the new head) can destroy it.
func (c *Cell[T]) publish(value T) (n, old *node[T], oldValue *T) {
	n = newNode(value)
	old = c.head.Swap(n)
	oldValue = old.value
	n.publish(old)
	return n, old, oldValue
}

// CompareAndSet publishes newValue only if the Cell's current value is
// still the one that produced expected, reporting whether the publish
// happened. expected must be a handle previously returned by Load or Swap
// on this same Cell; the comparison is by handle identity, which
// coincides with the identity of the Node that produced it, since a handle
// is never copied away from the Node that owns it.
func (c *Cell[T]) CompareAndSet(expected *T, newValue T) bool {
	// Gate the read of cur.value the same way Load gates its own read: a
	// concurrent reclamation pass that destroys cur nils its value field,
	// so the comparison below must run while loadCount keeps that pass
	// from starting.
	c.loadCount.Add(1)
	cur := c.head.Load()
	match := cur.value == expected
	c.loadCount.Add(-1)
	if !match {
		return false
	}
	n := newNode(newValue)
	n.publish(cur)
	if !c.head.CompareAndSwap(cur, n) {
		return false
	}
	c.maybeUnchain(n)
	return true
}

// Update repeatedly loads the current value, applies f to it, and attempts
// to publish the result until a publish succeeds, returning whatever f
// returned alongside the new value on the attempt that wins. If f returns a
// non-nil error, Update stops immediately without retrying and surfaces
// that error; no value is published in that case.
//
// Update takes and returns any so that Cell's single type parameter can be
// reused across calls with differing result types; see UpdateT for a
// type-safe wrapper.
func (c *Cell[T]) Update(f func(old *T) (T, any, error)) (any, error) {
	for {
		cur, newValue, out, err := c.applyLocked(f)
		if err != nil {
			return nil, err
		}
		n := newNode(newValue)
		n.publish(cur)
		if c.head.CompareAndSwap(cur, n) {
			c.maybeUnchain(n)
			return out, nil
		}
	}
}

// applyLocked loads the current node and applies f to its value, holding the
// load-count gate open for the duration of the call. The decrement is
// deferred so that a panicking f still restores the counter before the
// panic continues to unwind past this function — an update that never
// returns must not leave the Cell permanently unreclaimable.
func (c *Cell[T]) applyLocked(f func(old *T) (T, any, error)) (cur *node[T], newValue T, out any, err error) {
	c.loadCount.Add(1)
	defer c.loadCount.Add(-1)
	cur = c.head.Load()
	newValue, out, err = f(cur.value)
	return
}

// maybeUnchain starts a reclamation pass from n if no load is currently in
// flight.
func (c *Cell[T]) maybeUnchain(n *node[T]) {
	if c.loadCount.Load() == 0 {
		c.unchain(n)
	}
}

// unchain performs one reclamation pass starting at h, a node the caller
// observed as (or believes may be) the head. It walks the chain rooted at h,
// destroying every node it can prove has no concurrent reader, and stops as
// soon as it reaches the tail or a node it cannot safely claim.
//
// The chained-flag CAS on h is what arbitrates between concurrent would-be
// reclaimers: exactly one of them proceeds past it for a given h: the
// others abort having done nothing.
func (c *Cell[T]) unchain(h *node[T]) {
	if !h.chained.CompareAndSwap(true, false) {
		return
	}
	if h.next.Load() == h {
		// h is already the tail; nothing to reclaim.
		h.chained.Store(true)
		return
	}
	p := h.next.Load()
	for {
		if !p.chained.CompareAndSwap(true, false) {
			// p is mid-publication by another goroutine. Bridge h directly
			// to it so p stays reachable, and stop.
			h.next.Store(p)
			h.chained.Store(true)
			return
		}
		next := p.next.Load()
		isTail := next == p
		destroy(p)
		if isTail {
			h.next.Store(h)
			h.chained.Store(true)
			return
		}
		p = next
	}
}

// destroy drops n's own references so the garbage collector can reclaim its
// memory once nothing else points to it. n must already be unreachable from
// any Cell's head.
func destroy[T any](n *node[T]) {
	n.value = nil
	n.next.Store(nil)
}

// chainLen reports the number of nodes currently reachable from the head.
// It is for tests only: it gives no useful answer while operations are
// concurrently in flight.
func (c *Cell[T]) chainLen() int {
	n := c.head.Load()
	length := 1
	for next := n.next.Load(); next != n; next = n.next.Load() {
		n = next
		length++
	}
	return length
}

// UpdateT is a type-safe wrapper around Cell.Update for callers who know
// the result type O at the call site; Go methods can't introduce their own
// type parameters, so Cell.Update itself is stuck boxing its result in any.
func UpdateT[T, O any](c *Cell[T], f func(old *T) (T, O, error)) (O, error) {
	out, err := c.Update(func(old *T) (T, any, error) {
		newValue, o, ferr := f(old)
		return newValue, o, ferr
	})
	if err != nil {
		var zero O
		return zero, err
	}
	return out.(O), nil
}
