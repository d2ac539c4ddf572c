// Package seq implements Sequence, a copy-on-write ordered collection built
// on a single cell.Cell holding the entire backing array.
//
// Every mutation builds a new backing slice and publishes it through the
// Cell's atomic primitives; Sequence itself holds no lock and does no
// bookkeeping beyond what Cell already provides. This makes Push, Pop and
// Update each O(n) in the current length, which is the tradeoff copy-on-
// write always makes: fine for small-to-medium sequences, not for large
// ones under heavy write load.
package seq

import "github.com/rogpeppe/cellkit/cell"

// Sequence is a concurrency-safe, copy-on-write ordered sequence of T.
type Sequence[T any] struct {
	c *cell.Cell[[]T]
}

// New returns an empty Sequence.
func New[T any]() *Sequence[T] {
	return &Sequence[T]{c: cell.NewCell[[]T](nil)}
}

// NewWithCapacity returns an empty Sequence whose initial backing array is
// allocated with capacity n. Push always copies into a new array of exactly
// the new length, so later pushes do not reuse that reserved capacity.
func NewWithCapacity[T any](n int) *Sequence[T] {
	return &Sequence[T]{c: cell.NewCell(make([]T, 0, n))}
}

// From returns a Sequence whose initial contents are a copy of items, built
// in one allocation rather than one Push per element.
func From[T any](items []T) *Sequence[T] {
	cp := append([]T(nil), items...)
	return &Sequence[T]{c: cell.NewCell(cp)}
}

// Len returns the current number of elements.
func (s *Sequence[T]) Len() int {
	return len(*s.c.Load())
}

// Get returns the element at index i, or false if i is out of range.
func (s *Sequence[T]) Get(i int) (T, bool) {
	arr := *s.c.Load()
	if i < 0 || i >= len(arr) {
		var zero T
		return zero, false
	}
	return arr[i], true
}

// Snapshot returns a handle to the whole current backing array. The
// returned slice is never mutated by Sequence; it remains valid regardless
// of later Push, Pop or Update calls.
func (s *Sequence[T]) Snapshot() []T {
	return *s.c.Load()
}

// Push atomically appends x to the end of the sequence.
func (s *Sequence[T]) Push(x T) {
	cell.UpdateT(s.c, func(old *[]T) ([]T, struct{}, error) {
		cur := *old
		next := make([]T, len(cur)+1)
		copy(next, cur)
		next[len(cur)] = x
		return next, struct{}{}, nil
	})
}

// Pop atomically removes and returns the last element, or reports false if
// the sequence is empty.
func (s *Sequence[T]) Pop() (T, bool) {
	type result struct {
		val T
		ok  bool
	}
	out, _ := cell.UpdateT(s.c, func(old *[]T) ([]T, result, error) {
		cur := *old
		if len(cur) == 0 {
			var zero T
			return cur, result{zero, false}, nil
		}
		last := cur[len(cur)-1]
		next := make([]T, len(cur)-1)
		copy(next, cur[:len(cur)-1])
		return next, result{last, true}, nil
	})
	return out.val, out.ok
}

// Update repeatedly applies f to the current backing array and attempts to
// publish the result until it succeeds, as cell.Cell.Update does. If f
// returns an error, Update stops immediately and surfaces it without
// publishing anything.
func (s *Sequence[T]) Update(f func(old []T) ([]T, error)) error {
	_, err := cell.UpdateT(s.c, func(old *[]T) ([]T, struct{}, error) {
		next, ferr := f(*old)
		if ferr != nil {
			return *old, struct{}{}, ferr
		}
		return next, struct{}{}, nil
	})
	return err
}
