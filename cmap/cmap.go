// Package cmap implements Map, a hash-bucketed mapping from K to V built
// from cell.Cells.
//
// A Map holds a fixed-size array of buckets; each bucket is itself a
// cell.Cell holding an immutable slice of entries. Editing an existing
// key's value goes through that entry's own inner cell.Cell and never
// rewrites the bucket's array; inserting a new key or removing one
// publishes a new bucket array via compare-and-retry, the same pattern
// cell.Cell.Update uses internally.
//
// Get, GetHandle, Edit, Insert and Remove are safe under concurrent calls.
// Resize is not: it requires the caller to hold the Map exclusively, the
// same way a Go map requires external synchronization for concurrent
// writes.
package cmap

import (
	"hash/maphash"
	"iter"
	"sync/atomic"

	"github.com/rogpeppe/cellkit/cell"
	"github.com/rogpeppe/cellkit/internal/maphash64"
)

// entry associates an immutable key with an inner Cell holding its value.
type entry[K, V any] struct {
	key K
	val *cell.Cell[V]
}

// bucket holds the entries whose key hashes to this bucket's index.
type bucket[K, V any] struct {
	entries *cell.Cell[[]entry[K, V]]
}

func newBucket[K, V any]() *bucket[K, V] {
	return &bucket[K, V]{entries: cell.NewCell[[]entry[K, V]](nil)}
}

// Map is a concurrency-safe, hash-bucketed mapping from K to V.
type Map[K, V any] struct {
	hasher  maphash64.Hasher[K]
	seed    maphash.Seed
	buckets []*bucket[K, V]
	length  atomic.Int64
}

// NewMapWithCapacity returns a Map with n fixed buckets (at least 1), each
// initially empty, keyed by K's built-in equality.
func NewMapWithCapacity[K comparable, V any](n int) *Map[K, V] {
	return newMap[K, V](n, maphash64.Comparable[K]{})
}

// NewMapWithHasher is like NewMapWithCapacity but for key types that aren't
// comparable with ==, such as slices: h supplies both the hash function and
// the equivalence relation.
func NewMapWithHasher[K, V any](n int, h maphash64.Hasher[K]) *Map[K, V] {
	return newMap[K, V](n, h)
}

func newMap[K, V any](n int, h maphash64.Hasher[K]) *Map[K, V] {
	if n <= 0 {
		n = 1
	}
	m := &Map[K, V]{
		hasher:  h,
		seed:    maphash64.NewSeed(),
		buckets: make([]*bucket[K, V], n),
	}
	for i := range m.buckets {
		m.buckets[i] = newBucket[K, V]()
	}
	return m
}

func (m *Map[K, V]) bucketFor(k K) *bucket[K, V] {
	h := maphash64.Sum(m.hasher, m.seed, k)
	return m.buckets[h%uint64(len(m.buckets))]
}

// Entry is a (key, value-cell) pair as returned by GetHandle: Value permits
// further loads and stores of k's value in place.
type Entry[K, V any] struct {
	Key   K
	Value *cell.Cell[V]
}

// GetHandle returns the (key, value-cell) pair for k, or false if k is
// absent.
func (m *Map[K, V]) GetHandle(k K) (Entry[K, V], bool) {
	b := m.bucketFor(k)
	for _, e := range *b.entries.Load() {
		if m.hasher.Equal(e.key, k) {
			return Entry[K, V]{Key: e.key, Value: e.val}, true
		}
	}
	return Entry[K, V]{}, false
}

// Get returns a handle to k's current value, or false if k is absent.
func (m *Map[K, V]) Get(k K) (*V, bool) {
	h, ok := m.GetHandle(k)
	if !ok {
		return nil, false
	}
	return h.Value.Load(), true
}

// GetOwned returns a copy of k's current value, or false if k is absent.
func (m *Map[K, V]) GetOwned(k K) (V, bool) {
	v, ok := m.Get(k)
	if !ok {
		var zero V
		return zero, false
	}
	return *v, true
}

// Insert sets k's value to v. If k is already present, its value is
// replaced in place through the entry's own inner cell and the bucket's
// array is left untouched; otherwise a new bucket array including the new
// entry is published, retrying if a concurrent writer raced it.
//
// Two concurrent Inserts of the same key resolve to one of the two values
// winning; there is no merge. Because the publish loop below reloads and
// re-scans the bucket on every CAS conflict, two concurrent Inserts of
// distinct keys that hash to the same bucket cannot silently lose one of
// the insertions the way a single unconditional store-of-a-copy would:
// the loser simply retries against the array that now contains the
// winner's entry.
func (m *Map[K, V]) Insert(k K, v V) {
	b := m.bucketFor(k)
	for {
		snap := b.entries.Load()
		cur := *snap
		found := false
		for _, e := range cur {
			if m.hasher.Equal(e.key, k) {
				e.val.Store(v)
				found = true
				break
			}
		}
		if found {
			return
		}
		next := make([]entry[K, V], len(cur), len(cur)+1)
		copy(next, cur)
		next = append(next, entry[K, V]{key: k, val: cell.NewCell(v)})
		if b.entries.CompareAndSet(snap, next) {
			m.length.Add(1)
			return
		}
	}
}

// Edit sets k's value to v in place if k is present, reporting whether it
// was. Unlike Insert, Edit never creates an entry for an absent key.
func (m *Map[K, V]) Edit(k K, v V) bool {
	h, ok := m.GetHandle(k)
	if !ok {
		return false
	}
	h.Value.Store(v)
	return true
}

// Remove deletes k's entry, reporting whether it was present.
func (m *Map[K, V]) Remove(k K) bool {
	b := m.bucketFor(k)
	for {
		snap := b.entries.Load()
		cur := *snap
		idx := -1
		for i, e := range cur {
			if m.hasher.Equal(e.key, k) {
				idx = i
				break
			}
		}
		if idx == -1 {
			return false
		}
		next := make([]entry[K, V], 0, len(cur)-1)
		next = append(next, cur[:idx]...)
		next = append(next, cur[idx+1:]...)
		if b.entries.CompareAndSet(snap, next) {
			m.length.Add(-1)
			return true
		}
	}
}

// Len returns the number of entries currently in the Map.
func (m *Map[K, V]) Len() int {
	return int(m.length.Load())
}

// Iter returns a lazy, weakly consistent sequence of (key, value-cell)
// pairs, walking buckets in order and entries in bucket order. It operates
// over the bucket array as of the call to Iter; each bucket's own entry
// slice is loaded only when the walk reaches that bucket, not upfront.
// Concurrent inserts or removes may or may not be observed, but no key is
// ever yielded twice.
func (m *Map[K, V]) Iter() iter.Seq2[K, *cell.Cell[V]] {
	snapBuckets := m.buckets
	return func(yield func(K, *cell.Cell[V]) bool) {
		for _, b := range snapBuckets {
			for _, e := range *b.entries.Load() {
				if !yield(e.key, e.val) {
					return
				}
			}
		}
	}
}

// Resize replaces the bucket array with one of newCount buckets (at least
// 1) and rehashes every entry into it. Resize is not safe against
// concurrent Get, Insert, Edit, Remove or Iter calls; the caller must hold
// the Map exclusively while it runs.
func (m *Map[K, V]) Resize(newCount int) {
	if newCount <= 0 {
		newCount = 1
	}
	next := make([]*bucket[K, V], newCount)
	for i := range next {
		next[i] = newBucket[K, V]()
	}
	for _, b := range m.buckets {
		for _, e := range *b.entries.Load() {
			h := maphash64.Sum(m.hasher, m.seed, e.key)
			nb := next[h%uint64(newCount)]
			cur := *nb.entries.Load()
			grown := make([]entry[K, V], len(cur), len(cur)+1)
			copy(grown, cur)
			grown = append(grown, e)
			nb.entries.Store(grown)
		}
	}
	m.buckets = next
}
