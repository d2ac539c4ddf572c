// Package maphash64 provides the stable, well-distributed 64-bit key
// hashing cmap.Map needs, built on hash/maphash.
//
// It generalizes the Hasher abstraction from the teacher's anyhash package
// (originally written so a hash table could key off non-comparable types
// such as slices) down to the single primitive a concurrent map needs: a
// per-Map seed, fixed for the Map's lifetime so a key hashes the same way
// before and after a Resize, plus a pluggable Hasher for keys that aren't
// natively comparable with ==.
package maphash64

import "hash/maphash"

// Hasher defines a hash function and an equivalence relation over values of
// type T. It lets a Map key off types, such as slices, that aren't
// comparable with Go's built-in == operator.
type Hasher[T any] interface {
	Hash(h *maphash.Hash, v T)
	Equal(x, y T) bool
}

// Comparable is the Hasher for any Go-comparable T, whose Equal is
// consistent with x == y.
type Comparable[T comparable] struct{}

// Hash writes v's hash-relevant bytes to h.
func (Comparable[T]) Hash(h *maphash.Hash, v T) { maphash.WriteComparable(h, v) }

// Equal reports whether x and y are the same key.
func (Comparable[T]) Equal(x, y T) bool { return x == y }

// NewSeed returns a fresh seed. Each Map picks one seed at construction and
// keeps it for its whole lifetime: two different seeds would hash the same
// key to different buckets, which would break Resize's rehashing.
func NewSeed() maphash.Seed {
	return maphash.MakeSeed()
}

// Sum computes the 64-bit hash of v under h, seeded with seed.
func Sum[T any](h Hasher[T], seed maphash.Seed, v T) uint64 {
	var mh maphash.Hash
	mh.SetSeed(seed)
	h.Hash(&mh, v)
	return mh.Sum64()
}
