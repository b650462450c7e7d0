// Package cuckoo implements a plain cuckoo filter over 64-bit keys.
//
// It exists as the measuring stick for the Morton filter: same membership
// semantics, but with the classic layout of four uncompressed fingerprint
// slots per bucket and no overflow tracking, so every negative lookup pays
// for both candidate buckets. cmd/morton-bench runs both filters over the
// same key stream.
package cuckoo

import (
	"math/bits"

	"github.com/detailyang/fastrand-go"
)

// maxKickouts is the maximum number of evictions attempted per insert.
const maxKickouts = 500

// Filter is a fixed-capacity cuckoo filter. The bucket count is rounded up
// to a power of two so the partial-key XOR addressing stays an involution.
type Filter struct {
	buckets []bucket
	modulo  uint64
	count   uint64
}

// NewFilter returns a cuckoo filter sized for the given number of elements.
// Past that capacity insertion slows down and eventually fails; size up
// front, the filter does not grow.
func NewFilter(numElements uint64) *Filter {
	numBuckets := nextPowerOf2(numElements / bucketSize)
	if numBuckets == 0 {
		numBuckets = 1
	}
	return &Filter{
		buckets: make([]bucket, numBuckets),
		modulo:  numBuckets - 1,
	}
}

// Contains reports whether key is probably in the filter.
func (cf *Filter) Contains(key uint64) bool {
	i1, fp := indexAndFingerprint(key, cf.modulo)
	if cf.buckets[i1].contains(fp) {
		return true
	}
	i2 := altIndex(fp, i1, cf.modulo)
	return cf.buckets[i2].contains(fp)
}

// Insert adds key to the filter. It returns false when the eviction chain
// gives up; the filter remains usable but is effectively full.
func (cf *Filter) Insert(key uint64) bool {
	i1, fp := indexAndFingerprint(key, cf.modulo)
	if cf.insert(fp, i1) {
		return true
	}
	i2 := altIndex(fp, i1, cf.modulo)
	if cf.insert(fp, i2) {
		return true
	}
	return cf.reinsert(fp, randi(i1, i2))
}

func (cf *Filter) insert(fp fingerprint, i uint64) bool {
	if cf.buckets[i].insert(fp) {
		cf.count++
		return true
	}
	return false
}

func (cf *Filter) reinsert(fp fingerprint, i uint64) bool {
	for k := 0; k < maxKickouts; k++ {
		j := fastrand.FastRand() % bucketSize
		fp, cf.buckets[i][j] = cf.buckets[i][j], fp

		// Move the kicked-out fingerprint to its other bucket.
		i = altIndex(fp, i, cf.modulo)
		if cf.insert(fp, i) {
			return true
		}
	}
	return false
}

// Delete removes one occurrence of key's fingerprint. It returns true if a
// matching fingerprint was found and removed.
func (cf *Filter) Delete(key uint64) bool {
	i1, fp := indexAndFingerprint(key, cf.modulo)
	if cf.buckets[i1].delete(fp) {
		cf.count--
		return true
	}
	i2 := altIndex(fp, i1, cf.modulo)
	if cf.buckets[i2].delete(fp) {
		cf.count--
		return true
	}
	return false
}

// Count returns the number of fingerprints stored.
func (cf *Filter) Count() uint64 { return cf.count }

// Capacity returns the total number of fingerprint slots.
func (cf *Filter) Capacity() uint64 { return uint64(len(cf.buckets)) * bucketSize }

// LoadFactor returns the fraction of slots occupied.
func (cf *Filter) LoadFactor() float64 {
	return float64(cf.count) / float64(cf.Capacity())
}

func nextPowerOf2(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len64(n-1)
}
