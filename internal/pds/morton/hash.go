package morton

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
)

// The hash family. Three values are derived for every key:
//
//	h1: the 64-bit primary hash, salted with the filter seed
//	fp: the f-bit non-zero fingerprint, taken from h1's top bits
//	b1: the primary bucket, taken from h1's low bits
//
// Fingerprint and bucket come from disjoint ends of h1 so the two stay
// statistically independent, and both remain computable from h1 alone, which
// the relocation and resize paths rely on.

// hashKind selects the keyed hash backend.
type hashKind uint8

const (
	hashXX hashKind = iota
	hashMurmur
)

// parseHashName maps a Config.Hash value to its backend.
func parseHashName(name string) (hashKind, error) {
	switch name {
	case "", "xxhash":
		return hashXX, nil
	case "murmur3":
		return hashMurmur, nil
	default:
		return 0, fmt.Errorf("morton: unknown hash %q", name)
	}
}

// altBucketMul is the odd multiplier that spreads a fingerprint across the
// bucket space before the XOR step of the alternate-bucket involution.
const altBucketMul = 0x5bd1e995

// keyHash computes the salted primary hash h1 for a key.
func (f *Filter) keyHash(x uint64) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], f.seed)
	binary.LittleEndian.PutUint64(buf[8:16], x)
	switch f.hash {
	case hashMurmur:
		return murmur3.Sum64WithSeed(buf[8:16], uint32(f.seed)^uint32(f.seed>>32))
	default:
		return xxhash.Sum64(buf[:])
	}
}

// fingerprintFromHash reduces h1 to an f-bit non-zero fingerprint. Zero is
// reserved for empty FSA slots, so the zero case maps to 1.
func (f *Filter) fingerprintFromHash(h1 uint64) uint64 {
	fp := h1 >> (64 - f.geo.fpBits)
	if fp == 0 {
		fp = 1
	}
	return fp
}

// primaryBucket maps (h1, fp) to the key's primary bucket. Before any resize
// this is simply h1 modulo the bucket count. After resizing by a total of
// resizeCount doublings, the low resizeCount fingerprint bits select which of
// the split buckets the key now calls primary; the relabeling in Resize uses
// the same rule, so old and new items agree on addressing.
func (f *Filter) primaryBucket(h1, fp uint64) uint64 {
	b := h1 & f.baseMask
	if f.resizeCount > 0 {
		b |= (fp & (1<<f.resizeCount - 1)) << f.baseBits
	}
	return b
}

// altBucket computes the other candidate bucket for a fingerprint. The XOR
// keys only the base (pre-resize) bucket bits, which makes the function an
// involution for every (b, fp) at every resize level:
//
//	altBucket(altBucket(b, fp), fp) == b
//
// When the base bucket count does not exceed the fingerprint range, a
// fingerprint that is a multiple of the bucket count maps a bucket to
// itself. Such a key has a single candidate bucket; its inserts can fail
// early, with the eviction chain bounded by MaxKicks. This only arises in
// minimum-size filters (at the two-block floor the default geometry has
// 128 buckets against 255 fingerprint values, so roughly 1 in 255 keys is
// affected) and correctness is unimpaired.
func (f *Filter) altBucket(b, fp uint64) uint64 {
	return b ^ (fp * altBucketMul & f.baseMask)
}

// otaSlot maps a bucket to its stable bit index inside the block's OTA.
func (f *Filter) otaSlot(b uint64) uint {
	return uint(mix(b) % uint64(f.geo.otaLen))
}

// mix scrambles a 64-bit integer with the SplitMix64 finalizer (public
// domain). Used to decorrelate the OTA bit index from the bucket id.
func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
