// Package morton implements a Morton filter, an approximate set-membership
// structure over 64-bit keys that improves on the cuckoo filter by
// compressing bucket state into fixed-width blocks, biasing insertions
// toward the primary bucket, and decoupling logical bucket identity from
// physical fingerprint storage.
//
// A Morton filter answers Insert, LikelyContains, and Delete with bounded
// false positives and no false negatives for items currently present. See
// "Morton Filters: Faster, Space-Efficient Cuckoo Filters via Biasing,
// Compression, and Decoupled Logical Sparsity" (Breslow and Jayasena,
// PVLDB 11(9), 2018).
//
// The Block Model
// ===============
//
// Classic cuckoo filters give every bucket a fixed number of physical slots,
// so a bucket's storage is reserved whether or not it is used. A Morton
// filter instead packs the state of B consecutive logical buckets into one
// fixed-width block, typically sized to a 64-byte cache line:
//
//	+-----------------+-----------------+--------------+--------------------+
//	| FCA             | BFA (optional)  | OTA          | FSA                |
//	| B counters      | B bits          | >= t bits    | K fingerprints     |
//	+-----------------+-----------------+--------------+--------------------+
//
// The fingerprint counter array (FCA) records how many fingerprints each
// bucket currently holds. The fingerprint storage array (FSA) packs those
// fingerprints contiguously with no per-bucket padding; a bucket's slice of
// the FSA is recovered by prefix-summing the counters. Because K is chosen
// smaller than B*C_max, buckets oversubscribe the physical slots, which is
// the compression that lets the filter run at higher load in less memory.
//
// The overflow tracking array (OTA) is the throughput trick: a bucket whose
// items never overflowed to their alternate bucket has its OTA bit clear, so
// a negative lookup can stop after probing a single block. Insertions that
// spill to the alternate bucket set the bit; it is never cleared (see
// "Deletions" below).
//
// Biasing
// =======
//
// Every placement decision prefers the primary bucket: insertion tries it
// first, and a fingerprint displaced during cuckoo eviction treats the
// bucket it was evicted from as its primary when re-homing. Keeping items on
// their primary side keeps OTA bits sparse, which is what makes the
// second-bucket skip effective.
//
// Deletions
// =========
//
// Delete removes one matching fingerprint if present. OTA bits are not
// reference counted, so they are never cleared on delete: clearing could
// hide other items that overflowed from the same bucket. Presence of stored
// items is never lost, but under long mixed insert/delete workloads the OTA
// densifies and lookup throughput decays toward two probes; such workloads
// should plan a periodic rebuild.
//
// Concurrency
// ===========
//
// A Filter is a single-writer structure with no internal locking. Concurrent
// readers are safe only while no writer is active; any mutation requires
// external coordination.
package morton

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"math/rand"
)

// Filter is a Morton filter instance. Create one with New.
type Filter struct {
	cfg Config
	geo geometry

	// words is the contiguous backing storage for all blocks.
	words []uint64

	nBlocks  uint64
	nBuckets uint64

	// baseBits and baseMask describe the bucket space at construction time.
	// Resize widens the bucket space above baseBits; the alternate-bucket
	// involution keys only the base bits.
	baseBits uint
	baseMask uint64

	resizeCount uint

	count uint64

	// rnd drives victim selection during cuckoo eviction. Seeded from
	// Config.Seed for reproducible eviction paths.
	rnd *rand.Rand

	hash hashKind
	seed uint64
}

// New creates a Morton filter able to hold at least logicalSlots logical
// slots. The slot count is rounded up so the number of blocks is a power of
// two, which the alternate-bucket involution and in-place resize require.
// Invalid configurations return a structured error; construction never
// panics at runtime.
func New(logicalSlots uint64, cfg Config) (*Filter, error) {
	geo, err := deriveGeometry(cfg)
	if err != nil {
		return nil, err
	}
	kind, err := parseHashName(cfg.Hash)
	if err != nil {
		return nil, err
	}
	if logicalSlots == 0 {
		return nil, errors.New("morton: logical slot count must be positive")
	}

	perBlock := geo.logicalSlotsPerBlock()
	blocks := (logicalSlots + perBlock - 1) / perBlock
	if blocks < minBlocks {
		blocks = minBlocks
	}
	if blocks&(blocks-1) != 0 {
		blocks = 1 << bits.Len64(blocks)
	}

	nBuckets := blocks * uint64(geo.buckets)
	if nBuckets&(nBuckets-1) != 0 {
		return nil, fmt.Errorf("morton: bucket space %d is not a power of two", nBuckets)
	}

	f := &Filter{
		cfg:      cfg,
		geo:      geo,
		words:    make([]uint64, blocks*uint64(geo.blockWords)),
		nBlocks:  blocks,
		nBuckets: nBuckets,
		baseBits: uint(bits.Len64(nBuckets)) - 1,
		baseMask: nBuckets - 1,
		rnd:      rand.New(rand.NewSource(int64(cfg.Seed))),
		hash:     kind,
		seed:     cfg.Seed,
	}
	return f, nil
}

// mapBucket resolves a bucket id to its block and in-block offset.
func (f *Filter) mapBucket(b uint64) (blockID uint64, off uint) {
	return b / uint64(f.geo.buckets), uint(b % uint64(f.geo.buckets))
}

// roomAt reports whether bucket b can accept another fingerprint.
// congested is true when the bucket itself has logical capacity but the
// block's FSA is exhausted, the case the remap policy cares about.
func (f *Filter) roomAt(b uint64) (ok, congested bool) {
	blockID, off := f.mapBucket(b)
	bw := f.blockWords(blockID)
	if f.geo.bfaEnabled && f.bfaBit(bw, off) {
		return false, f.counter(bw, off) < f.geo.slots
	}
	if f.counter(bw, off) >= f.geo.slots {
		return false, false
	}
	if f.blockUsed(bw) >= f.geo.fsaSlots {
		return false, true
	}
	return true, false
}

// place appends fp to bucket b. Capacity must have been checked.
func (f *Filter) place(b, fp uint64) {
	blockID, off := f.mapBucket(b)
	f.appendToBucket(f.blockWords(blockID), off, fp)
}

// markOverflow records in b's block that at least one item whose primary
// bucket is b has overflowed to its alternate bucket.
func (f *Filter) markOverflow(b uint64) {
	if !f.geo.otaEnabled {
		return
	}
	blockID, _ := f.mapBucket(b)
	f.setOTABit(f.blockWords(blockID), f.otaSlot(b))
}

// overflowPossible reports whether an item with primary bucket b may be
// resting in its alternate bucket. With the OTA disabled this is always
// true and the second-bucket skip is never taken.
func (f *Filter) overflowPossible(b uint64) bool {
	if !f.geo.otaEnabled {
		return true
	}
	blockID, _ := f.mapBucket(b)
	return f.otaBit(f.blockWords(blockID), f.otaSlot(b))
}

// Insert adds a key to the filter. It returns false when the eviction chain
// exhausts MaxKicks, in which case the filter remains internally consistent
// and the caller may resize or reject the key. Inserting the same key more
// than once is permitted; the filter is a multiset up to the per-bucket
// capacity.
func (f *Filter) Insert(x uint64) bool {
	h1 := f.keyHash(x)
	fp := f.fingerprintFromHash(h1)
	return f.insertFingerprint(f.primaryBucket(h1, fp), fp)
}

// insertFingerprint runs the biased placement policy:
//
//  1. The primary bucket takes the item whenever it has capacity.
//  2. Otherwise the alternate bucket is tried (always when the primary's
//     logical bucket is full; on mere block congestion only when remapping
//     is enabled) and the primary's OTA bit records the overflow.
//  3. Otherwise random-kickout cuckoo: evict a uniformly random victim from
//     the primary side, install the new fingerprint in its place, and
//     re-home the victim into the alternate of the bucket it was evicted
//     from. That bucket is treated as the victim's primary, preserving the
//     bias. Each hop sets the OTA bit of the bucket the victim left.
//
// After MaxKicks hops the insert fails and the fingerprint displaced last is
// dropped (no stash is kept).
func (f *Filter) insertFingerprint(b1, fp uint64) bool {
	ok, congested := f.roomAt(b1)
	if ok {
		f.place(b1, fp)
		f.count++
		return true
	}

	if !congested || f.cfg.RemapEnabled {
		b2 := f.altBucket(b1, fp)
		if ok, _ := f.roomAt(b2); ok {
			f.place(b2, fp)
			f.markOverflow(b1)
			f.count++
			return true
		}
	}

	cur, curFP := b1, fp
	for kick := 0; kick < f.cfg.MaxKicks; kick++ {
		vb, victim := f.displace(cur, curFP)
		f.markOverflow(vb)
		target := f.altBucket(vb, victim)
		if ok, _ := f.roomAt(target); ok {
			f.place(target, victim)
			f.count++
			return true
		}
		cur, curFP = target, victim
	}
	return false
}

// displace installs fp into bucket b by evicting a resident fingerprint and
// returns the victim along with the bucket it was actually evicted from.
//
// Normally the victim comes from b's own slice. When b holds no fingerprints
// but its block's FSA is saturated (block-level congestion), a uniformly
// random resident of the block is evicted instead so that fp can join b.
func (f *Filter) displace(b, fp uint64) (victimBucket, victimFP uint64) {
	blockID, off := f.mapBucket(b)
	bw := f.blockWords(blockID)

	start, cnt := f.bucketRange(bw, off)
	if cnt > 0 {
		slot := start + uint(f.rnd.Intn(int(cnt)))
		victimFP = f.fsaRead(bw, slot)
		f.fsaWrite(bw, slot, fp)
		return b, victimFP
	}

	slot := uint(f.rnd.Intn(int(f.blockUsed(bw))))
	vOff := f.bucketOfSlot(bw, slot)
	victimFP = f.fsaRead(bw, slot)
	f.removeSlot(bw, vOff, slot)
	f.appendToBucket(bw, off, fp)
	return blockID*uint64(f.geo.buckets) + uint64(vOff), victimFP
}

// LikelyContains reports whether x may be in the filter. A false result is
// definitive; a true result is wrong with probability bounded by the
// fingerprint width and current load.
//
// The probe loads a single block in the common case: if the fingerprint is
// not in the primary bucket and the primary's OTA bit is clear, no item
// mapping to that bucket has ever overflowed, so the alternate bucket cannot
// hold it and the probe stops.
func (f *Filter) LikelyContains(x uint64) bool {
	h1 := f.keyHash(x)
	fp := f.fingerprintFromHash(h1)
	return f.lookupFingerprint(f.primaryBucket(h1, fp), fp)
}

// Delete removes one occurrence of x's fingerprint from the filter. It
// returns false when the key is definitely absent. Deleting a key that was
// never inserted can, with fingerprint-collision probability, remove another
// key's fingerprint, the usual cuckoo filter caveat.
func (f *Filter) Delete(x uint64) bool {
	h1 := f.keyHash(x)
	fp := f.fingerprintFromHash(h1)
	return f.deleteFingerprint(f.primaryBucket(h1, fp), fp)
}

// Count returns the number of fingerprints currently stored.
func (f *Filter) Count() uint64 { return f.count }

// Capacity returns the number of physical fingerprint slots.
func (f *Filter) Capacity() uint64 { return f.nBlocks * uint64(f.geo.fsaSlots) }

// LogicalCapacity returns the nominal bucket capacity B*C_max summed over
// all blocks. It exceeds Capacity by the compression ratio.
func (f *Filter) LogicalCapacity() uint64 { return f.nBlocks * f.geo.logicalSlotsPerBlock() }

// Blocks returns the number of physical blocks.
func (f *Filter) Blocks() uint64 { return f.nBlocks }

// BucketsPerBlock returns the number of logical buckets per block.
func (f *Filter) BucketsPerBlock() uint { return f.geo.buckets }

// SlotsPerBlock returns the number of physical fingerprint slots per block.
func (f *Filter) SlotsPerBlock() uint { return f.geo.fsaSlots }

// ResizeCount returns the cumulative number of capacity doublings.
func (f *Filter) ResizeCount() uint { return f.resizeCount }

// ReportBlockOccupancy returns the fraction of physical fingerprint slots
// in use across the filter.
func (f *Filter) ReportBlockOccupancy() float64 {
	return float64(f.count) / float64(f.Capacity())
}

// ReportOTAOccupancy returns the fraction of OTA bits set across all
// blocks. It returns 0 when overflow tracking is disabled. Dense OTAs
// disable the second-bucket skip and raise the false positive rate.
func (f *Filter) ReportOTAOccupancy() float64 {
	if !f.geo.otaEnabled {
		return 0
	}
	set := uint64(0)
	for blockID := uint64(0); blockID < f.nBlocks; blockID++ {
		bw := f.blockWords(blockID)
		for k := uint(0); k < f.geo.otaLen; k++ {
			if f.otaBit(bw, k) {
				set++
			}
		}
	}
	return float64(set) / float64(f.nBlocks*uint64(f.geo.otaLen))
}

// ReportCompressionRatio returns the achieved logical-to-physical slot
// oversubscription (B*C_max)/K.
func (f *Filter) ReportCompressionRatio() float64 {
	return float64(f.geo.logicalSlotsPerBlock()) / float64(f.geo.fsaSlots)
}

// FalsePositiveRatio estimates the negative-lookup false positive
// probability from the current occupancy, OTA density, and effective
// fingerprint width:
//
//	epsilon = 1 - (1 - 2^-(f-resizeCount))^(alpha * C_max * (1 + otaDensity))
func (f *Filter) FalsePositiveRatio() float64 {
	effBits := f.geo.fpBits
	if f.resizeCount < effBits {
		effBits -= f.resizeCount
	} else {
		effBits = 1
	}
	perSlot := 1.0 / float64(uint64(1)<<effBits)
	exponent := f.ReportBlockOccupancy() * float64(f.geo.slots) * (1 + f.ReportOTAOccupancy())
	return 1 - math.Pow(1-perSlot, exponent)
}
