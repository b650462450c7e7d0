package morton

import (
	"errors"
	"fmt"
)

// Resize grows the filter's capacity by a factor of 2^k, relabeling every
// stored fingerprint into the widened bucket space.
//
// Addressing after a resize folds low fingerprint bits into the bucket id:
// with s base bucket bits and a cumulative resize count rc, a key's primary
// bucket is
//
//	(h1 mod 2^s) | ((fp mod 2^rc) << s)
//
// A fingerprint resting in bucket b before the resize therefore moves to
//
//	b | (((fp >> rcOld) mod 2^k) << (s + rcOld))
//
// whether it was resting in its primary or its alternate bucket: the
// alternate involution only flips base bits, so both candidates share the
// same high bits. The relabeled fingerprints re-enter through the biased
// insertion path with the relabeled bucket as their treated primary.
//
// The OTA cannot be rebuilt from the fingerprints alone. A resting
// fingerprint does not reveal whether its bucket is the key's primary or
// its alternate, so the relabeled placement may put an overflowed item
// straight into its new alternate without touching its new primary's
// block. The overflow state is carried over instead: every set OTA bit is
// replayed onto all 2^k descendants of its bucket, which keeps a clear bit
// meaning what it must (no item of that bucket ever overflowed) at the
// cost of inheriting the old OTA density rather than shedding it.
//
// Because the bucket id now implies the low rc fingerprint bits, a negative
// lookup collides on only the remaining f-rc bits; FalsePositiveRatio
// accounts for the loss.
//
// The new block array is committed only after every fingerprint has been
// rehomed, so a failed resize leaves the filter untouched.
func (f *Filter) Resize(k uint) error {
	if !f.cfg.ResizeEnabled {
		return errors.New("morton: resizing is disabled for this filter")
	}
	if k == 0 {
		return errors.New("morton: resize factor must be at least 1")
	}
	if f.resizeCount+k >= f.geo.fpBits {
		return fmt.Errorf("morton: %d cumulative doublings would exhaust the %d-bit fingerprint", f.resizeCount+k, f.geo.fpBits)
	}

	grown := &Filter{
		cfg:         f.cfg,
		geo:         f.geo,
		words:       make([]uint64, (f.nBlocks<<k)*uint64(f.geo.blockWords)),
		nBlocks:     f.nBlocks << k,
		nBuckets:    f.nBuckets << k,
		baseBits:    f.baseBits,
		baseMask:    f.baseMask,
		resizeCount: f.resizeCount + k,
		rnd:         f.rnd,
		hash:        f.hash,
		seed:        f.seed,
	}

	shift := f.baseBits + f.resizeCount
	kMask := uint64(1)<<k - 1

	for blockID := uint64(0); blockID < f.nBlocks; blockID++ {
		bw := f.blockWords(blockID)
		slot := uint(0)
		for off := uint(0); off < f.geo.buckets; off++ {
			b := blockID*uint64(f.geo.buckets) + uint64(off)
			cnt := f.counter(bw, off)
			for j := uint(0); j < cnt; j++ {
				fp := f.fsaRead(bw, slot+j)
				nb := b | (fp >> f.resizeCount & kMask << shift)
				if !grown.insertFingerprint(nb, fp) {
					return fmt.Errorf("morton: could not rehome fingerprint from bucket %d during resize", b)
				}
			}
			slot += cnt
		}
	}

	// Carry the overflow state over: a bucket whose OTA bit was set may
	// have overflowed items now primary to any of its 2^k descendants, so
	// all of them are marked.
	if f.geo.otaEnabled {
		for blockID := uint64(0); blockID < f.nBlocks; blockID++ {
			bw := f.blockWords(blockID)
			for off := uint(0); off < f.geo.buckets; off++ {
				b := blockID*uint64(f.geo.buckets) + uint64(off)
				if !f.otaBit(bw, f.otaSlot(b)) {
					continue
				}
				for g := uint64(0); g <= kMask; g++ {
					grown.markOverflow(b | g<<shift)
				}
			}
		}
	}

	f.words = grown.words
	f.nBlocks = grown.nBlocks
	f.nBuckets = grown.nBuckets
	f.resizeCount = grown.resizeCount
	f.count = grown.count
	return nil
}
