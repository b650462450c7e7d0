package morton

// Batched pipelines. A batch amortizes hashing: each batch of keys has its
// primary bucket and fingerprint computed up front into a scratch array before any block is
// touched, then the operations are applied sequentially. Batching is not
// parallelism (the filter stays single-threaded), and a batch is not a
// transaction: the status slice reflects per-item outcomes, so a batch may
// partially succeed.

// batchSize is the number of keys hashed ahead per batch.
const batchSize = 128

// probe holds the precomputed primary bucket and fingerprint for one key.
type probe struct {
	b1 uint64
	fp uint64
}

// fillProbes hashes keys[from:to] into the scratch array.
func (f *Filter) fillProbes(keys []uint64, from, to int, scratch []probe) {
	for i := from; i < to; i++ {
		h1 := f.keyHash(keys[i])
		fp := f.fingerprintFromHash(h1)
		scratch[i-from] = probe{b1: f.primaryBucket(h1, fp), fp: fp}
	}
}

// InsertMany inserts keys in batches, recording each outcome in the
// parallel status slice. It processes min(len(keys), len(status)) items and
// returns that count. The final filter state matches sequential Insert
// calls over the same keys.
func (f *Filter) InsertMany(keys []uint64, status []bool) int {
	n := min(len(keys), len(status))
	var scratch [batchSize]probe
	for from := 0; from < n; from += batchSize {
		to := min(from+batchSize, n)
		f.fillProbes(keys, from, to, scratch[:])
		for i := from; i < to; i++ {
			p := scratch[i-from]
			status[i] = f.insertFingerprint(p.b1, p.fp)
		}
	}
	return n
}

// LikelyContainsMany probes keys in batches, recording each membership
// verdict in the parallel status slice. It processes
// min(len(keys), len(status)) items and returns that count.
func (f *Filter) LikelyContainsMany(keys []uint64, status []bool) int {
	n := min(len(keys), len(status))
	var scratch [batchSize]probe
	for from := 0; from < n; from += batchSize {
		to := min(from+batchSize, n)
		f.fillProbes(keys, from, to, scratch[:])
		for i := from; i < to; i++ {
			p := scratch[i-from]
			status[i] = f.lookupFingerprint(p.b1, p.fp)
		}
	}
	return n
}

// DeleteMany deletes keys in batches, recording each outcome in the
// parallel status slice. It processes min(len(keys), len(status)) items and
// returns that count.
func (f *Filter) DeleteMany(keys []uint64, status []bool) int {
	n := min(len(keys), len(status))
	var scratch [batchSize]probe
	for from := 0; from < n; from += batchSize {
		to := min(from+batchSize, n)
		f.fillProbes(keys, from, to, scratch[:])
		for i := from; i < to; i++ {
			p := scratch[i-from]
			status[i] = f.deleteFingerprint(p.b1, p.fp)
		}
	}
	return n
}

// lookupFingerprint is the two-bucket probe shared by LikelyContains and
// the batched pipeline.
func (f *Filter) lookupFingerprint(b1, fp uint64) bool {
	blockID, off := f.mapBucket(b1)
	if f.bucketContains(f.blockWords(blockID), off, fp) {
		return true
	}
	if !f.overflowPossible(b1) {
		return false
	}
	b2 := f.altBucket(b1, fp)
	blockID, off = f.mapBucket(b2)
	return f.bucketContains(f.blockWords(blockID), off, fp)
}

// deleteFingerprint is the two-bucket removal shared by Delete and the
// batched pipeline.
func (f *Filter) deleteFingerprint(b1, fp uint64) bool {
	blockID, off := f.mapBucket(b1)
	if f.removeFromBucket(f.blockWords(blockID), off, fp) {
		f.count--
		return true
	}
	if !f.overflowPossible(b1) {
		return false
	}
	// The OTA bit stays set even when the removal below succeeds: without a
	// reference count, clearing could hide other overflowed items.
	b2 := f.altBucket(b1, fp)
	blockID, off = f.mapBucket(b2)
	if f.removeFromBucket(f.blockWords(blockID), off, fp) {
		f.count--
		return true
	}
	return false
}
