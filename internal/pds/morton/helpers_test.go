package morton

import "testing"

// testConfig pins the classic 3_8 geometry (64 buckets, 46 slots, 8-bit
// fingerprints, 16 OTA bits per 512-bit block) with a fixed seed so that
// eviction paths are reproducible.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BucketsPerBlock = 64
	cfg.Seed = 0xC0FFEE
	return cfg
}

// checkConsistency validates the block invariants across the whole filter:
//
//  1. The counter sum of a block never exceeds the FSA slot count.
//  2. FSA slots below the counter sum hold non-zero fingerprints; slots at
//     or above it are zero.
//  3. No bucket counter exceeds the per-bucket capacity.
//  4. The fullness array, when present, mirrors bucket and block saturation.
//  5. The filter's item count equals the total of all counters.
func checkConsistency(t *testing.T, f *Filter) {
	t.Helper()

	total := uint64(0)
	for blockID := uint64(0); blockID < f.nBlocks; blockID++ {
		bw := f.blockWords(blockID)

		used := uint(0)
		for i := uint(0); i < f.geo.buckets; i++ {
			cnt := f.counter(bw, i)
			if cnt > f.geo.slots {
				t.Fatalf("block %d bucket %d: counter %d exceeds capacity %d", blockID, i, cnt, f.geo.slots)
			}
			used += cnt
		}
		if used > f.geo.fsaSlots {
			t.Fatalf("block %d: counter sum %d exceeds %d FSA slots", blockID, used, f.geo.fsaSlots)
		}

		for j := uint(0); j < f.geo.fsaSlots; j++ {
			fp := f.fsaRead(bw, j)
			if j < used && fp == 0 {
				t.Fatalf("block %d: FSA slot %d inside the occupied range is zero", blockID, j)
			}
			if j >= used && fp != 0 {
				t.Fatalf("block %d: FSA slot %d beyond the occupied range holds %#x", blockID, j, fp)
			}
		}

		if f.geo.bfaEnabled {
			blockFull := used == f.geo.fsaSlots
			for i := uint(0); i < f.geo.buckets; i++ {
				want := blockFull || f.counter(bw, i) == f.geo.slots
				if got := f.bfaBit(bw, i); got != want {
					t.Fatalf("block %d bucket %d: fullness bit %v, want %v", blockID, i, got, want)
				}
			}
		}

		total += uint64(used)
	}

	if total != f.count {
		t.Fatalf("stored fingerprints %d != filter count %d", total, f.count)
	}
}

// sequentialKeys returns the keys lo..hi inclusive.
func sequentialKeys(lo, hi uint64) []uint64 {
	keys := make([]uint64, 0, hi-lo+1)
	for k := lo; k <= hi; k++ {
		keys = append(keys, k)
	}
	return keys
}
