package morton

import (
	"math/rand"
	"testing"
)

func TestResize_Disabled(t *testing.T) {
	f, err := New(1024, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := f.Resize(1); err == nil {
		t.Error("Resize succeeded on a filter built without ResizeEnabled")
	}
}

func TestResize_PreservesMembership(t *testing.T) {
	// 1. Build to half load.
	cfg := testConfig()
	cfg.ResizeEnabled = true
	f, err := New(8192, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rng := rand.New(rand.NewSource(0xC0FFEE))
	target := f.Capacity() / 2
	var keys []uint64
	for uint64(len(keys)) < target {
		k := rng.Uint64()
		if !f.Insert(k) {
			t.Fatalf("Insert failed at %d of %d", len(keys), target)
		}
		keys = append(keys, k)
	}

	oldBlocks := f.Blocks()
	oldCount := f.Count()

	// 2. Double the capacity.
	if err := f.Resize(1); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	checkConsistency(t, f)

	if f.Blocks() != oldBlocks*2 {
		t.Errorf("blocks = %d after doubling, want %d", f.Blocks(), oldBlocks*2)
	}
	if f.Count() != oldCount {
		t.Errorf("count changed across resize: %d -> %d", oldCount, f.Count())
	}
	if f.ResizeCount() != 1 {
		t.Errorf("resize count = %d, want 1", f.ResizeCount())
	}

	// 3. No previously stored key may disappear.
	for _, k := range keys {
		if !f.LikelyContains(k) {
			t.Fatalf("key %d lost across resize", k)
		}
	}

	// 4. Fill the grown filter to half of its new capacity; everything is
	// still found afterwards.
	target = f.Capacity() / 2
	for uint64(len(keys)) < target {
		k := rng.Uint64()
		if !f.Insert(k) {
			t.Fatalf("post-resize insert failed at %d of %d", len(keys), target)
		}
		keys = append(keys, k)
	}
	checkConsistency(t, f)
	for _, k := range keys {
		if !f.LikelyContains(k) {
			t.Fatalf("key %d lost after post-resize fill", k)
		}
	}
}

// TestResize_PreservesOverflowedItems pins the overflow case: a fingerprint
// whose only reachable copy rests in its alternate bucket must remain
// findable after a resize, which requires the overflow state to survive the
// rebuild. Deleting the primary-resting duplicates first makes the
// alternate-resting copy the only witness.
func TestResize_PreservesOverflowedItems(t *testing.T) {
	cfg := testConfig()
	cfg.ResizeEnabled = true
	f, err := New(4096, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// 1. Drive one copy of every key past its bucket capacity so that each
	// key has slots copies at its primary and one at its alternate.
	const keys = 150
	for k := uint64(1); k <= keys; k++ {
		for i := uint(0); i <= f.geo.slots; i++ {
			if !f.Insert(k) {
				t.Fatalf("Insert(%d) copy %d failed", k, i+1)
			}
		}
	}
	if f.ReportOTAOccupancy() == 0 {
		t.Fatal("no overflows recorded; the scenario is not exercising the OTA")
	}

	// 2. Double the capacity.
	if err := f.Resize(1); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	checkConsistency(t, f)

	// 3. Every key is still present.
	for k := uint64(1); k <= keys; k++ {
		if !f.LikelyContains(k) {
			t.Fatalf("key %d lost across resize", k)
		}
	}

	// 4. Remove the primary-resting copies; the overflowed copy must still
	// be reachable through the overflow check alone.
	for k := uint64(1); k <= keys; k++ {
		for i := uint(0); i < f.geo.slots; i++ {
			if !f.Delete(k) {
				t.Fatalf("Delete(%d) copy %d failed after resize", k, i+1)
			}
		}
		if !f.LikelyContains(k) {
			t.Fatalf("overflowed copy of key %d unreachable after resize", k)
		}
	}
	checkConsistency(t, f)
}

// TestResize_HighLoadMembership resizes a filter dense enough that many
// keys' only copy rests in an alternate bucket.
func TestResize_HighLoadMembership(t *testing.T) {
	cfg := testConfig()
	cfg.ResizeEnabled = true
	f, err := New(8192, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rng := rand.New(rand.NewSource(0xC0FFEE))
	target := f.Capacity() * 85 / 100
	var accepted []uint64
	for uint64(len(accepted)) < target {
		k := rng.Uint64()
		if !f.Insert(k) {
			break
		}
		accepted = append(accepted, k)
	}
	if f.ReportOTAOccupancy() == 0 {
		t.Fatal("no overflows at 85% load; the scenario is not exercising the OTA")
	}

	if err := f.Resize(1); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	checkConsistency(t, f)

	for _, k := range accepted {
		if !f.LikelyContains(k) {
			t.Fatalf("key %d lost across a high-load resize", k)
		}
	}
}

func TestResize_Quadruple(t *testing.T) {
	cfg := testConfig()
	cfg.ResizeEnabled = true
	f, err := New(2048, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var keys []uint64
	for k := uint64(1); k <= 500; k++ {
		if f.Insert(k) {
			keys = append(keys, k)
		}
	}

	oldBlocks := f.Blocks()
	if err := f.Resize(2); err != nil {
		t.Fatalf("Resize(2): %v", err)
	}
	checkConsistency(t, f)
	if f.Blocks() != oldBlocks*4 {
		t.Errorf("blocks = %d, want %d", f.Blocks(), oldBlocks*4)
	}
	for _, k := range keys {
		if !f.LikelyContains(k) {
			t.Fatalf("key %d lost across a 4x resize", k)
		}
	}

	// Deletes still resolve after relabeling.
	for _, k := range keys[:100] {
		if !f.Delete(k) {
			t.Fatalf("Delete(%d) failed after resize", k)
		}
	}
	checkConsistency(t, f)
}

func TestResize_ExhaustsFingerprint(t *testing.T) {
	cfg := testConfig()
	cfg.ResizeEnabled = true
	f, err := New(1024, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// 8-bit fingerprints cannot absorb 8 doublings.
	if err := f.Resize(8); err == nil {
		t.Error("Resize(8) succeeded; the fingerprint has only 8 bits to give")
	}
}

func TestResize_RaisesFalsePositiveAccounting(t *testing.T) {
	cfg := testConfig()
	cfg.ResizeEnabled = true
	f, err := New(4096, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for k := uint64(1); k <= 1000; k++ {
		f.Insert(k)
	}

	before := f.FalsePositiveRatio()
	if err := f.Resize(1); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	// Occupancy halved but each comparison now discriminates on one less
	// bit; re-fill to the original occupancy and the modeled rate must
	// exceed the pre-resize figure.
	for k := uint64(100001); f.Count() < 2000; k++ {
		f.Insert(k)
	}
	after := f.FalsePositiveRatio()
	if after <= before {
		t.Errorf("modeled FPR %.5f did not rise above %.5f after resize at equal load", after, before)
	}
}
