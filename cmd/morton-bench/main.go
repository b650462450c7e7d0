// morton-bench measures Morton filter throughput and accuracy on a random
// 64-bit key stream, optionally running the plain cuckoo filter over the
// same stream for comparison.
//
// Phases
// ======
//
// The run mirrors the classic filter benchmark shape:
//
//  1. Construct a filter with the requested number of logical slots.
//  2. Insert batches of random keys until the target physical load factor.
//  3. Probe with a mix of inserted and never-inserted keys, measuring
//     positive and negative lookup throughput and the realized false
//     positive ratio.
//  4. Delete the inserted keys, measuring deletion throughput.
//
// After the insert and delete phases the tool prints the filter's own diagnostics: block
// occupancy, OTA occupancy, compression ratio, and the modeled false
// positive ratio, so measured numbers can be compared against the model.
//
// Usage Examples
// ==============
//
// Quick run with defaults (1M slots, 95% target load):
//
//	morton-bench
//
// Large filter, measuring negative lookups only, with the cuckoo filter
// comparison:
//
//	morton-bench -slots 33554432 -overlap 0 -cuckoo
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"morton.lopezb.com/internal/pds/cuckoo"
	"morton.lopezb.com/internal/pds/morton"
)

type benchConfig struct {
	slots      uint64
	targetLoad float64
	probes     int
	overlap    float64
	seed       uint64
	batch      int
	fpBits     uint
	otaBits    uint
	runCuckoo  bool
	skipDelete bool
}

func main() {
	var cfg benchConfig

	flag.Uint64Var(&cfg.slots, "slots", 1<<20, "Logical slots in the filter")
	flag.Float64Var(&cfg.targetLoad, "load", 0.95, "Target physical load factor before probing")
	flag.IntVar(&cfg.probes, "probes", 1<<20, "Number of lookup probes")
	flag.Float64Var(&cfg.overlap, "overlap", 1.0, "Fraction of probes drawn from inserted keys (1 = positive lookups, 0 = negative)")
	flag.Uint64Var(&cfg.seed, "seed", 0xC0FFEE, "RNG and filter hash seed")
	flag.IntVar(&cfg.batch, "batch", 128, "Round insert and probe counts up to a multiple of this size")
	flag.UintVar(&cfg.fpBits, "fingerprint-bits", morton.DefaultFingerprintBits, "Fingerprint width in bits")
	flag.UintVar(&cfg.otaBits, "ota-bits", morton.DefaultOTABits, "OTA bits per block (0 disables overflow tracking)")
	flag.BoolVar(&cfg.runCuckoo, "cuckoo", false, "Also run the plain cuckoo filter for comparison")
	flag.BoolVar(&cfg.skipDelete, "skip-delete", false, "Skip the deletion phase")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(cfg, logger); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func run(cfg benchConfig, logger *slog.Logger) error {
	mcfg := morton.DefaultConfig()
	mcfg.FingerprintBits = cfg.fpBits
	mcfg.OTABits = cfg.otaBits
	mcfg.Seed = cfg.seed

	start := time.Now()
	f, err := morton.New(cfg.slots, mcfg)
	if err != nil {
		return err
	}
	logger.Info("morton filter constructed",
		"logical_slots", f.LogicalCapacity(),
		"physical_slots", f.Capacity(),
		"blocks", f.Blocks(),
		"duration", time.Since(start))

	rng := rand.New(rand.NewSource(int64(cfg.seed)))

	// Key universes: inserted keys carry the high bit, probe-only keys do
	// not, so the negative probe set is disjoint by construction.
	toInsert := roundToBatch(uint64(float64(f.Capacity())*cfg.targetLoad), cfg.batch)
	insertKeys := make([]uint64, toInsert)
	for i := range insertKeys {
		insertKeys[i] = rng.Uint64() | 1<<63
	}

	// Phase 2: insertion throughput.
	status := make([]bool, len(insertKeys))
	start = time.Now()
	f.InsertMany(insertKeys, status)
	insertDur := time.Since(start)

	accepted := 0
	for _, ok := range status {
		if ok {
			accepted++
		}
	}
	if accepted < len(insertKeys) {
		logger.Warn("not all insertions succeeded", "accepted", accepted, "attempted", len(insertKeys))
	}
	fmt.Printf("Morton insert:   %8.2f Mops (%d keys, %.1f%% accepted)\n",
		mops(len(insertKeys), insertDur), len(insertKeys), 100*float64(accepted)/float64(len(insertKeys)))
	printDiagnostics(f)

	// Phase 3: lookup throughput and realized false positive ratio.
	probeKeys := make([]uint64, roundToBatch(uint64(cfg.probes), cfg.batch))
	for i := range probeKeys {
		if rng.Float64() < cfg.overlap {
			probeKeys[i] = insertKeys[rng.Intn(len(insertKeys))]
		} else {
			probeKeys[i] = rng.Uint64() &^ (1 << 63)
		}
	}

	verdicts := make([]bool, len(probeKeys))
	start = time.Now()
	f.LikelyContainsMany(probeKeys, verdicts)
	lookupDur := time.Since(start)

	hits := 0
	negativeHits := 0
	negatives := 0
	for i, v := range verdicts {
		if v {
			hits++
		}
		if probeKeys[i]&(1<<63) == 0 {
			negatives++
			if v {
				negativeHits++
			}
		}
	}
	fmt.Printf("Morton lookup:   %8.2f Mops (%d probes, %d hits)\n",
		mops(len(probeKeys), lookupDur), len(probeKeys), hits)
	if negatives > 0 {
		fmt.Printf("Measured FPR:    %8.5f (modeled %.5f over %d negative probes)\n",
			float64(negativeHits)/float64(negatives), f.FalsePositiveRatio(), negatives)
	}

	// Phase 4: deletion throughput.
	if !cfg.skipDelete {
		deleted := make([]bool, len(insertKeys))
		start = time.Now()
		f.DeleteMany(insertKeys, deleted)
		deleteDur := time.Since(start)
		fmt.Printf("Morton delete:   %8.2f Mops\n", mops(len(insertKeys), deleteDur))
		printDiagnostics(f)
	}

	if cfg.runCuckoo {
		runCuckoo(cfg, insertKeys, probeKeys)
	}
	return nil
}

// runCuckoo drives the comparison filter over the same key stream.
func runCuckoo(cfg benchConfig, insertKeys, probeKeys []uint64) {
	cf := cuckoo.NewFilter(uint64(float64(len(insertKeys)) / cfg.targetLoad))

	start := time.Now()
	accepted := 0
	for _, k := range insertKeys {
		if cf.Insert(k) {
			accepted++
		}
	}
	insertDur := time.Since(start)
	fmt.Printf("Cuckoo insert:   %8.2f Mops (%.1f%% accepted, load %.2f)\n",
		mops(len(insertKeys), insertDur), 100*float64(accepted)/float64(len(insertKeys)), cf.LoadFactor())

	start = time.Now()
	hits := 0
	for _, k := range probeKeys {
		if cf.Contains(k) {
			hits++
		}
	}
	lookupDur := time.Since(start)
	fmt.Printf("Cuckoo lookup:   %8.2f Mops (%d hits)\n", mops(len(probeKeys), lookupDur), hits)

	if !cfg.skipDelete {
		start = time.Now()
		for _, k := range insertKeys {
			cf.Delete(k)
		}
		deleteDur := time.Since(start)
		fmt.Printf("Cuckoo delete:   %8.2f Mops\n", mops(len(insertKeys), deleteDur))
	}
}

func printDiagnostics(f *morton.Filter) {
	fmt.Printf("  block occupancy %.4f, OTA occupancy %.4f, compression ratio %.2f, modeled FPR %.5f\n",
		f.ReportBlockOccupancy(), f.ReportOTAOccupancy(), f.ReportCompressionRatio(), f.FalsePositiveRatio())
}

// roundToBatch rounds n up to a multiple of the batch size.
func roundToBatch(n uint64, batch int) uint64 {
	b := uint64(batch)
	if n%b == 0 {
		return n
	}
	return n + b - n%b
}

func mops(n int, d time.Duration) float64 {
	return float64(n) / d.Seconds() / 1e6
}
