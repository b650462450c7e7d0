// handlers.go implements the MF.* command family plus the server
// housekeeping commands.
//
// Item Hashing
// ============
//
// The filter core consumes 64-bit keys. Clients send arbitrary strings, so
// every handler derives the key as xxhash of the item's bytes before
// touching the filter. Hashing at the edge keeps the core free of byte
// handling and means an item is addressed identically no matter which
// client library sent it.
//
// Concurrency Strategy
// ====================
//
//   - MF.EXISTS, MF.INFO, STATS: Store.View (shared read lock)
//   - MF.CREATE, MF.INSERT, MF.DEL, MF.RESIZE, MF.DROP: Store.Mutate or the
//     dedicated Create/Drop entry points (exclusive write lock)
package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"morton.lopezb.com/internal/pds/morton"
)

// itemKey maps a client-supplied item string to the filter's key space.
func itemKey(item string) uint64 {
	return xxhash.Sum64String(item)
}

// handlePing handles the PING command.
func (app *application) handlePing(w io.Writer, args []string) {
	if len(args) > 0 {
		_ = app.writeBulkStringResponse(w, args[0])
		return
	}
	_ = app.writeSimpleStringResponse(w, "PONG")
}

// handleStats handles the STATS command, reporting server-level counters.
func (app *application) handleStats(w io.Writer, args []string) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "total_connections:%d\r\n", app.metrics.TotalConnections.Load())
	fmt.Fprintf(&sb, "total_commands:%d\r\n", app.metrics.TotalCommands.Load())
	fmt.Fprintf(&sb, "filters:%d\r\n", app.store.Len())
	_ = app.writeBulkStringResponse(w, sb.String())
}

// handleMFCreate handles the MF.CREATE command.
// Syntax: MF.CREATE key slots [SLOTSPERBUCKET n] [FPBITS n] [OTABITS n]
// [RATIO x] [SEED n] [NORESIZE]
//
// Creates a filter sized for the given number of logical slots. Optional
// parameter pairs override the server defaults. Returns an error if the key
// already exists or the configuration is rejected by the filter core.
func (app *application) handleMFCreate(w io.Writer, args []string) {
	if len(args) < 2 {
		app.wrongNumberOfArgsResponse(w, "MF.CREATE")
		return
	}

	key := args[0]
	slots, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil || slots == 0 {
		_ = app.writeErrorResponse(w, "ERR invalid slot count")
		return
	}

	cfg := app.defaultFilterConfig()
	rest := args[2:]
	for len(rest) > 0 {
		opt := strings.ToUpper(rest[0])
		if opt == "NORESIZE" {
			cfg.ResizeEnabled = false
			rest = rest[1:]
			continue
		}
		if len(rest) < 2 {
			_ = app.writeErrorResponse(w, fmt.Sprintf("ERR missing value for option '%s'", rest[0]))
			return
		}
		val := rest[1]
		switch opt {
		case "SLOTSPERBUCKET":
			n, err := strconv.ParseUint(val, 10, 8)
			if err != nil {
				_ = app.writeErrorResponse(w, "ERR invalid SLOTSPERBUCKET")
				return
			}
			cfg.SlotsPerBucket = uint(n)
		case "FPBITS":
			n, err := strconv.ParseUint(val, 10, 8)
			if err != nil {
				_ = app.writeErrorResponse(w, "ERR invalid FPBITS")
				return
			}
			cfg.FingerprintBits = uint(n)
		case "OTABITS":
			n, err := strconv.ParseUint(val, 10, 16)
			if err != nil {
				_ = app.writeErrorResponse(w, "ERR invalid OTABITS")
				return
			}
			cfg.OTABits = uint(n)
		case "RATIO":
			x, err := strconv.ParseFloat(val, 64)
			if err != nil || x <= 0 {
				_ = app.writeErrorResponse(w, "ERR invalid RATIO")
				return
			}
			cfg.CompressionRatio = x
			cfg.BucketsPerBlock = 0
		case "SEED":
			n, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				_ = app.writeErrorResponse(w, "ERR invalid SEED")
				return
			}
			cfg.Seed = n
		default:
			_ = app.writeErrorResponse(w, fmt.Sprintf("ERR unknown option '%s'", rest[0]))
			return
		}
		rest = rest[2:]
	}

	f, err := morton.New(slots, cfg)
	if err != nil {
		_ = app.writeErrorResponse(w, "ERR "+err.Error())
		return
	}
	if !app.store.Create(key, f) {
		_ = app.writeErrorResponse(w, "ERR key already exists")
		return
	}

	app.logger.Info("filter created", "key", key, "logical_slots", slots,
		"physical_slots", f.Capacity(), "blocks", f.Blocks())
	_ = app.writeSimpleStringResponse(w, "OK")
}

// handleMFInsert handles the MF.INSERT command.
// Syntax: MF.INSERT key item [item ...]
//
// Returns the number of items accepted. An item can be rejected when the
// filter is saturated; accepted and rejected items may interleave.
func (app *application) handleMFInsert(w io.Writer, args []string) {
	if len(args) < 2 {
		app.wrongNumberOfArgsResponse(w, "MF.INSERT")
		return
	}

	var (
		missing  bool
		accepted int64
	)
	app.store.Mutate(args[0], func(f *morton.Filter) {
		if f == nil {
			missing = true
			return
		}
		for _, item := range args[1:] {
			if f.Insert(itemKey(item)) {
				accepted++
			}
		}
	})

	if missing {
		app.noSuchKeyResponse(w)
		return
	}
	_ = app.writeIntegerResponse(w, accepted)
}

// handleMFExists handles the MF.EXISTS command.
// Syntax: MF.EXISTS key item [item ...]
//
// Returns a single 0/1 for one item, or an integer array for several.
func (app *application) handleMFExists(w io.Writer, args []string) {
	if len(args) < 2 {
		app.wrongNumberOfArgsResponse(w, "MF.EXISTS")
		return
	}

	var (
		missing  bool
		verdicts []int64
	)
	app.store.View(args[0], func(f *morton.Filter) {
		if f == nil {
			missing = true
			return
		}
		verdicts = make([]int64, 0, len(args)-1)
		for _, item := range args[1:] {
			if f.LikelyContains(itemKey(item)) {
				verdicts = append(verdicts, 1)
			} else {
				verdicts = append(verdicts, 0)
			}
		}
	})

	if missing {
		app.noSuchKeyResponse(w)
		return
	}
	if len(verdicts) == 1 {
		_ = app.writeIntegerResponse(w, verdicts[0])
		return
	}
	_ = app.writeIntArrayResponse(w, verdicts)
}

// handleMFDel handles the MF.DEL command.
// Syntax: MF.DEL key item [item ...]
//
// Removes one stored occurrence per listed item and returns the number
// removed. Deleting an absent item is not an error.
func (app *application) handleMFDel(w io.Writer, args []string) {
	if len(args) < 2 {
		app.wrongNumberOfArgsResponse(w, "MF.DEL")
		return
	}

	var (
		missing bool
		removed int64
	)
	app.store.Mutate(args[0], func(f *morton.Filter) {
		if f == nil {
			missing = true
			return
		}
		for _, item := range args[1:] {
			if f.Delete(itemKey(item)) {
				removed++
			}
		}
	})

	if missing {
		app.noSuchKeyResponse(w)
		return
	}
	_ = app.writeIntegerResponse(w, removed)
}

// handleMFResize handles the MF.RESIZE command.
// Syntax: MF.RESIZE key k
//
// Grows the filter's capacity by a factor of 2^k.
func (app *application) handleMFResize(w io.Writer, args []string) {
	if len(args) != 2 {
		app.wrongNumberOfArgsResponse(w, "MF.RESIZE")
		return
	}

	k, err := strconv.ParseUint(args[1], 10, 8)
	if err != nil || k == 0 {
		_ = app.writeErrorResponse(w, "ERR invalid resize factor")
		return
	}

	var (
		missing   bool
		resizeErr error
	)
	app.store.Mutate(args[0], func(f *morton.Filter) {
		if f == nil {
			missing = true
			return
		}
		resizeErr = f.Resize(uint(k))
	})

	if missing {
		app.noSuchKeyResponse(w)
		return
	}
	if resizeErr != nil {
		_ = app.writeErrorResponse(w, "ERR "+resizeErr.Error())
		return
	}
	app.logger.Info("filter resized", "key", args[0], "factor", 1<<k)
	_ = app.writeSimpleStringResponse(w, "OK")
}

// handleMFInfo handles the MF.INFO command.
// Syntax: MF.INFO key
//
// Reports geometry, occupancy, and the modeled false positive ratio.
func (app *application) handleMFInfo(w io.Writer, args []string) {
	if len(args) != 1 {
		app.wrongNumberOfArgsResponse(w, "MF.INFO")
		return
	}

	var (
		missing bool
		info    string
	)
	app.store.View(args[0], func(f *morton.Filter) {
		if f == nil {
			missing = true
			return
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "count:%d\r\n", f.Count())
		fmt.Fprintf(&sb, "physical_slots:%d\r\n", f.Capacity())
		fmt.Fprintf(&sb, "logical_slots:%d\r\n", f.LogicalCapacity())
		fmt.Fprintf(&sb, "blocks:%d\r\n", f.Blocks())
		fmt.Fprintf(&sb, "buckets_per_block:%d\r\n", f.BucketsPerBlock())
		fmt.Fprintf(&sb, "slots_per_block:%d\r\n", f.SlotsPerBlock())
		fmt.Fprintf(&sb, "resize_count:%d\r\n", f.ResizeCount())
		fmt.Fprintf(&sb, "block_occupancy:%.4f\r\n", f.ReportBlockOccupancy())
		fmt.Fprintf(&sb, "ota_occupancy:%.4f\r\n", f.ReportOTAOccupancy())
		fmt.Fprintf(&sb, "compression_ratio:%.4f\r\n", f.ReportCompressionRatio())
		fmt.Fprintf(&sb, "false_positive_ratio:%.6f\r\n", f.FalsePositiveRatio())
		info = sb.String()
	})

	if missing {
		app.noSuchKeyResponse(w)
		return
	}
	_ = app.writeBulkStringResponse(w, info)
}

// handleMFDrop handles the MF.DROP command.
// Syntax: MF.DROP key
func (app *application) handleMFDrop(w io.Writer, args []string) {
	if len(args) != 1 {
		app.wrongNumberOfArgsResponse(w, "MF.DROP")
		return
	}
	if !app.store.Drop(args[0]) {
		app.noSuchKeyResponse(w)
		return
	}
	_ = app.writeSimpleStringResponse(w, "OK")
}
