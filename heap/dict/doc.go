// Package dict provides a size-indexed dictionary of free memory chunks.
//
// # Overview
//
// Free chunks of equal size are kept on a doubly linked SizeList, and the
// lists are the nodes of a binary search tree keyed by size. Everything the
// dictionary needs lives inside the free memory it describes: each chunk
// starts with a small header (size, flags, list links), and the first chunk
// of every list also carries the list's control block (head, tail, count,
// tree links, hint). Only the per-list census is kept out of line.
//
// # Allocation
//
//   - RemoveBestFit(size, AtLeast): exact size if present, else the smallest larger size
//   - RemoveBestFit(size, Exactly): exact size or nothing
//   - Insert(chunk): return a free chunk
//   - RemoveChunk(chunk): pull a specific chunk, for coalescing
//
// Running out of memory is not an error: RemoveBestFit reports false and the
// caller decides whether to expand, collect or give up.
//
// # Usage Example
//
//	mem, err := region.New(region.Region{Start: 0x10000, Words: 1 << 20})
//	if err != nil {
//	    return err
//	}
//	defer mem.Close()
//
//	d, err := dict.New(mem, nil) // one free chunk spanning the region
//	if err != nil {
//	    return err
//	}
//
//	c, ok := d.RemoveBestFit(64, dict.AtLeast)
//	if !ok {
//	    // exhausted
//	}
//
// # Relocation
//
// Taking the first chunk of a list moves the control block into the next
// chunk, so the list changes identity. RemoveChunkAndRepair returns the new
// identity and fixes every reference to the old one. Allocation takes the
// second chunk whenever there is one (FirstAvailable) to keep this rare.
//
// # Census
//
// Each list keeps birth and death counters by origin (split or coalesce), a
// desired population derived from a padded demand-rate average, and a
// surplus. BeginSweepCensus and EndSweepCensus bracket a collector sweep;
// EndSweepCensus also rebuilds the hints, which in adaptive mode redirect an
// allocation away from a scarce size to a larger one with a surplus.
//
// # Thread Safety
//
// A Dictionary is not safe for concurrent use. Callers hold a lock of their
// own; with Config.Verify set, Config.LockHeld is asserted on every mutation
// and the whole tree is checked before and after it.
package dict
