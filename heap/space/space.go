// Package space manages one region of memory as a free-list space: blocks are
// carved out of a size-indexed dictionary of free chunks, split on allocation
// and coalesced with their free neighbours on release. The space drives the
// dictionary's census around collector sweeps.
package space

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/google/btree"

	"github.com/joshuapare/freetree/heap/dict"
	"github.com/joshuapare/freetree/heap/region"
	"github.com/joshuapare/freetree/internal/logger"
)

// block is a live allocation in the index.
type block struct {
	addr  region.Addr
	words uint64
}

func lessBlock(a, b block) bool {
	return a.addr < b.addr
}

// SweepTiming carries the collector's interval estimates, in seconds.
type SweepTiming struct {
	InterSweepCurrent  float64 // Time since the previous sweep ended
	InterSweepEstimate float64 // Expected time until the next sweep
	IntraSweepEstimate float64 // Expected duration of a sweep
}

// Space is a free-list space over one region. It is safe for concurrent use.
type Space struct {
	mu   sync.Mutex
	held atomic.Bool

	mem  *region.Memory
	dict *dict.Dictionary
	cfg  Config
	log  *slog.Logger

	live      *btree.BTreeG[block]
	liveWords uint64

	sweeping bool
	sweeps   uint64
}

// New maps a region and seeds it with a single free chunk.
//
// Parameters:
//   - r: The region to manage
//   - config: Census and dictionary configuration (use nil for DefaultConfig)
func New(r region.Region, config *Config) (*Space, error) {
	if config == nil {
		config = &DefaultConfig
	}
	cfg := *config

	log := cfg.Logger
	if log == nil {
		log = logger.L
	}

	mem, err := region.New(r)
	if err != nil {
		return nil, err
	}

	s := &Space{
		mem:  mem,
		cfg:  cfg,
		log:  log.With("component", "space"),
		live: btree.NewG(16, lessBlock),
	}

	dcfg := dict.DefaultConfig
	if cfg.Dict != nil {
		dcfg = *cfg.Dict
	}
	dcfg.LockHeld = s.held.Load
	if dcfg.Logger == nil {
		dcfg.Logger = log
	}

	s.dict, err = dict.New(mem, &dcfg)
	if err != nil {
		_ = mem.Close()
		return nil, errors.Wrapf(err, "space: seed %s", r)
	}
	return s, nil
}

// Close releases the region. The space must not be used afterwards.
func (s *Space) Close() error {
	s.lock()
	defer s.unlock()
	return s.mem.Close()
}

func (s *Space) lock() {
	s.mu.Lock()
	s.held.Store(true)
}

func (s *Space) unlock() {
	s.held.Store(false)
	s.mu.Unlock()
}

// Region returns the managed region.
func (s *Space) Region() region.Region {
	return s.mem.Region
}

// MinBlock returns the smallest block, in words, the space hands out.
func (s *Space) MinBlock() uint64 {
	return s.dict.MinSize()
}

// Allocate returns the address of a new block of at least words words.
// Requests below MinBlock are rounded up. The best-fitting free chunk is split
// when the remainder can stand on its own as a free chunk; otherwise the whole
// chunk is handed out.
func (s *Space) Allocate(words uint64) (region.Addr, error) {
	if words == 0 {
		return 0, ErrZeroSize
	}
	words = max(words, s.dict.MinSize())

	s.lock()
	defer s.unlock()

	c, ok := s.dict.RemoveBestFit(words, dict.AtLeast)
	if !ok {
		s.log.Debug("exhausted", "words", words, "free", s.dict.TotalSize(), "max_chunk", s.dict.MaxChunkSize())
		return 0, errors.Wrapf(ErrExhausted, "%d words (largest free chunk %d)", words, s.dict.MaxChunkSize())
	}

	addr, size := c.Addr(), c.Size()
	if rem := size - words; rem >= s.dict.MinSize() {
		if err := s.split(c, words); err != nil {
			return 0, err
		}
		size = words
	}

	blk, err := s.dict.MakeChunk(addr, size)
	if err != nil {
		return 0, err
	}
	blk.MarkNotFree()
	s.live.ReplaceOrInsert(block{addr: addr, words: size})
	s.liveWords += size
	return addr, nil
}

// split cuts c after its first words words and returns the tail to the
// dictionary, recording the census of both halves.
func (s *Space) split(c dict.Chunk, words uint64) error {
	size := c.Size()
	s.dict.CensusUpdate(size, true, false)

	rem, err := s.dict.MakeChunk(c.Addr()+region.Addr(words), size-words)
	if err != nil {
		return err
	}
	if err := s.dict.Insert(rem); err != nil {
		return err
	}
	s.dict.CensusUpdate(rem.Size(), true, true)
	s.dict.CensusUpdate(words, true, true)
	return nil
}

// Free releases the block at addr. The block merges with a free neighbour on
// either side unless one of them is marked can't-coalesce or, for a
// neighbour, its size is scarce enough that the dictionary wants to keep it.
func (s *Space) Free(addr region.Addr) error {
	s.lock()
	defer s.unlock()

	b, ok := s.live.Get(block{addr: addr})
	if !ok {
		return errors.Wrapf(ErrNotAllocated, "%#x", uint64(addr))
	}
	blk, ok := s.dict.ChunkAt(addr)
	if !ok {
		return errors.Wrapf(ErrNotAllocated, "%#x: no header", uint64(addr))
	}
	pinned := blk.CantCoalesce()

	start, size := addr, b.words
	coalesced := false
	if !pinned {
		if prev, ok := s.dict.FindChunkEndingAt(addr); ok && s.mergeable(prev) {
			if err := s.absorb(prev); err != nil {
				return err
			}
			start = prev.Addr()
			size += prev.Size()
			coalesced = true
		}
		if next, ok := s.dict.ChunkAt(addr + region.Addr(b.words)); ok && next.IsFree() && s.mergeable(next) {
			if err := s.absorb(next); err != nil {
				return err
			}
			size += next.Size()
			coalesced = true
		}
	}

	c, err := s.dict.MakeChunk(start, size)
	if err != nil {
		return err
	}
	c.SetCantCoalesce(pinned)
	if err := s.dict.Insert(c); err != nil {
		return err
	}
	if coalesced {
		s.dict.CensusUpdate(size, false, true)
	}

	s.live.Delete(b)
	s.liveWords -= b.words
	return nil
}

func (s *Space) mergeable(c dict.Chunk) bool {
	return !c.CantCoalesce() && s.dict.CoalOverPopulated(c.Size())
}

// absorb takes a free neighbour out of the dictionary as a coalesce death.
func (s *Space) absorb(c dict.Chunk) error {
	s.dict.CensusUpdate(c.Size(), false, false)
	return s.dict.RemoveChunk(c)
}

// SetCantCoalesce pins or unpins the live block at addr. A pinned block keeps
// its boundaries when it is freed and its neighbours never merge into it.
func (s *Space) SetCantCoalesce(addr region.Addr, v bool) error {
	s.lock()
	defer s.unlock()

	if _, ok := s.live.Get(block{addr: addr}); !ok {
		return errors.Wrapf(ErrNotAllocated, "%#x", uint64(addr))
	}
	blk, ok := s.dict.ChunkAt(addr)
	if !ok {
		return errors.Wrapf(ErrNotAllocated, "%#x: no header", uint64(addr))
	}
	blk.SetCantCoalesce(v)
	return nil
}

// BeginSweep starts a census sweep with the collector's timing estimates.
func (s *Space) BeginSweep(t SweepTiming) error {
	s.lock()
	defer s.unlock()

	if s.sweeping {
		return ErrSweepInProgress
	}
	s.sweeping = true
	s.dict.BeginSweepCensus(s.cfg.CoalSurplusPercent, t.InterSweepCurrent, t.InterSweepEstimate, t.IntraSweepEstimate)
	return nil
}

// EndSweep finishes the census sweep started by BeginSweep.
func (s *Space) EndSweep() error {
	s.lock()
	defer s.unlock()

	if !s.sweeping {
		return ErrNoSweep
	}
	s.sweeping = false
	s.sweeps++
	s.dict.EndSweepCensus(s.cfg.SplitSurplusPercent)
	s.log.Debug("sweep done", "sweeps", s.sweeps, "free", s.dict.TotalSize(), "frag", s.frag())
	return nil
}

// Reset frees every block at once, as after a full compaction, leaving one
// free chunk spanning the region.
func (s *Space) Reset() error {
	s.lock()
	defer s.unlock()

	s.live.Clear(false)
	s.liveWords = 0
	s.sweeping = false
	return s.dict.Reset(s.mem.Region)
}

// Stats is a snapshot of a space.
type Stats struct {
	Words      uint64  // Region size
	FreeWords  uint64  // Words on the free lists
	LiveWords  uint64  // Words in live blocks
	FreeBlocks uint64  // Free chunks
	LiveBlocks uint64  // Live blocks
	MaxFree    uint64  // Largest free chunk
	Lists      int     // Distinct free chunk sizes
	TreeHeight int     // Height of the size tree
	Frag       float64 // See Frag
	Sweeps     uint64  // Completed sweeps
}

// Stats returns a snapshot of the space.
func (s *Space) Stats() Stats {
	s.lock()
	defer s.unlock()

	return Stats{
		Words:      s.mem.Words,
		FreeWords:  s.dict.TotalSize(),
		LiveWords:  s.liveWords,
		FreeBlocks: s.dict.NumFreeBlocks(),
		LiveBlocks: uint64(s.live.Len()),
		MaxFree:    s.dict.MaxChunkSize(),
		Lists:      s.dict.TotalNodes(),
		TreeHeight: s.dict.TreeHeight(),
		Frag:       s.frag(),
		Sweeps:     s.sweeps,
	}
}

// Frag returns the fragmentation of the free space: 0 when it is one chunk,
// approaching 1 as it splinters into many small ones.
func (s *Space) Frag() float64 {
	s.lock()
	defer s.unlock()
	return s.frag()
}

func (s *Space) frag() float64 {
	total := float64(s.dict.TotalSize())
	if total == 0 {
		return 0
	}
	return 1 - s.dict.SumOfSquaredBlockSizes()/(total*total)
}

// Walk calls fn for every block in address order, free or live, until fn
// returns false. Blocks tile the region, so Walk is also a layout check: it
// returns an error if a header is missing or a block overruns the region.
func (s *Space) Walk(fn func(addr region.Addr, words uint64, free bool) bool) error {
	s.lock()
	defer s.unlock()

	r := s.mem.Region
	for addr := r.Start; addr < r.End(); {
		c, ok := s.dict.ChunkAt(addr)
		if !ok {
			return errors.Newf("space: no block header at %#x", uint64(addr))
		}
		if !fn(addr, c.Size(), c.IsFree()) {
			return nil
		}
		addr = c.End()
	}
	return nil
}

// View runs fn with exclusive access to the dictionary, for diagnostics.
func (s *Space) View(fn func(d *dict.Dictionary) error) error {
	s.lock()
	defer s.unlock()
	return fn(s.dict)
}

// Verify checks the dictionary invariants and that free and live blocks
// account for the whole region.
func (s *Space) Verify() error {
	s.lock()
	defer s.unlock()

	if err := s.dict.Verify(); err != nil {
		return err
	}
	if got := s.dict.TotalSize() + s.liveWords; got != s.mem.Words {
		return errors.Newf("space: free %d + live %d words != region %d",
			s.dict.TotalSize(), s.liveWords, s.mem.Words)
	}
	return nil
}

// WriteReport writes the dictionary statistics, census and free lists to w.
func (s *Space) WriteReport(w io.Writer) error {
	return s.View(func(d *dict.Dictionary) error {
		if err := d.ReportStatistics(w); err != nil {
			return err
		}
		if err := d.PrintCensus(w); err != nil {
			return err
		}
		return d.PrintFreeLists(w)
	})
}
