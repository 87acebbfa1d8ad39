package dict

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/freetree/heap/region"
	"github.com/joshuapare/freetree/internal/format"
	"github.com/joshuapare/freetree/internal/logger"
)

// Dither selects how strictly RemoveBestFit matches the requested size.
type Dither int

const (
	// AtLeast serves the exact size if present, else the smallest larger size.
	AtLeast Dither = iota
	// Exactly serves only the exact size.
	Exactly
)

// Dictionary owns the size tree covering one region of memory and the
// aggregate counters over it. It is not safe for concurrent use; callers
// serialize access with a lock of their own (see Config.LockHeld).
type Dictionary struct {
	mem *region.Memory
	cfg Config
	log *slog.Logger

	root            SizeList
	totalSize       uint64 // Σ size × count, in words
	totalFreeBlocks uint64 // Σ count

	census   censusArena
	detached int // Lists made by AsList and not yet emptied
}

// New creates a dictionary over mem, seeded with one free chunk spanning the
// whole region.
//
// Parameters:
//   - mem: Storage for the region; the dictionary writes chunk headers into it
//   - config: Policy and debug configuration (use nil for DefaultConfig)
func New(mem *region.Memory, config *Config) (*Dictionary, error) {
	d, err := NewEmpty(mem, config)
	if err != nil {
		return nil, err
	}
	if err := d.reset(mem.Region); err != nil {
		return nil, err
	}
	return d, nil
}

// NewEmpty creates a dictionary over mem holding no free chunks.
func NewEmpty(mem *region.Memory, config *Config) (*Dictionary, error) {
	if mem == nil {
		return nil, errors.New("dict: nil memory")
	}
	if mem.Words > region.MaxWords {
		return nil, errors.Wrapf(ErrRegionTooLarge, "%d words", mem.Words)
	}
	if config == nil {
		config = &DefaultConfig
	}
	cfg := *config
	if cfg.DemandWeight > 100 {
		cfg.DemandWeight = 100
	}
	log := cfg.Logger
	if log == nil {
		log = logger.L
	}
	return &Dictionary{mem: mem, cfg: cfg, log: log.With("component", "dict")}, nil
}

// MinSize returns the smallest chunk, in words, the dictionary can hold.
func (d *Dictionary) MinSize() uint64 {
	return format.MinTreeChunkWords
}

// Region returns the region the dictionary manages.
func (d *Dictionary) Region() region.Region {
	return d.mem.Region
}

// Config returns the dictionary's configuration.
func (d *Dictionary) Config() Config {
	return d.cfg
}

// TotalSize returns the number of free words in the dictionary.
func (d *Dictionary) TotalSize() uint64 {
	return d.totalSize
}

// NumFreeBlocks returns the number of free chunks in the dictionary.
func (d *Dictionary) NumFreeBlocks() uint64 {
	return d.totalFreeBlocks
}

// Root returns the root of the size tree, nil when the dictionary is empty.
func (d *Dictionary) Root() SizeList {
	return d.root
}

// Clear discards every free chunk. The region memory is left untouched.
func (d *Dictionary) Clear() {
	d.assertLocked()
	d.clear()
}

func (d *Dictionary) clear() {
	d.root = SizeList{}
	d.totalSize = 0
	d.totalFreeBlocks = 0
	d.detached = 0
	d.census.reset()
}

// Reset discards the tree and re-seeds it with a single chunk covering r.
// Used when the region is (re)initialized or after a full compaction left it
// entirely free.
func (d *Dictionary) Reset(r region.Region) error {
	d.assertLocked()
	return d.reset(r)
}

func (d *Dictionary) reset(r region.Region) error {
	d.clear()
	if r.Words < d.MinSize() {
		return errors.Wrapf(ErrSizeTooSmall, "region %s", r)
	}
	c, err := d.MakeChunk(r.Start, r.Words)
	if err != nil {
		return err
	}
	d.root = d.asList(c)
	d.totalSize = r.Words
	d.totalFreeBlocks = 1
	d.log.Debug("reset", "region", r.String())
	return nil
}

// MakeChunk writes a free chunk header of the given size at addr and returns
// the chunk. The chunk is not inserted.
func (d *Dictionary) MakeChunk(addr region.Addr, words uint64) (Chunk, error) {
	if words < d.MinSize() {
		return Chunk{}, errors.Wrapf(ErrSizeTooSmall, "%d words at %#x", words, uint64(addr))
	}
	if !d.mem.ContainsRange(addr, words) {
		return Chunk{}, errors.Wrapf(ErrOutOfRegion, "%d words at %#x", words, uint64(addr))
	}
	c := Chunk{mem: d.mem, r: d.mem.Offset(addr)}
	c.setSize(words)
	c.set(format.ChunkFlagsOffset, format.FlagFree)
	c.linkNext(Chunk{})
	c.linkPrev(Chunk{})
	c.setListRef(format.NilRef)
	return c, nil
}

// ChunkAt reinterprets the header at addr. It reports false when addr is
// outside the region or the header does not describe a chunk within it.
func (d *Dictionary) ChunkAt(addr region.Addr) (Chunk, bool) {
	if !d.mem.Contains(addr) {
		return Chunk{}, false
	}
	off := d.mem.Offset(addr)
	h, err := format.DecodeHeader(d.mem.Bytes(), format.WordOffset(off))
	if err != nil || !d.mem.ContainsRange(addr, uint64(h.Words)) {
		return Chunk{}, false
	}
	return Chunk{mem: d.mem, r: off}, true
}

// AsList turns the free chunk c into a new one-element size list that is not
// linked into the tree. The list holds a census slot until it is emptied.
func (d *Dictionary) AsList(c Chunk) (SizeList, error) {
	if err := d.checkChunk(c); err != nil {
		return SizeList{}, err
	}
	d.detached++
	return d.asList(c), nil
}

func (d *Dictionary) asList(c Chunk) SizeList {
	l := SizeList{d: d, host: c}
	c.setListRef(c.r)
	c.linkNext(Chunk{})
	c.linkPrev(Chunk{})
	l.setHead(c)
	l.setTail(c)
	l.setCount(1)
	l.clearParent()
	l.clearLeft()
	l.clearRight()
	l.setHint(0)
	slot := d.census.alloc()
	l.setSlot(slot)
	d.census.at(slot).initialize(true, d.cfg.DemandWeight, d.cfg.DemandPadding)
	return l
}

// Insert returns the free chunk c to the dictionary.
func (d *Dictionary) Insert(c Chunk) error {
	if err := d.checkChunk(c); err != nil {
		return err
	}
	// Chunks leave the dictionary with a nil list reference, so only a chunk
	// claiming a list needs the O(list) membership scan outside verify mode.
	if (d.cfg.Verify || c.listRef() != format.NilRef) && d.VerifyChunkInFreeLists(c) {
		return errors.Wrapf(ErrAlreadyFree, "%s", c)
	}
	if d.cfg.Verify {
		d.assertLocked()
		d.mustVerifyTree()
	}
	d.insertChunkInTree(c)
	if d.cfg.Verify {
		d.mustVerify()
	}
	return nil
}

// RemoveBestFit takes a chunk of at least size words out of the dictionary
// (exactly size words with Exactly). It reports false when no chunk is large
// enough; that is an exhaustion signal for the caller, not an error.
//
// An exact-size list is always preferred. In adaptive mode a list with no
// surplus may redirect the request along its hint chain to a larger size.
// The returned chunk still carries the free bit; the caller owns it.
func (d *Dictionary) RemoveBestFit(size uint64, dither Dither) (Chunk, bool) {
	if d.cfg.Verify {
		d.assertLocked()
		d.mustVerifyTree()
	}
	c := d.getChunkFromTree(size, dither)
	if d.cfg.Verify {
		d.mustVerify()
	}
	return c, !c.IsNil()
}

// RemoveChunk takes the specific free chunk c out of the dictionary. Used by
// coalescing, which must pull neighbours off their lists.
func (d *Dictionary) RemoveChunk(c Chunk) error {
	if err := d.checkChunk(c); err != nil {
		return err
	}
	if c.listRef() == format.NilRef || c.listRef() >= uint32(d.mem.Words) {
		return errors.Wrapf(ErrNotInDictionary, "%s", c)
	}
	if d.cfg.Verify {
		d.assertLocked()
		if !d.VerifyChunkInFreeLists(c) {
			return errors.Wrapf(ErrNotInDictionary, "%s", c)
		}
		d.mustVerifyTree()
	}
	d.removeChunkFromTree(c)
	if d.cfg.Verify {
		d.mustVerify()
	}
	return nil
}

// VerifyChunkInFreeLists reports whether c is on the list for its size.
func (d *Dictionary) VerifyChunkInFreeLists(c Chunk) bool {
	l, ok := d.FindList(c.Size())
	if !ok {
		return false
	}
	return l.VerifyChunkInFreeList(c)
}

// Census entry points called by the collector.

// CensusUpdate records a split or coalesce birth or death of a chunk of the
// given size. A size with no list is ignored: a death may have emptied it, and
// a birth may belong to a chunk that never entered the dictionary.
func (d *Dictionary) CensusUpdate(size uint64, split, birth bool) {
	l, ok := d.FindList(size)
	if !ok {
		return
	}
	switch {
	case split && birth:
		l.IncrementSplitBirths()
		l.IncrementSurplus()
	case split:
		l.IncrementSplitDeaths()
		l.DecrementSurplus()
	case birth:
		l.IncrementCoalBirths()
		l.IncrementSurplus()
	default:
		l.IncrementCoalDeaths()
		l.DecrementSurplus()
	}
}

// CoalOverPopulated reports whether chunks of this size are plentiful enough
// that coalescing them into larger chunks is preferred. A size with no list is
// over-populated by definition.
func (d *Dictionary) CoalOverPopulated(size uint64) bool {
	if d.cfg.AlwaysCoalesceLarge {
		return true
	}
	l, ok := d.FindList(size)
	if !ok {
		return true
	}
	s := l.stats()
	return s.CoalDesired <= 0 || int64(l.Count()) > s.CoalDesired
}

// BeginSweepCensus starts a sweep: every list recomputes its desired
// population from the timing estimates (seconds), derives its coalesce target
// and snapshots its population and surplus.
func (d *Dictionary) BeginSweepCensus(coalSurplusPercent, interSweepCurrent, interSweepEstimate, intraSweepEstimate float64) {
	d.assertLocked()
	d.Ascend(func(l SizeList) bool {
		l.ComputeDesired(interSweepCurrent, interSweepEstimate, intraSweepEstimate)
		s := l.stats()
		s.CoalDesired = int64(float64(s.Desired) * coalSurplusPercent)
		s.BeforeSweep = int64(l.Count())
		s.BfrSurp = s.Surplus
		return true
	})
}

// EndSweepCensus finishes a sweep: surpluses are recomputed against the
// desired populations, hints are rebuilt and the birth/death counters reset.
func (d *Dictionary) EndSweepCensus(splitSurplusPercent float64) {
	d.assertLocked()
	d.setTreeSurplus(splitSurplusPercent)
	d.setTreeHints()
	if d.log.Enabled(context.Background(), slog.LevelDebug) {
		d.log.Debug("end sweep census",
			"total_size", d.totalSize,
			"free_blocks", d.totalFreeBlocks,
			"max_chunk", d.MaxChunkSize(),
			"height", d.TreeHeight())
	}
	d.clearTreeCensus()
}

func (d *Dictionary) setTreeSurplus(splitSurplusPercent float64) {
	d.Ascend(func(l SizeList) bool {
		s := l.stats()
		s.Surplus = int64(l.Count()) - int64(float64(s.Desired)*splitSurplusPercent)
		return true
	})
}

// setTreeHints walks from the largest size down so that each list's hint
// names the nearest strictly larger size with a surplus.
func (d *Dictionary) setTreeHints() {
	var hint uint64
	d.Descend(func(l SizeList) bool {
		l.setHint(hint)
		if l.Surplus() > 0 {
			hint = l.Size()
		}
		return true
	})
}

func (d *Dictionary) clearTreeCensus() {
	d.Ascend(func(l SizeList) bool {
		s := l.stats()
		s.PrevSweep = int64(l.Count())
		s.CoalBirths = 0
		s.CoalDeaths = 0
		s.SplitBirths = 0
		s.SplitDeaths = 0
		return true
	})
}

// ClearReturnedBytes zeroes the returned-bytes counter of every list.
func (d *Dictionary) ClearReturnedBytes() {
	d.Ascend(func(l SizeList) bool {
		l.stats().ReturnedBytes = 0
		return true
	})
}

// SumReturnedBytes totals the returned-bytes counter over every list.
func (d *Dictionary) SumReturnedBytes() uint64 {
	var sum uint64
	d.Ascend(func(l SizeList) bool {
		sum += l.stats().ReturnedBytes
		return true
	})
	return sum
}

// checkChunk validates c against the region and the minimum size.
func (d *Dictionary) checkChunk(c Chunk) error {
	if c.IsNil() || c.mem != d.mem {
		return errors.Wrapf(ErrOutOfRegion, "%s", c)
	}
	size := c.Size()
	if size < d.MinSize() {
		return errors.Wrapf(ErrSizeTooSmall, "%s", c)
	}
	if !d.mem.ContainsRange(c.Addr(), size) {
		return errors.Wrapf(ErrOutOfRegion, "%s", c)
	}
	if !c.IsFree() {
		return errors.Wrapf(ErrNotFree, "%s", c)
	}
	return nil
}

// list wraps a host chunk, mapping the nil chunk to the nil list.
func (d *Dictionary) list(host Chunk) SizeList {
	if host.IsNil() {
		return SizeList{}
	}
	return SizeList{d: d, host: host}
}
