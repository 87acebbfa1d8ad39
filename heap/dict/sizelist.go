package dict

import (
	"github.com/joshuapare/freetree/internal/format"
)

// SizeList is the doubly linked list of all free chunks of one size, plus its
// census. It is also a node of the size tree.
//
// A SizeList has no storage of its own: its control block is embedded in the
// first chunk of the list (the host), right after that chunk's header. The
// host address is the list's identity. When the host leaves the list while
// other chunks remain, the control block moves to the next chunk and the list
// gets a new identity (see RemoveChunkAndRepair).
//
// The zero SizeList is nil.
type SizeList struct {
	d    *Dictionary
	host Chunk
}

// IsNil reports whether l refers to no list.
func (l SizeList) IsNil() bool {
	return l.host.IsNil()
}

// Host returns the chunk carrying the control block.
func (l SizeList) Host() Chunk {
	return l.host
}

// Size returns the size, in words, of every chunk on the list.
func (l SizeList) Size() uint64 {
	return l.host.Size()
}

// Count returns the number of chunks on the list.
func (l SizeList) Count() uint64 {
	return uint64(l.host.get(format.ListCountOffset))
}

// Head returns the first chunk of the list.
func (l SizeList) Head() Chunk {
	return l.host.at(l.host.get(format.ListHeadOffset))
}

// Tail returns the last chunk of the list.
func (l SizeList) Tail() Chunk {
	return l.host.at(l.host.get(format.ListTailOffset))
}

// Parent returns the parent node in the size tree.
func (l SizeList) Parent() SizeList {
	return l.node(format.ListParentOffset)
}

// Left returns the child holding smaller sizes.
func (l SizeList) Left() SizeList {
	return l.node(format.ListLeftOffset)
}

// Right returns the child holding larger sizes.
func (l SizeList) Right() SizeList {
	return l.node(format.ListRightOffset)
}

// Hint returns a larger size believed to have a surplus, or 0.
func (l SizeList) Hint() uint64 {
	return uint64(l.host.get(format.ListHintOffset))
}

// Stats returns a copy of the list's census.
func (l SizeList) Stats() AllocationStats {
	return *l.stats()
}

// Surplus returns the census surplus.
func (l SizeList) Surplus() int64 {
	return l.stats().Surplus
}

// Each calls fn for every chunk on the list, head first, until fn returns false.
func (l SizeList) Each(fn func(Chunk) bool) {
	for c := l.Head(); !c.IsNil(); c = c.Next() {
		if !fn(c) {
			return
		}
	}
}

// ReturnChunkAtHead puts c on the list right after the host, which must stay
// first. c must not already be on any list. When l is linked into the tree the
// dictionary totals count c.
func (l SizeList) ReturnChunkAtHead(c Chunk) {
	l.returnAtHead(c)
	if l.inTree() {
		l.account(c.Size(), true)
	}
}

// ReturnChunkAtTail appends c to the list. c must not already be on any list.
// When l is linked into the tree the dictionary totals count c.
func (l SizeList) ReturnChunkAtTail(c Chunk) {
	l.returnAtTail(c)
	if l.inTree() {
		l.account(c.Size(), true)
	}
}

// RemoveChunkAndRepair unlinks c from the list and returns the list's current
// identity, which differs from l when c was the host and other chunks remain.
// Callers holding l must continue with the returned value.
//
// For a list linked into the tree the dictionary totals drop c, and a list
// left empty is excised from the tree. A detached list (see AsList) left empty
// gives up its census; the returned list is dead.
func (l SizeList) RemoveChunkAndRepair(c Chunk) SizeList {
	inTree := l.inTree()
	size := c.Size()
	ret := l.removeChunk(c)
	switch {
	case inTree:
		l.account(size, false)
		if ret.Count() == 0 {
			l.d.excise(ret)
		}
	case ret.Count() == 0:
		l.d.census.release(ret.slot())
		l.d.detached--
	}
	return ret
}

// inTree reports whether l is the root or hangs below it.
func (l SizeList) inTree() bool {
	return l == l.d.root || !l.Parent().IsNil()
}

// account adds a chunk of size words to the dictionary totals, or removes it.
func (l SizeList) account(size uint64, add bool) {
	if add {
		l.d.totalSize += size
		l.d.totalFreeBlocks++
	} else {
		l.d.totalSize -= size
		l.d.totalFreeBlocks--
	}
}

func (l SizeList) returnAtHead(c Chunk) {
	head := l.Head()
	if head.IsNil() {
		panic(violation("return at head of empty list %s", l.host))
	}
	c.setListRef(l.host.r)
	if fc := head.Next(); !fc.IsNil() {
		c.linkAfter(fc)
	} else {
		c.linkNext(Chunk{})
		l.setTail(c)
	}
	head.linkAfter(c)
	l.incrementCount()
	l.recordReturn(c)
}

func (l SizeList) returnAtTail(c Chunk) {
	tail := l.Tail()
	if tail.IsNil() {
		panic(violation("return at tail of empty list %s", l.host))
	}
	c.setListRef(l.host.r)
	c.linkNext(Chunk{})
	tail.linkAfter(c)
	l.setTail(c)
	l.incrementCount()
	l.recordReturn(c)
}

// removeChunk unlinks c and returns the list's current identity. When c was
// the only chunk the returned list is empty.
func (l SizeList) removeChunk(c Chunk) SizeList {
	ret := l
	prev := c.Prev()
	next := c.Next()

	if c == l.Head() {
		if next.IsNil() {
			l.setHead(Chunk{})
			l.setTail(Chunk{})
		} else {
			ret = l.relocate(next)
		}
	} else {
		if next.IsNil() {
			l.setTail(prev)
		}
		prev.linkAfter(next)
	}

	c.linkNext(Chunk{})
	c.linkPrev(Chunk{})
	c.setListRef(format.NilRef)
	ret.decrementCount()
	return ret
}

// relocate moves the control block from the host into to, the host's
// successor, and repairs every reference to the old identity: the list
// back-reference of each chunk, the parent's child link and the children's
// parent links.
func (l SizeList) relocate(to Chunk) SizeList {
	to.moveControlBlock(l.host)
	ret := SizeList{d: l.d, host: to}

	// Long lists make this slow; it only happens when the host itself is
	// taken, which allocation avoids (see FirstAvailable).
	for c := to; !c.IsNil(); c = c.Next() {
		c.setListRef(to.r)
	}

	if p := ret.Parent(); !p.IsNil() {
		if p.Left() == l {
			p.setLeft(ret)
		} else {
			p.setRight(ret)
		}
	}
	if r := ret.Right(); !r.IsNil() {
		r.setParent(ret)
	}
	if lt := ret.Left(); !lt.IsNil() {
		lt.setParent(ret)
	}
	if l.d.root == l {
		l.d.root = ret
	}

	ret.setHead(to)
	to.linkPrev(Chunk{})
	return ret
}

// FirstAvailable returns the chunk the next allocation from this list takes.
// The host is kept for as long as other chunks remain, since taking it forces
// a relocation.
func (l SizeList) FirstAvailable() Chunk {
	head := l.Head()
	if head.IsNil() {
		return Chunk{}
	}
	if n := head.Next(); !n.IsNil() {
		return n
	}
	return head
}

// LargestAddress returns the non-host chunk at the highest address, or the
// host when it is alone. O(list length).
func (l SizeList) LargestAddress() Chunk {
	head := l.Head()
	if head.IsNil() {
		return Chunk{}
	}
	ret := Chunk{}
	for c := head.Next(); !c.IsNil(); c = c.Next() {
		if ret.IsNil() || c.Addr() > ret.Addr() {
			ret = c
		}
	}
	if ret.IsNil() {
		return head
	}
	return ret
}

// VerifyChunkInFreeList reports whether c is on this list. O(list length).
func (l SizeList) VerifyChunkInFreeList(c Chunk) bool {
	found := false
	l.Each(func(fc Chunk) bool {
		found = fc == c
		return !found
	})
	return found
}

// betterList follows the hint chain when l is already at or below its desired
// population, looking for a larger size with a surplus to serve the
// allocation instead. The discovery is cached in l's hint. A hint that leads
// nowhere, or back to l, is cleared.
func (l SizeList) betterList() SizeList {
	if l.Surplus() > 0 {
		return l
	}
	hintTL := l
	for hintTL.Hint() != 0 {
		next, ok := l.d.FindList(hintTL.Hint())
		// Loop guard: every step lands on a strictly larger size and never
		// back on the starting list, so the chain terminates.
		if !ok || next == l || next.Size() <= hintTL.Size() {
			l.d.log.Debug("hint reset", "size", l.Size(), "hint", hintTL.Hint())
			l.setHint(0)
			break
		}
		hintTL = next
		if hintTL.Surplus() > 0 {
			l.setHint(hintTL.Size())
			return hintTL
		}
	}
	return l
}

// Census mutators.

// IncrementSplitBirths records a chunk of this size produced by a split.
func (l SizeList) IncrementSplitBirths() { l.stats().SplitBirths++ }

// IncrementSplitDeaths records a chunk of this size consumed by a split.
func (l SizeList) IncrementSplitDeaths() { l.stats().SplitDeaths++ }

// IncrementCoalBirths records a chunk of this size produced by coalescing.
func (l SizeList) IncrementCoalBirths() { l.stats().CoalBirths++ }

// IncrementCoalDeaths records a chunk of this size absorbed by coalescing.
func (l SizeList) IncrementCoalDeaths() { l.stats().CoalDeaths++ }

// IncrementSurplus bumps the census surplus.
func (l SizeList) IncrementSurplus() { l.stats().Surplus++ }

// DecrementSurplus lowers the census surplus.
func (l SizeList) DecrementSurplus() { l.stats().Surplus-- }

// ComputeDesired updates the desired population from sweep timing estimates,
// in seconds.
func (l SizeList) ComputeDesired(interSweepCurrent, interSweepEstimate, intraSweepEstimate float64) {
	l.stats().computeDesired(int64(l.Count()), interSweepCurrent, interSweepEstimate,
		intraSweepEstimate, l.d.cfg.SweepThreshold)
}

func (l SizeList) stats() *AllocationStats {
	return l.d.census.at(l.slot())
}

func (l SizeList) recordReturn(c Chunk) {
	l.stats().ReturnedBytes += c.Size() * format.WordSize
}

func (l SizeList) node(field int) SizeList {
	return l.d.list(l.host.at(l.host.get(field)))
}

func (l SizeList) slot() uint32 {
	return l.host.get(format.ListStatsOffset)
}

func (l SizeList) setSlot(slot uint32) {
	l.host.set(format.ListStatsOffset, slot)
}

func (l SizeList) setHead(c Chunk) {
	l.host.set(format.ListHeadOffset, c.ref())
}

func (l SizeList) setTail(c Chunk) {
	l.host.set(format.ListTailOffset, c.ref())
}

func (l SizeList) setCount(n uint64) {
	l.host.set(format.ListCountOffset, uint32(n))
}

func (l SizeList) incrementCount() {
	l.setCount(l.Count() + 1)
}

func (l SizeList) decrementCount() {
	l.setCount(l.Count() - 1)
}

func (l SizeList) setHint(size uint64) {
	l.host.set(format.ListHintOffset, uint32(size))
}

func (l SizeList) setParent(p SizeList) {
	l.host.set(format.ListParentOffset, p.host.ref())
}

// setLeft links child as the left subtree and points its parent back at l.
func (l SizeList) setLeft(child SizeList) {
	l.host.set(format.ListLeftOffset, child.host.ref())
	if !child.IsNil() {
		child.setParent(l)
	}
}

// setRight links child as the right subtree and points its parent back at l.
func (l SizeList) setRight(child SizeList) {
	l.host.set(format.ListRightOffset, child.host.ref())
	if !child.IsNil() {
		child.setParent(l)
	}
}

func (l SizeList) clearParent() { l.host.set(format.ListParentOffset, format.NilRef) }
func (l SizeList) clearLeft()   { l.host.set(format.ListLeftOffset, format.NilRef) }
func (l SizeList) clearRight()  { l.host.set(format.ListRightOffset, format.NilRef) }
