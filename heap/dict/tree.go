package dict

import (
	"github.com/joshuapare/freetree/heap/region"
)

// insertChunkInTree descends from the root comparing sizes. An exact match
// appends c to that list; otherwise c becomes a new leaf list under the last
// node visited.
func (d *Dictionary) insertChunkInTree(c Chunk) {
	size := c.Size()
	c.linkNext(Chunk{})
	c.linkPrev(Chunk{})

	cur, prev := d.root, d.root
	for !cur.IsNil() {
		if cur.Size() == size {
			break
		}
		prev = cur
		if cur.Size() > size {
			cur = cur.Left()
		} else {
			cur = cur.Right()
		}
	}

	if !cur.IsNil() {
		cur.ReturnChunkAtTail(c)
		return
	}

	l := d.asList(c)
	switch {
	case prev.IsNil():
		d.root = l
	case prev.Size() < size:
		prev.setRight(l)
	default:
		prev.setLeft(l)
	}
	d.totalSize += size
	d.totalFreeBlocks++
}

// getChunkFromTree implements best fit: the exact size if present, else
// (AtLeast) the smallest larger size, found by walking back up the search
// path from the last node visited.
func (d *Dictionary) getChunkFromTree(size uint64, dither Dither) Chunk {
	cur, prev := d.root, d.root
	for !cur.IsNil() {
		if cur.Size() == size {
			break
		}
		prev = cur
		if cur.Size() < size {
			cur = cur.Right()
		} else {
			cur = cur.Left()
		}
	}

	if cur.IsNil() {
		if dither == Exactly {
			return Chunk{}
		}
		for cur = prev; !cur.IsNil(); cur = cur.Parent() {
			if cur.Size() >= size {
				break
			}
		}
		if cur.IsNil() {
			return Chunk{}
		}
	}

	// An exact fit always wins; only a larger node may be traded for a
	// better populated one further along the hint chain.
	if d.cfg.Adaptive && cur.Size() != size {
		cur = cur.betterList()
	}

	c := cur.FirstAvailable()
	d.removeChunkFromTree(c)
	return c
}

// removeChunkFromTree unlinks c from its list. A list left empty is excised
// from the tree.
func (d *Dictionary) removeChunkFromTree(c Chunk) {
	d.list(c.at(c.listRef())).RemoveChunkAndRepair(c)
}

// excise removes the empty list l from the tree. A node with at most one
// child is replaced by that child; a node with two children is replaced by
// its in-order successor, the minimum of its right subtree, which inherits
// both children.
func (d *Dictionary) excise(l SizeList) {
	var newTL SizeList
	twoChildren := false
	switch {
	case l.Left().IsNil():
		newTL = l.Right()
	case l.Right().IsNil():
		newTL = l.Left()
	default:
		twoChildren = true
		newTL = d.removeTreeMinimum(l.Right())
	}

	parent := l.Parent()
	switch {
	case parent.IsNil():
		d.root = newTL
		if !newTL.IsNil() {
			newTL.clearParent()
		}
	case parent.Right() == l:
		parent.setRight(newTL)
	default:
		parent.setLeft(newTL)
	}

	if twoChildren {
		// l.Right() is re-read: removing the minimum may have replaced it.
		newTL.setLeft(l.Left())
		newTL.setRight(l.Right())
	}

	l.clearParent()
	l.clearLeft()
	l.clearRight()
	d.census.release(l.slot())
	d.log.Debug("excise", "size", l.Size())
}

// removeTreeMinimum unlinks the leftmost node of the subtree rooted at l and
// returns it with no links. The minimum has at most a right child, which
// takes its place.
func (d *Dictionary) removeTreeMinimum(l SizeList) SizeList {
	cur := l
	for !cur.Left().IsNil() {
		cur = cur.Left()
	}
	if cur != d.root {
		parent := cur.Parent()
		if parent.Left() == cur {
			parent.setLeft(cur.Right())
		} else {
			parent.setRight(cur.Right())
		}
	} else {
		d.root = cur.Right()
		if !d.root.IsNil() {
			d.root.clearParent()
		}
	}
	cur.clearParent()
	cur.clearRight()
	return cur
}

// FindList returns the list holding chunks of exactly size words.
func (d *Dictionary) FindList(size uint64) (SizeList, bool) {
	cur := d.root
	for !cur.IsNil() {
		switch {
		case cur.Size() == size:
			return cur, true
		case cur.Size() < size:
			cur = cur.Right()
		default:
			cur = cur.Left()
		}
	}
	return SizeList{}, false
}

// MaxChunkSize returns the size of the largest free chunk, 0 when empty.
func (d *Dictionary) MaxChunkSize() uint64 {
	l := d.largestList()
	if l.IsNil() {
		return 0
	}
	return l.Size()
}

// FindLargest returns the largest free chunk, at the highest address among
// chunks of that size. Potentially slow: it scans the whole largest list.
func (d *Dictionary) FindLargest() (Chunk, bool) {
	l := d.largestList()
	if l.IsNil() {
		return Chunk{}, false
	}
	return l.LargestAddress(), true
}

func (d *Dictionary) largestList() SizeList {
	cur := d.root
	if cur.IsNil() {
		return cur
	}
	for !cur.Right().IsNil() {
		cur = cur.Right()
	}
	return cur
}

// FindChunkEndingAt returns the free chunk whose last word precedes addr.
// O(number of free chunks); used for adjacency checks, not allocation.
func (d *Dictionary) FindChunkEndingAt(addr region.Addr) (Chunk, bool) {
	var found Chunk
	d.Descend(func(l SizeList) bool {
		l.Each(func(c Chunk) bool {
			if c.End() == addr {
				found = c
			}
			return found.IsNil()
		})
		return found.IsNil()
	})
	return found, !found.IsNil()
}

// Ascend calls fn for every list in increasing size order (left, node,
// right) until fn returns false.
func (d *Dictionary) Ascend(fn func(SizeList) bool) {
	ascend(d.root, fn)
}

// Descend calls fn for every list in decreasing size order (right, node,
// left) until fn returns false.
func (d *Dictionary) Descend(fn func(SizeList) bool) {
	descend(d.root, fn)
}

func ascend(l SizeList, fn func(SizeList) bool) bool {
	if l.IsNil() {
		return true
	}
	return ascend(l.Left(), fn) && fn(l) && ascend(l.Right(), fn)
}

func descend(l SizeList, fn func(SizeList) bool) bool {
	if l.IsNil() {
		return true
	}
	return descend(l.Right(), fn) && fn(l) && descend(l.Left(), fn)
}

// Tree metrics.

// TotalNodes returns the number of lists in the tree.
func (d *Dictionary) TotalNodes() int {
	n := 0
	d.Ascend(func(SizeList) bool {
		n++
		return true
	})
	return n
}

// TreeHeight returns the number of nodes on the longest root-to-leaf path.
func (d *Dictionary) TreeHeight() int {
	return height(d.root)
}

func height(l SizeList) int {
	if l.IsNil() {
		return 0
	}
	return 1 + max(height(l.Left()), height(l.Right()))
}

// TotalListLength returns the number of chunks reachable by walking every
// list, independently of the list counters.
func (d *Dictionary) TotalListLength() uint64 {
	var n uint64
	d.Ascend(func(l SizeList) bool {
		l.Each(func(Chunk) bool {
			n++
			return true
		})
		return true
	})
	return n
}

// SumOfSquaredBlockSizes returns Σ count × size², the numerator of the
// fragmentation metric.
func (d *Dictionary) SumOfSquaredBlockSizes() float64 {
	var sum float64
	d.Ascend(func(l SizeList) bool {
		sz := float64(l.Size())
		sum += float64(l.Count()) * sz * sz
		return true
	})
	return sum
}
