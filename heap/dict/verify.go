package dict

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/freetree/heap/region"
)

// ValidationError describes one broken structural invariant.
type ValidationError struct {
	Type    string      // Check that failed (e.g., "TreeOrder")
	Message string      // Human-readable description
	Addr    region.Addr // Host or chunk address where the check failed
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s at %#x: %s", e.Type, uint64(e.Addr), e.Message)
}

// Unwrap makes every ValidationError match ErrInvariantViolation.
func (e *ValidationError) Unwrap() error {
	return ErrInvariantViolation
}

func invalid(typ string, at region.Addr, format string, args ...any) error {
	return &ValidationError{Type: typ, Message: fmt.Sprintf(format, args...), Addr: at}
}

// Verify walks the whole tree and checks every structural invariant:
//   - parent and child links agree, and the root has no parent
//   - left.size < size < right.size, and sizes strictly increase in order
//   - every chunk on a list is free, has the list's size and points back at the list
//   - list counts match the chunks reachable through the links
//   - TotalSize and NumFreeBlocks match independently recomputed sums
//
// The returned error is a *ValidationError and matches ErrInvariantViolation.
// O(number of free chunks).
func (d *Dictionary) Verify() error {
	if !d.root.IsNil() && !d.root.Parent().IsNil() {
		return invalid("TreeLinks", d.root.host.Addr(), "root has parent %s", d.root.Parent().host)
	}
	var (
		words, blocks uint64
		lists         int
		prevSize      uint64
		err           error
	)
	d.Ascend(func(l SizeList) bool {
		// In-order sizes strictly increase.
		if lists > 0 && l.Size() <= prevSize {
			err = invalid("TreeOrder", l.host.Addr(), "size %d follows %d in order", l.Size(), prevSize)
			return false
		}
		prevSize = l.Size()
		if err = d.verifyNode(l); err != nil {
			return false
		}
		if err = d.verifyList(l); err != nil {
			return false
		}
		words += l.Size() * l.Count()
		blocks += l.Count()
		lists++
		return true
	})
	if err != nil {
		return err
	}
	if words != d.totalSize {
		return invalid("Totals", d.mem.Start, "total size %d, lists hold %d", d.totalSize, words)
	}
	if blocks != d.totalFreeBlocks {
		return invalid("Totals", d.mem.Start, "free blocks %d, lists hold %d", d.totalFreeBlocks, blocks)
	}
	if n := d.census.inUse(); n != lists+d.detached {
		return invalid("Census", d.mem.Start, "%d census slots in use for %d lists and %d detached",
			n, lists, d.detached)
	}
	return nil
}

// verifyNode checks l's tree links and ordering.
func (d *Dictionary) verifyNode(l SizeList) error {
	at := l.host.Addr()
	if l.Size() == 0 {
		return invalid("TreeOrder", at, "zero size node")
	}
	if left := l.Left(); !left.IsNil() {
		if left.Parent() != l {
			return invalid("TreeLinks", at, "left child %s has parent %s", left.host, left.Parent().host)
		}
		if left.Size() >= l.Size() {
			return invalid("TreeOrder", at, "left child size %d >= %d", left.Size(), l.Size())
		}
	}
	if right := l.Right(); !right.IsNil() {
		if right.Parent() != l {
			return invalid("TreeLinks", at, "right child %s has parent %s", right.host, right.Parent().host)
		}
		if right.Size() <= l.Size() {
			return invalid("TreeOrder", at, "right child size %d <= %d", right.Size(), l.Size())
		}
	}
	if p := l.Parent(); !p.IsNil() && p.Left() != l && p.Right() != l {
		return invalid("TreeLinks", at, "parent %s does not link back", p.host)
	}
	if h := l.Hint(); h != 0 && h <= l.Size() {
		return invalid("Hint", at, "hint %d not larger than size %d", h, l.Size())
	}
	if int(l.slot()) >= len(d.census.slots) {
		return invalid("Census", at, "census slot %d out of range", l.slot())
	}
	return nil
}

// verifyList checks the chunks of l.
func (d *Dictionary) verifyList(l SizeList) error {
	at := l.host.Addr()
	head := l.Head()
	if head != l.host {
		return invalid("ListLinks", at, "head %s is not the host", head)
	}
	if !head.Prev().IsNil() {
		return invalid("ListLinks", at, "head has prev %s", head.Prev())
	}
	if l.Count() == 0 {
		return invalid("ListCount", at, "empty list left in tree")
	}
	if l.Count() == 1 && l.Tail() != head {
		return invalid("ListLinks", at, "single chunk list with tail %s", l.Tail())
	}

	var (
		n    uint64
		prev Chunk
	)
	for c := head; !c.IsNil(); c = c.Next() {
		n++
		if n > l.Count() {
			return invalid("ListCount", at, "more than %d chunks reachable", l.Count())
		}
		if c.Prev() != prev {
			return invalid("ListLinks", c.Addr(), "prev %s, expected %s", c.Prev(), prev)
		}
		if !c.IsFree() {
			return invalid("ChunkFree", c.Addr(), "chunk on free list not marked free")
		}
		if c.Size() != l.Size() {
			return invalid("ChunkSize", c.Addr(), "size %d on list of size %d", c.Size(), l.Size())
		}
		if c.listRef() != l.host.r {
			return invalid("ChunkList", c.Addr(), "list %#x, expected %#x", c.listRef(), l.host.r)
		}
		prev = c
	}
	if n != l.Count() {
		return invalid("ListCount", at, "count %d, reachable %d", l.Count(), n)
	}
	if prev != l.Tail() {
		return invalid("ListLinks", at, "tail %s, last reachable %s", l.Tail(), prev)
	}
	return nil
}

// assertLocked panics when verification is on and the caller does not hold
// the lock serializing access to the dictionary.
func (d *Dictionary) assertLocked() {
	if d.cfg.Verify && d.cfg.LockHeld != nil && !d.cfg.LockHeld() {
		panic(violation("dictionary %s used without holding its lock", d.mem.Region))
	}
}

func (d *Dictionary) mustVerifyTree() {
	if err := d.Verify(); err != nil {
		panic(err)
	}
}

// mustVerify runs after a mutation.
func (d *Dictionary) mustVerify() {
	if err := d.Verify(); err != nil {
		panic(errors.Wrap(err, "after mutation"))
	}
}
