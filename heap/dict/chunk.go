package dict

import (
	"fmt"

	"github.com/joshuapare/freetree/heap/region"
	"github.com/joshuapare/freetree/internal/format"
)

// Chunk is a handle on the header of a free block living in region memory.
// The zero Chunk is nil.
//
// A Chunk does not own the memory it describes; it is a word offset into the
// dictionary's region plus the storage to decode it from.
type Chunk struct {
	mem *region.Memory
	r   uint32
}

// IsNil reports whether c refers to no chunk.
func (c Chunk) IsNil() bool {
	return c.mem == nil || c.r == format.NilRef
}

// Addr returns the word address of the chunk.
func (c Chunk) Addr() region.Addr {
	return c.mem.AddrOf(c.r)
}

// Size returns the chunk size in words.
func (c Chunk) Size() uint64 {
	return uint64(c.get(format.ChunkSizeOffset))
}

// End returns the address of the first word past the chunk.
func (c Chunk) End() region.Addr {
	return c.Addr() + region.Addr(c.Size())
}

// IsFree reports whether the header carries the free bit.
func (c Chunk) IsFree() bool {
	return c.get(format.ChunkFlagsOffset)&format.FlagFree != 0
}

// MarkFree sets the free bit.
func (c Chunk) MarkFree() {
	c.set(format.ChunkFlagsOffset, c.get(format.ChunkFlagsOffset)|format.FlagFree)
}

// MarkNotFree clears the free bit. Called when a chunk is handed out.
func (c Chunk) MarkNotFree() {
	c.set(format.ChunkFlagsOffset, c.get(format.ChunkFlagsOffset)&^format.FlagFree)
}

// CantCoalesce reports whether the chunk must not be merged with its neighbours.
func (c Chunk) CantCoalesce() bool {
	return c.get(format.ChunkFlagsOffset)&format.FlagCantCoalesce != 0
}

// SetCantCoalesce sets or clears the can't-coalesce flag.
func (c Chunk) SetCantCoalesce(v bool) {
	flags := c.get(format.ChunkFlagsOffset)
	if v {
		flags |= format.FlagCantCoalesce
	} else {
		flags &^= format.FlagCantCoalesce
	}
	c.set(format.ChunkFlagsOffset, flags)
}

// Next returns the following chunk on the owning list.
func (c Chunk) Next() Chunk {
	return c.at(c.get(format.ChunkNextOffset))
}

// Prev returns the preceding chunk on the owning list.
func (c Chunk) Prev() Chunk {
	return c.at(c.get(format.ChunkPrevOffset))
}

func (c Chunk) String() string {
	if c.IsNil() {
		return "chunk(nil)"
	}
	return fmt.Sprintf("chunk[%#x,%#x)", uint64(c.Addr()), uint64(c.End()))
}

func (c Chunk) setSize(words uint64) {
	c.set(format.ChunkSizeOffset, uint32(words))
}

func (c Chunk) linkNext(n Chunk) {
	c.set(format.ChunkNextOffset, n.ref())
}

func (c Chunk) linkPrev(p Chunk) {
	c.set(format.ChunkPrevOffset, p.ref())
}

// linkAfter makes n the successor of c.
func (c Chunk) linkAfter(n Chunk) {
	c.linkNext(n)
	if !n.IsNil() {
		n.linkPrev(c)
	}
}

// listRef returns the host of the list the chunk belongs to.
func (c Chunk) listRef() uint32 {
	return c.get(format.ChunkListOffset)
}

func (c Chunk) setListRef(host uint32) {
	c.set(format.ChunkListOffset, host)
}

func (c Chunk) ref() uint32 {
	if c.mem == nil {
		return format.NilRef
	}
	return c.r
}

// at returns the chunk at word offset r in the same region. Nil links decode
// to the zero Chunk so that handles compare equal with ==.
func (c Chunk) at(r uint32) Chunk {
	if r == format.NilRef {
		return Chunk{}
	}
	return Chunk{mem: c.mem, r: r}
}

// The accessors below are the only place where region bytes are read or
// written as header fields.

func (c Chunk) get(field int) uint32 {
	return format.ReadU32(c.mem.Bytes(), format.WordOffset(c.r)+field)
}

func (c Chunk) set(field int, v uint32) {
	format.PutU32(c.mem.Bytes(), format.WordOffset(c.r)+field, v)
}

// moveControlBlock copies the embedded list control block of from into c.
func (c Chunk) moveControlBlock(from Chunk) {
	b := c.mem.Bytes()
	dst := format.WordOffset(c.r)
	src := format.WordOffset(from.r)
	copy(b[dst+format.ListHeadOffset:dst+format.TreeChunkSize],
		b[src+format.ListHeadOffset:src+format.TreeChunkSize])
}
