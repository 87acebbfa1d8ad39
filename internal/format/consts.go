// Package format defines the in-memory layout of free chunk headers. The goal
// is to keep the byte-level encoding in one place so the dictionary code above
// it manipulates typed fields instead of raw offsets.
package format

const (
	// WordSize is the size of a heap word in bytes. Chunk sizes and addresses
	// are expressed in words.
	WordSize = 8

	// WordAlignmentMask is the bitmask used for aligning to word boundaries (WordSize - 1).
	WordAlignmentMask = WordSize - 1

	// FieldSize is the width of every header field in bytes.
	FieldSize = 4

	// NilRef marks an absent chunk reference in a link field.
	NilRef = 0xFFFFFFFF

	// MaxRef is the largest word offset a link field can encode.
	MaxRef = NilRef - 1
)

// Chunk header layout (little-endian, one header at the start of every free chunk):
//
//	Offset  Size  Description
//	0x00    4     Size of the chunk in words (header included).
//	0x04    4     Flags. Bit 0 => free, bit 1 => can't coalesce.
//	0x08    4     Next chunk in the owning size list (word offset, NilRef if none).
//	0x0C    4     Previous chunk in the owning size list.
//	0x10    4     Host of the owning size list (word offset of its first chunk).
const (
	ChunkSizeOffset  = 0x00
	ChunkFlagsOffset = 0x04
	ChunkNextOffset  = 0x08
	ChunkPrevOffset  = 0x0C
	ChunkListOffset  = 0x10

	// ChunkHeaderSize is the number of bytes used by the plain chunk header.
	ChunkHeaderSize = 0x14
)

// Size list control block, embedded right after the chunk header of the chunk
// hosting the list:
//
//	Offset  Size  Description
//	0x14    4     Head chunk of the list.
//	0x18    4     Tail chunk of the list.
//	0x1C    4     Number of chunks on the list.
//	0x20    4     Parent list in the size tree.
//	0x24    4     Left child (smaller sizes).
//	0x28    4     Right child (larger sizes).
//	0x2C    4     Hint: a larger size believed to have a surplus (0 => none).
//	0x30    4     Census slot index.
const (
	ListHeadOffset   = 0x14
	ListTailOffset   = 0x18
	ListCountOffset  = 0x1C
	ListParentOffset = 0x20
	ListLeftOffset   = 0x24
	ListRightOffset  = 0x28
	ListHintOffset   = 0x2C
	ListStatsOffset  = 0x30

	// TreeChunkSize is the number of bytes a chunk needs to host a size list.
	TreeChunkSize = 0x34
)

// Flag bits stored at ChunkFlagsOffset.
const (
	FlagFree         = 1 << 0
	FlagCantCoalesce = 1 << 1
)

// MinTreeChunkWords is the smallest chunk, in words, able to carry a size list
// control block.
const MinTreeChunkWords = (TreeChunkSize + WordAlignmentMask) / WordSize
