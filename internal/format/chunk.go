package format

import "github.com/cockroachdb/errors"

// Header is a decoded chunk header plus, when the chunk hosts a size list, the
// embedded list control block. Link fields hold word offsets relative to the
// start of the buffer, or NilRef.
type Header struct {
	Offset       int    // Byte offset of the header within the buffer
	Words        uint32 // Chunk size in words
	Free         bool   // True when the chunk is marked as free
	CantCoalesce bool   // True when the chunk must not be merged with neighbours
	Next         uint32
	Prev         uint32
	List         uint32 // Host of the owning list

	// Populated only when Words >= MinTreeChunkWords.
	Head, Tail     uint32
	Count          uint32
	Parent         uint32
	Left, Right    uint32
	Hint           uint32
	Stats          uint32
	HasControlData bool
}

// DecodeHeader decodes the chunk header at byte offset off. The caller must
// ensure off points to the start of a chunk.
func DecodeHeader(b []byte, off int) (Header, error) {
	if off < 0 || off+ChunkHeaderSize > len(b) {
		return Header{}, errors.Wrapf(ErrTruncated, "chunk header at 0x%X", off)
	}
	words := ReadU32(b, off+ChunkSizeOffset)
	if words == 0 {
		return Header{}, errors.Wrapf(ErrZeroSize, "chunk header at 0x%X", off)
	}
	flags := ReadU32(b, off+ChunkFlagsOffset)
	h := Header{
		Offset:       off,
		Words:        words,
		Free:         flags&FlagFree != 0,
		CantCoalesce: flags&FlagCantCoalesce != 0,
		Next:         ReadU32(b, off+ChunkNextOffset),
		Prev:         ReadU32(b, off+ChunkPrevOffset),
		List:         ReadU32(b, off+ChunkListOffset),
	}
	if words >= MinTreeChunkWords && off+TreeChunkSize <= len(b) {
		h.Head = ReadU32(b, off+ListHeadOffset)
		h.Tail = ReadU32(b, off+ListTailOffset)
		h.Count = ReadU32(b, off+ListCountOffset)
		h.Parent = ReadU32(b, off+ListParentOffset)
		h.Left = ReadU32(b, off+ListLeftOffset)
		h.Right = ReadU32(b, off+ListRightOffset)
		h.Hint = ReadU32(b, off+ListHintOffset)
		h.Stats = ReadU32(b, off+ListStatsOffset)
		h.HasControlData = true
	}
	return h, nil
}
