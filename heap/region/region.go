// Package region describes contiguous word-addressed memory regions and owns
// the storage backing them.
package region

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/freetree/internal/format"
)

var (
	// ErrEmpty indicates a region of zero words.
	ErrEmpty = errors.New("region: empty region")

	// ErrTooLarge indicates a region whose word offsets do not fit in a chunk link field.
	ErrTooLarge = errors.New("region: region too large")

	// ErrClosed indicates use of a Memory after Close.
	ErrClosed = errors.New("region: memory closed")
)

// MaxWords is the largest region a Memory can describe. Every word offset
// inside the region must be encodable in a 32-bit link field.
const MaxWords = uint64(format.MaxRef)

// Addr is a heap word address.
type Addr uint64

// Region is a (base address, word length) descriptor.
type Region struct {
	Start Addr
	Words uint64
}

// End returns the first address past the region.
func (r Region) End() Addr {
	return r.Start + Addr(r.Words)
}

// Contains reports whether a lies inside the region.
func (r Region) Contains(a Addr) bool {
	return a >= r.Start && a < r.End()
}

// ContainsRange reports whether [a, a+words) lies inside the region.
func (r Region) ContainsRange(a Addr, words uint64) bool {
	return a >= r.Start && words <= r.Words && uint64(a-r.Start) <= r.Words-words
}

func (r Region) String() string {
	return fmt.Sprintf("[%#x,%#x)", uint64(r.Start), uint64(r.End()))
}

// Memory is the storage behind a Region. Byte 0 of Bytes() is the first byte
// of the word at Region.Start.
type Memory struct {
	Region
	data    []byte
	release func() error
}

// New allocates zeroed storage for r. On unix platforms the storage is an
// anonymous private mapping; elsewhere it is a Go byte slice.
func New(r Region) (*Memory, error) {
	if r.Words == 0 {
		return nil, ErrEmpty
	}
	if r.Words > MaxWords {
		return nil, errors.Wrapf(ErrTooLarge, "%d words (max %d)", r.Words, MaxWords)
	}
	data, release, err := mapAnon(int(r.Words) * format.WordSize)
	if err != nil {
		return nil, errors.Wrapf(err, "region: map %s", r)
	}
	return &Memory{Region: r, data: data, release: release}, nil
}

// Bytes returns the raw storage.
func (m *Memory) Bytes() []byte {
	return m.data
}

// Offset returns the word offset of a relative to the region start.
func (m *Memory) Offset(a Addr) uint32 {
	return uint32(a - m.Start)
}

// AddrOf returns the address of the word at offset off.
func (m *Memory) AddrOf(off uint32) Addr {
	return m.Start + Addr(off)
}

// Close releases the storage. Further use of the Memory is invalid.
func (m *Memory) Close() error {
	if m.data == nil {
		return ErrClosed
	}
	err := m.release()
	m.data = nil
	return err
}
