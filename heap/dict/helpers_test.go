package dict

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/freetree/heap/region"
)

const testBase = region.Addr(0x10000)

// newTestDict returns an empty dictionary over a fresh region of words words.
// A nil config means DebugConfig, so every mutation is verified.
func newTestDict(t testing.TB, words uint64, cfg *Config) *Dictionary {
	t.Helper()
	mem, err := region.New(region.Region{Start: testBase, Words: words})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })

	if cfg == nil {
		cfg = &DebugConfig
	}
	d, err := NewEmpty(mem, cfg)
	require.NoError(t, err)
	return d
}

// layout carves consecutive chunks of the given sizes from the start of the
// region and returns them without inserting them.
func layout(t testing.TB, d *Dictionary, sizes ...uint64) []Chunk {
	t.Helper()
	addr := d.Region().Start
	chunks := make([]Chunk, 0, len(sizes))
	for _, sz := range sizes {
		c, err := d.MakeChunk(addr, sz)
		require.NoError(t, err)
		chunks = append(chunks, c)
		addr += region.Addr(sz)
	}
	return chunks
}

// insertAll carves and inserts chunks of the given sizes.
func insertAll(t testing.TB, d *Dictionary, sizes ...uint64) []Chunk {
	t.Helper()
	chunks := layout(t, d, sizes...)
	for _, c := range chunks {
		require.NoError(t, d.Insert(c))
	}
	return chunks
}

// treeSizes returns the list sizes in ascending order.
func treeSizes(d *Dictionary) []uint64 {
	var sizes []uint64
	d.Ascend(func(l SizeList) bool {
		sizes = append(sizes, l.Size())
		return true
	})
	return sizes
}

// listAddrs returns the chunk addresses of l, head first.
func listAddrs(l SizeList) []region.Addr {
	var addrs []region.Addr
	l.Each(func(c Chunk) bool {
		addrs = append(addrs, c.Addr())
		return true
	})
	return addrs
}

// assertInvariants fails the test when the dictionary does not verify.
func assertInvariants(t testing.TB, d *Dictionary) {
	t.Helper()
	require.NoError(t, d.Verify())
}

func sum(sizes ...uint64) uint64 {
	var s uint64
	for _, sz := range sizes {
		s += sz
	}
	return s
}
