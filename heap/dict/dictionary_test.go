package dict

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/freetree/heap/region"
	"github.com/joshuapare/freetree/internal/logger"
)

func TestNew_Rejects(t *testing.T) {
	_, err := NewEmpty(nil, nil)
	require.Error(t, err)

	mem, err := region.New(region.Region{Start: testBase, Words: 6})
	require.NoError(t, err)
	defer mem.Close()

	_, err = New(mem, nil)
	require.ErrorIs(t, err, ErrSizeTooSmall)
}

func TestNew_DefaultConfig(t *testing.T) {
	mem, err := region.New(region.Region{Start: testBase, Words: 64})
	require.NoError(t, err)
	defer mem.Close()

	d, err := New(mem, nil)
	require.NoError(t, err)
	assert.Equal(t, "Default", d.Config().Name)
	assert.True(t, d.Config().Adaptive)
	assert.Equal(t, uint64(7), d.MinSize())
	assert.Equal(t, mem.Region, d.Region())
}

func TestInsertRemove_RoundTrip(t *testing.T) {
	d := newTestDict(t, 256, nil)
	insertAll(t, d, 8, 24, 64)
	size, blocks := d.TotalSize(), d.NumFreeBlocks()

	c, err := d.MakeChunk(testBase+200, 40)
	require.NoError(t, err)
	require.NoError(t, d.Insert(c))
	assert.Equal(t, size+40, d.TotalSize())
	assert.Equal(t, blocks+1, d.NumFreeBlocks())

	got, ok := d.RemoveBestFit(40, AtLeast)
	require.True(t, ok)
	assert.Equal(t, c.Addr(), got.Addr())
	assert.Equal(t, uint64(40), got.Size())
	assert.True(t, got.IsFree(), "removed chunks keep the free bit")
	assert.Equal(t, size, d.TotalSize())
	assert.Equal(t, blocks, d.NumFreeBlocks())
}

func TestRemoveBestFit_ExactMatchWins(t *testing.T) {
	d := newTestDict(t, 256, nil)
	insertAll(t, d, 16, 24, 24, 32)

	// 24 has no surplus and a hint at a larger size with one; the exact
	// match is still served.
	l24 := mustFind(t, d, 24)
	l24.setHint(32)
	mustFind(t, d, 32).IncrementSurplus()

	c, ok := d.RemoveBestFit(24, AtLeast)
	require.True(t, ok)
	assert.Equal(t, uint64(24), c.Size())
}

func TestInsert_Errors(t *testing.T) {
	d := newTestDict(t, 128, nil)
	cs := layout(t, d, 16, 16)

	require.NoError(t, d.Insert(cs[0]))
	require.ErrorIs(t, d.Insert(cs[0]), ErrAlreadyFree)
	assert.Equal(t, uint64(1), d.NumFreeBlocks())

	cs[1].MarkNotFree()
	require.ErrorIs(t, d.Insert(cs[1]), ErrNotFree)

	require.ErrorIs(t, d.Insert(Chunk{}), ErrOutOfRegion)
	assertInvariants(t, d)
}

// Double inserts are caught without verify mode too: the chunk still points
// at its list.
func TestInsert_DoubleInsertWithoutVerify(t *testing.T) {
	d := newTestDict(t, 128, &ExactConfig)
	cs := insertAll(t, d, 16, 16, 32)

	for _, c := range cs {
		require.ErrorIs(t, d.Insert(c), ErrAlreadyFree)
	}
	assert.Equal(t, uint64(3), d.NumFreeBlocks())
	assertInvariants(t, d)
}

func TestRemoveChunk(t *testing.T) {
	d := newTestDict(t, 256, nil)
	cs := insertAll(t, d, 16, 16, 16, 32)

	require.NoError(t, d.RemoveChunk(cs[2]))
	assert.Equal(t, []region.Addr{cs[0].Addr(), cs[1].Addr()}, listAddrs(mustFind(t, d, 16)))
	assert.Equal(t, uint64(3), d.NumFreeBlocks())

	require.ErrorIs(t, d.RemoveChunk(cs[2]), ErrNotInDictionary)

	require.NoError(t, d.RemoveChunk(cs[3]))
	_, ok := d.FindList(32)
	assert.False(t, ok)
	assertInvariants(t, d)
}

func TestRemoveChunk_NotInserted(t *testing.T) {
	d := newTestDict(t, 128, &ExactConfig)
	c := layout(t, d, 16)[0]
	require.ErrorIs(t, d.RemoveChunk(c), ErrNotInDictionary)
}

func TestMakeChunk(t *testing.T) {
	d := newTestDict(t, 64, nil)

	_, err := d.MakeChunk(testBase, 6)
	require.ErrorIs(t, err, ErrSizeTooSmall)

	_, err = d.MakeChunk(testBase+60, 8)
	require.ErrorIs(t, err, ErrOutOfRegion)

	_, err = d.MakeChunk(testBase-1, 8)
	require.ErrorIs(t, err, ErrOutOfRegion)

	c, err := d.MakeChunk(testBase+56, 8)
	require.NoError(t, err)
	assert.Equal(t, testBase+56, c.Addr())
	assert.Equal(t, testBase+64, c.End())
	assert.True(t, c.IsFree())
	assert.False(t, c.CantCoalesce())
	assert.True(t, c.Next().IsNil())
	assert.True(t, c.Prev().IsNil())
}

func TestChunkAt(t *testing.T) {
	d := newTestDict(t, 64, nil)
	c, err := d.MakeChunk(testBase+8, 16)
	require.NoError(t, err)
	c.SetCantCoalesce(true)

	got, ok := d.ChunkAt(testBase + 8)
	require.True(t, ok)
	assert.Equal(t, c, got)
	assert.Equal(t, uint64(16), got.Size())
	assert.True(t, got.CantCoalesce())

	_, ok = d.ChunkAt(testBase)
	assert.False(t, ok, "zeroed memory holds no header")
	_, ok = d.ChunkAt(testBase + 64)
	assert.False(t, ok, "outside the region")
}

func TestClearAndReset(t *testing.T) {
	d := newTestDict(t, 256, nil)
	insertAll(t, d, 8, 16, 32)

	d.Clear()
	assert.True(t, d.Root().IsNil())
	assert.Zero(t, d.TotalSize())
	assert.Zero(t, d.NumFreeBlocks())
	assertInvariants(t, d)

	require.NoError(t, d.Reset(d.Region()))
	assert.Equal(t, uint64(256), d.TotalSize())
	assert.Equal(t, uint64(1), d.NumFreeBlocks())
	assertInvariants(t, d)

	require.ErrorIs(t, d.Reset(region.Region{Start: testBase, Words: 4}), ErrSizeTooSmall)
}

func TestLockHeld(t *testing.T) {
	held := false
	cfg := DebugConfig
	cfg.LockHeld = func() bool { return held }
	d := newTestDict(t, 128, &cfg)
	c := layout(t, d, 16)[0]

	require.Panics(t, func() { _ = d.Insert(c) })

	held = true
	require.NotPanics(t, func() { require.NoError(t, d.Insert(c)) })
	require.NotPanics(t, func() { d.RemoveBestFit(16, AtLeast) })

	held = false
	require.Panics(t, func() { d.Clear() })
}

// The lock predicate is only consulted in verify mode.
func TestLockHeld_IgnoredWithoutVerify(t *testing.T) {
	cfg := DefaultConfig
	cfg.LockHeld = func() bool { return false }
	d := newTestDict(t, 128, &cfg)
	c := layout(t, d, 16)[0]
	require.NotPanics(t, func() { require.NoError(t, d.Insert(c)) })
}

func TestCensusUpdate(t *testing.T) {
	d := newTestDict(t, 128, nil)
	insertAll(t, d, 16, 32)
	l16 := mustFind(t, d, 16)

	d.CensusUpdate(16, true, true)
	d.CensusUpdate(16, true, false)
	d.CensusUpdate(16, false, true)
	d.CensusUpdate(16, false, true)
	d.CensusUpdate(16, false, false)
	d.CensusUpdate(24, true, true) // no such list

	s := l16.Stats()
	assert.Equal(t, int64(2), s.SplitBirths, "one from list creation")
	assert.Equal(t, int64(1), s.SplitDeaths)
	assert.Equal(t, int64(2), s.CoalBirths)
	assert.Equal(t, int64(1), s.CoalDeaths)
	assert.Equal(t, int64(1), s.Surplus)
	assert.Equal(t, int64(1), mustFind(t, d, 32).Stats().SplitBirths)
}

func TestCoalOverPopulated(t *testing.T) {
	d := newTestDict(t, 128, nil)
	insertAll(t, d, 16, 16)

	assert.True(t, d.CoalOverPopulated(24), "absent size")
	assert.True(t, d.CoalOverPopulated(16), "no coalesce target yet")

	mustFind(t, d, 16).stats().CoalDesired = 2
	assert.False(t, d.CoalOverPopulated(16))
	mustFind(t, d, 16).stats().CoalDesired = 1
	assert.True(t, d.CoalOverPopulated(16))

	cfg := DebugConfig
	cfg.AlwaysCoalesceLarge = true
	d2 := newTestDict(t, 128, &cfg)
	insertAll(t, d2, 16)
	mustFind(t, d2, 16).stats().CoalDesired = 10
	assert.True(t, d2.CoalOverPopulated(16))
}

func TestReturnedBytes(t *testing.T) {
	d := newTestDict(t, 128, nil)
	insertAll(t, d, 16, 16, 16, 8)

	assert.Equal(t, uint64(2*16*8), d.SumReturnedBytes())
	d.ClearReturnedBytes()
	assert.Zero(t, d.SumReturnedBytes())
}

func TestDebugLogging(t *testing.T) {
	var buf bytes.Buffer
	cfg := DebugConfig
	cfg.Logger = logger.New(&buf, slog.LevelDebug, false)
	d := newTestDict(t, 128, &cfg)
	insertAll(t, d, 16, 8)

	_, ok := d.RemoveBestFit(16, Exactly)
	require.True(t, ok)
	assert.Contains(t, buf.String(), "msg=excise")
	assert.Contains(t, buf.String(), "component=dict")
}

func TestErrors_Wrapped(t *testing.T) {
	d := newTestDict(t, 64, nil)
	_, err := d.MakeChunk(testBase, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSizeTooSmall))
	assert.Contains(t, err.Error(), "2 words")
}
