package space

import (
	"bytes"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/btree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/freetree/heap/dict"
	"github.com/joshuapare/freetree/heap/region"
)

const testBase = region.Addr(0x40000)

func newTestSpace(t testing.TB, words uint64) *Space {
	t.Helper()
	s, err := New(region.Region{Start: testBase, Words: words}, &DebugConfig)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type walked struct {
	addr  region.Addr
	words uint64
	free  bool
}

func walk(t testing.TB, s *Space) []walked {
	t.Helper()
	var blocks []walked
	require.NoError(t, s.Walk(func(addr region.Addr, words uint64, free bool) bool {
		blocks = append(blocks, walked{addr, words, free})
		return true
	}))
	return blocks
}

func TestNew(t *testing.T) {
	s := newTestSpace(t, 1000)

	st := s.Stats()
	assert.Equal(t, uint64(1000), st.Words)
	assert.Equal(t, uint64(1000), st.FreeWords)
	assert.Equal(t, uint64(1), st.FreeBlocks)
	assert.Zero(t, st.LiveBlocks)
	assert.Zero(t, st.Frag)
	assert.Equal(t, []walked{{testBase, 1000, true}}, walk(t, s))
	require.NoError(t, s.Verify())
}

func TestNew_Rejects(t *testing.T) {
	_, err := New(region.Region{Start: testBase, Words: 0}, nil)
	require.ErrorIs(t, err, region.ErrEmpty)

	_, err = New(region.Region{Start: testBase, Words: 3}, nil)
	require.ErrorIs(t, err, dict.ErrSizeTooSmall)
}

func TestAllocate_Splits(t *testing.T) {
	s := newTestSpace(t, 1000)

	a, err := s.Allocate(100)
	require.NoError(t, err)
	assert.Equal(t, testBase, a)
	b, err := s.Allocate(50)
	require.NoError(t, err)
	assert.Equal(t, testBase+100, b)

	assert.Equal(t, []walked{
		{testBase, 100, false},
		{testBase + 100, 50, false},
		{testBase + 150, 850, true},
	}, walk(t, s))

	st := s.Stats()
	assert.Equal(t, uint64(150), st.LiveWords)
	assert.Equal(t, uint64(850), st.FreeWords)
	require.NoError(t, s.Verify())
}

func TestAllocate_RoundsUpAndKeepsSliver(t *testing.T) {
	s := newTestSpace(t, 20)

	a, err := s.Allocate(1)
	require.NoError(t, err)
	// Rounded up to the minimum; the remaining 13 words split off.
	assert.Equal(t, []walked{{a, 7, false}, {a + 7, 13, true}}, walk(t, s))

	// 13 - 10 leaves 3 words, too few for a chunk: the whole chunk goes.
	b, err := s.Allocate(10)
	require.NoError(t, err)
	assert.Equal(t, []walked{{a, 7, false}, {b, 13, false}}, walk(t, s))
	assert.Zero(t, s.Stats().FreeWords)
	require.NoError(t, s.Verify())
}

func TestAllocate_Errors(t *testing.T) {
	s := newTestSpace(t, 64)

	_, err := s.Allocate(0)
	require.ErrorIs(t, err, ErrZeroSize)

	_, err = s.Allocate(65)
	require.ErrorIs(t, err, ErrExhausted)

	_, err = s.Allocate(64)
	require.NoError(t, err)
	_, err = s.Allocate(7)
	require.ErrorIs(t, err, ErrExhausted)
}

func TestAllocate_SplitCensus(t *testing.T) {
	s := newTestSpace(t, 1000)
	_, err := s.Allocate(100)
	require.NoError(t, err)

	require.NoError(t, s.View(func(d *dict.Dictionary) error {
		l, ok := d.FindList(900)
		require.True(t, ok)
		// One birth from list creation, one from the split.
		assert.Equal(t, int64(2), l.Stats().SplitBirths)
		assert.Equal(t, int64(1), l.Stats().Surplus)
		return nil
	}))
}

func TestFree_CoalescesBothSides(t *testing.T) {
	s := newTestSpace(t, 300)
	a, err := s.Allocate(100)
	require.NoError(t, err)
	b, err := s.Allocate(100)
	require.NoError(t, err)
	c, err := s.Allocate(100)
	require.NoError(t, err)

	require.NoError(t, s.Free(a))
	require.NoError(t, s.Free(c))
	assert.Equal(t, uint64(2), s.Stats().FreeBlocks)

	require.NoError(t, s.Free(b))
	assert.Equal(t, []walked{{testBase, 300, true}}, walk(t, s))
	st := s.Stats()
	assert.Equal(t, uint64(1), st.FreeBlocks)
	assert.Zero(t, st.LiveBlocks)
	assert.Zero(t, st.Frag)
	require.NoError(t, s.Verify())

	require.NoError(t, s.View(func(d *dict.Dictionary) error {
		l, ok := d.FindList(300)
		require.True(t, ok)
		assert.Equal(t, int64(1), l.Stats().CoalBirths)
		return nil
	}))
}

func TestFree_Errors(t *testing.T) {
	s := newTestSpace(t, 100)
	a, err := s.Allocate(20)
	require.NoError(t, err)

	require.ErrorIs(t, s.Free(a+1), ErrNotAllocated)
	require.NoError(t, s.Free(a))
	require.ErrorIs(t, s.Free(a), ErrNotAllocated, "double free")
	require.NoError(t, s.Verify())
}

func TestFree_CantCoalesce(t *testing.T) {
	s := newTestSpace(t, 300)
	a, err := s.Allocate(100)
	require.NoError(t, err)
	b, err := s.Allocate(100)
	require.NoError(t, err)
	c, err := s.Allocate(100)
	require.NoError(t, err)

	require.NoError(t, s.SetCantCoalesce(b, true))
	require.NoError(t, s.Free(a))
	require.NoError(t, s.Free(b))
	require.NoError(t, s.Free(c))

	// b keeps its boundaries and blocks c from merging backwards into it.
	assert.Equal(t, []walked{
		{testBase, 100, true},
		{testBase + 100, 100, true},
		{testBase + 200, 100, true},
	}, walk(t, s))
	require.NoError(t, s.Verify())

	require.ErrorIs(t, s.SetCantCoalesce(b, false), ErrNotAllocated)
}

func TestFree_KeepsScarceNeighbours(t *testing.T) {
	s := newTestSpace(t, 300)
	a, err := s.Allocate(100)
	require.NoError(t, err)
	b, err := s.Allocate(50)
	require.NoError(t, err)
	require.NoError(t, s.Free(a))

	// Demand for 100-word chunks, none for the 150-word remainder.
	require.NoError(t, s.View(func(d *dict.Dictionary) error {
		d.CensusUpdate(100, true, true)
		d.CensusUpdate(150, false, false)
		d.CensusUpdate(150, false, false)
		return nil
	}))
	require.NoError(t, s.BeginSweep(SweepTiming{InterSweepCurrent: 1, InterSweepEstimate: 100, IntraSweepEstimate: 1}))
	require.NoError(t, s.EndSweep())

	require.NoError(t, s.View(func(d *dict.Dictionary) error {
		assert.False(t, d.CoalOverPopulated(100))
		assert.True(t, d.CoalOverPopulated(150))
		return nil
	}))

	// b merges forward into the 150-word chunk but leaves the scarce
	// 100-word chunk alone.
	require.NoError(t, s.Free(b))
	assert.Equal(t, []walked{
		{testBase, 100, true},
		{testBase + 100, 200, true},
	}, walk(t, s))
	require.NoError(t, s.Verify())
}

func TestSweep(t *testing.T) {
	s := newTestSpace(t, 1000)
	require.ErrorIs(t, s.EndSweep(), ErrNoSweep)

	timing := SweepTiming{InterSweepCurrent: 1, InterSweepEstimate: 1, IntraSweepEstimate: 0.1}
	require.NoError(t, s.BeginSweep(timing))
	require.ErrorIs(t, s.BeginSweep(timing), ErrSweepInProgress)
	require.NoError(t, s.EndSweep())
	assert.Equal(t, uint64(1), s.Stats().Sweeps)
}

func TestReset(t *testing.T) {
	s := newTestSpace(t, 500)
	for range 5 {
		_, err := s.Allocate(40)
		require.NoError(t, err)
	}
	require.NoError(t, s.Reset())

	st := s.Stats()
	assert.Zero(t, st.LiveWords)
	assert.Equal(t, uint64(500), st.FreeWords)
	assert.Equal(t, []walked{{testBase, 500, true}}, walk(t, s))
	require.NoError(t, s.Verify())
}

func TestFrag(t *testing.T) {
	s := newTestSpace(t, 400)
	var addrs []region.Addr
	for range 4 {
		a, err := s.Allocate(100)
		require.NoError(t, err)
		addrs = append(addrs, a)
	}
	assert.Zero(t, s.Frag(), "nothing free")

	require.NoError(t, s.Free(addrs[0]))
	require.NoError(t, s.Free(addrs[2]))
	// Two chunks of 100: 1 - 2*100² / 200² = 0.5
	assert.InDelta(t, 0.5, s.Frag(), 1e-9)
}

func TestWriteReport(t *testing.T) {
	s := newTestSpace(t, 1000)
	_, err := s.Allocate(100)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.WriteReport(&buf))
	assert.Contains(t, buf.String(), "Total Free Space: 900")
	assert.Contains(t, buf.String(), "TOTAL")
	assert.Contains(t, buf.String(), "size 900 (1 chunks")
}

// TestRandomWorkload interleaves allocations, frees and sweeps and checks
// after each step that free and live blocks tile the region and that the
// space's live index agrees with an independent one.
func TestRandomWorkload(t *testing.T) {
	for _, seed := range []int64{3, 99} {
		s := newTestSpace(t, 1<<13)
		rng := rand.New(rand.NewSource(seed))
		live := btree.NewG(8, func(a, b region.Addr) bool { return a < b })

		for step := range 1500 {
			switch op := rng.Intn(20); {
			case op < 10:
				a, err := s.Allocate(uint64(1 + rng.Intn(80)))
				if err != nil {
					require.ErrorIs(t, err, ErrExhausted, "step %d", step)
					continue
				}
				_, dup := live.ReplaceOrInsert(a)
				require.False(t, dup, "step %d: %#x handed out twice", step, uint64(a))
			case op < 18:
				if live.Len() == 0 {
					continue
				}
				n := rng.Intn(live.Len())
				var victim region.Addr
				live.Ascend(func(a region.Addr) bool {
					victim = a
					n--
					return n >= 0
				})
				require.NoError(t, s.Free(victim), "step %d", step)
				live.Delete(victim)
			case op < 19:
				require.NoError(t, s.BeginSweep(SweepTiming{
					InterSweepCurrent:  0.5 + rng.Float64(),
					InterSweepEstimate: 1,
					IntraSweepEstimate: 0.1,
				}))
				require.NoError(t, s.EndSweep())
			default:
				if live.Len() > 0 {
					a, _ := live.Min()
					require.NoError(t, s.SetCantCoalesce(a, rng.Intn(2) == 0))
				}
			}

			require.NoError(t, s.Verify(), "step %d", step)
			var liveSeen int
			for _, b := range walk(t, s) {
				if !b.free {
					liveSeen++
					_, ok := live.Get(b.addr)
					require.True(t, ok, "step %d: unexpected live block %#x", step, uint64(b.addr))
				}
			}
			require.Equal(t, live.Len(), liveSeen, "step %d", step)
		}
	}
}

func TestConcurrentUse(t *testing.T) {
	s := newTestSpace(t, 1<<14)

	var wg sync.WaitGroup
	for g := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(g)))
			var mine []region.Addr
			for range 200 {
				if len(mine) > 0 && rng.Intn(2) == 0 {
					i := rng.Intn(len(mine))
					assert.NoError(t, s.Free(mine[i]))
					mine = append(mine[:i], mine[i+1:]...)
					continue
				}
				if a, err := s.Allocate(uint64(8 + rng.Intn(40))); err == nil {
					mine = append(mine, a)
				}
			}
			for _, a := range mine {
				assert.NoError(t, s.Free(a))
			}
		}()
	}
	wg.Wait()

	st := s.Stats()
	assert.Equal(t, uint64(1<<14), st.FreeWords)
	assert.Zero(t, st.LiveBlocks)
	require.NoError(t, s.Verify())
}
