package rebuild

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newExpandFixture(refSectors, devSectors int) (*Reference, *ChunkIndex, *MemSource, *ReconstructionMap) {
	ref := mustReference(refBytes(refSectors, SectorSize))
	src := NewMemSource(int64(devSectors))
	return ref, NewChunkIndex(ref), src, NewReconstructionMap(ref.SectorCount())
}

func TestExpandContiguousPlacement(t *testing.T) {
	ref, idx, src, rmap := newExpandFixture(8, 128)
	src.Place(100, paddedRef(ref))

	w := NewExpansionWorker(ref, idx, src, rmap, 2)
	n := w.Expand(context.Background(), MatchEvent{Index: 3, Addr: 103})
	assert.Equal(t, 8, n)

	for i := int64(0); i < 8; i++ {
		addr, conf, ok := rmap.Lookup(i)
		assert.True(t, ok, "sector %d", i)
		assert.Equal(t, 100+i, addr)
		assert.Equal(t, 8, conf)
	}
	assert.Equal(t, int64(0), idx.Remaining(), "resolved sectors are pruned")
}

func TestExpandReversedPlacement(t *testing.T) {
	ref, idx, src, rmap := newExpandFixture(8, 64)
	for i := int64(0); i < 8; i++ {
		src.Place(27-i, ref.Sector(i))
	}

	w := NewExpansionWorker(ref, idx, src, rmap, 2)
	n := w.Expand(context.Background(), MatchEvent{Index: 3, Addr: 24})
	assert.Equal(t, 1, n, "neither direction matches a reversed layout")

	addr, conf, ok := rmap.Lookup(3)
	assert.True(t, ok)
	assert.Equal(t, int64(24), addr)
	assert.Equal(t, 1, conf)
	assert.Equal(t, int64(1), rmap.ResolvedCount())
}

func TestExpandToleranceBridgesSmallGaps(t *testing.T) {
	ref, idx, src, rmap := newExpandFixture(10, 96)
	src.Place(50, paddedRef(ref))
	src.Scramble(53)
	src.Scramble(54)

	w := NewExpansionWorker(ref, idx, src, rmap, 2)
	n := w.Expand(context.Background(), MatchEvent{Index: 0, Addr: 50})
	assert.Equal(t, 8, n, "two bad sectors within tolerance keep the chain alive")

	for _, i := range []int64{3, 4} {
		_, _, ok := rmap.Lookup(i)
		assert.False(t, ok, "skipped sector %d stays unresolved", i)
	}
	for _, i := range []int64{0, 1, 2, 5, 6, 7, 8, 9} {
		addr, conf, ok := rmap.Lookup(i)
		assert.True(t, ok)
		assert.Equal(t, 50+i, addr)
		assert.Equal(t, 8, conf)
	}
	assert.Equal(t, []int{8}, rmap.Chains(2), "bridged run counts as one chain")
}

func TestExpandToleranceExceededSplits(t *testing.T) {
	ref, idx, src, rmap := newExpandFixture(10, 96)
	src.Place(50, paddedRef(ref))
	for _, a := range []int64{53, 54, 55} {
		src.Corrupt(a) // unreadable counts against the same budget
	}

	w := NewExpansionWorker(ref, idx, src, rmap, 2)
	n := w.Expand(context.Background(), MatchEvent{Index: 0, Addr: 50})
	assert.Equal(t, 3, n, "three consecutive misses exceed the budget")
	assert.Equal(t, int64(3), rmap.ResolvedCount())

	// the far side needs its own seed
	n = w.Expand(context.Background(), MatchEvent{Index: 8, Addr: 58})
	assert.Equal(t, 4, n)
	assert.Equal(t, []int{3, 4}, rmap.Chains(2))
}

func TestExpandStopsOnClaimedDiagonal(t *testing.T) {
	ref, idx, src, rmap := newExpandFixture(8, 128)
	src.Place(100, paddedRef(ref))
	rmap.Resolve(5, 105, 8)

	w := NewExpansionWorker(ref, idx, src, rmap, 2)
	n := w.Expand(context.Background(), MatchEvent{Index: 3, Addr: 103})
	assert.Equal(t, 5, n, "walk hands over at the sector another worker claimed")

	_, conf, ok := rmap.Lookup(5)
	assert.True(t, ok)
	assert.Equal(t, 8, conf, "the earlier claim stands")
}

func TestExpandDuplicateContentDeterminism(t *testing.T) {
	// the same three sectors exist inside a full copy and as a lone
	// fragment; the duplicate indices must end at the full copy's
	// addresses no matter which seed expands first
	build := func() (*ExpansionWorker, *ReconstructionMap) {
		ref, idx, src, rmap := newExpandFixture(8, 64)
		src.Place(10, paddedRef(ref))
		src.Place(40, paddedRef(ref)[2*SectorSize:5*SectorSize])
		return NewExpansionWorker(ref, idx, src, rmap, 2), rmap
	}
	long := MatchEvent{Index: 0, Addr: 10}
	short := MatchEvent{Index: 3, Addr: 41}

	for _, order := range [][]MatchEvent{{long, short}, {short, long}} {
		w, rmap := build()
		for _, seed := range order {
			w.Expand(context.Background(), seed)
		}
		for i := int64(0); i < 8; i++ {
			addr, conf, ok := rmap.Lookup(i)
			assert.True(t, ok)
			assert.Equal(t, 10+i, addr, "index %d belongs to the longer chain", i)
			assert.Equal(t, 8, conf)
		}
	}
}

func TestExpandEqualChainsPreferLowerAddress(t *testing.T) {
	build := func() (*ExpansionWorker, *ReconstructionMap) {
		ref, idx, src, rmap := newExpandFixture(4, 96)
		src.Place(20, paddedRef(ref))
		src.Place(50, paddedRef(ref))
		return NewExpansionWorker(ref, idx, src, rmap, 2), rmap
	}
	low := MatchEvent{Index: 0, Addr: 20}
	high := MatchEvent{Index: 0, Addr: 50}

	for _, order := range [][]MatchEvent{{low, high}, {high, low}} {
		w, rmap := build()
		for _, seed := range order {
			w.Expand(context.Background(), seed)
		}
		for i := int64(0); i < 4; i++ {
			addr, _, ok := rmap.Lookup(i)
			assert.True(t, ok)
			assert.Equal(t, 20+i, addr)
		}
	}
}

func TestExpandRespectsBounds(t *testing.T) {
	ref, idx, src, rmap := newExpandFixture(4, 16)
	src.Place(12, paddedRef(ref)) // copy runs to the last device sector

	w := NewExpansionWorker(ref, idx, src, rmap, 2)
	n := w.Expand(context.Background(), MatchEvent{Index: 0, Addr: 12})
	assert.Equal(t, 4, n)
	addr, _, ok := rmap.Lookup(3)
	assert.True(t, ok)
	assert.Equal(t, int64(15), addr)
}

func TestExpandObservesCancellation(t *testing.T) {
	ref, idx, src, rmap := newExpandFixture(8, 128)
	src.Place(100, paddedRef(ref))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewExpansionWorker(ref, idx, src, rmap, 2)
	n := w.Expand(ctx, MatchEvent{Index: 3, Addr: 103})
	assert.Equal(t, 1, n, "a cancelled walk still records its seed")
}
