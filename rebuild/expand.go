package rebuild

import (
	"bytes"
	"context"
)

// ExpansionWorker grows a verified seed match in both directions at once,
// exploiting the expectation that intact disk regions hold the file
// contiguously. The two directions run independently; neither waits on the
// other's outcome.
type ExpansionWorker struct {
	ref       *Reference
	idx       *ChunkIndex
	src       SectorSource
	rmap      *ReconstructionMap
	tolerance int
}

func NewExpansionWorker(ref *Reference, idx *ChunkIndex, src SectorSource, rmap *ReconstructionMap, tolerance int) *ExpansionWorker {
	return &ExpansionWorker{ref: ref, idx: idx, src: src, rmap: rmap, tolerance: tolerance}
}

// Expand walks forward and backward from the seed and reports the whole
// chain into the map with the chain's final matched length as confidence.
// Assigning the full length to every member keeps the merge rule a pure
// function of the chain structure, so repeated runs resolve duplicate
// content identically regardless of scheduling. Returns the chain length.
func (w *ExpansionWorker) Expand(ctx context.Context, seed MatchEvent) int {
	fwd := make(chan []MatchEvent, 1)
	go func() { fwd <- w.walk(ctx, seed, +1) }()
	pairs := w.walk(ctx, seed, -1)
	pairs = append(pairs, seed)
	pairs = append(pairs, <-fwd...)

	conf := len(pairs)
	for _, p := range pairs {
		if w.rmap.Resolve(p.Index, p.Addr, conf) {
			w.idx.Remove(p.Index)
		}
	}
	return conf
}

// walk extends the mapping one sector at a time in the given direction
// (+1 forward, -1 backward). Up to tolerance consecutive mismatched or
// unreadable sectors are stepped over; a later match revives the run and
// the skipped sectors stay unresolved. The walk stops at the reference or
// device boundary, when the miss budget runs out, or when it reaches a
// sector already resolved to the same diagonal by an earlier worker.
func (w *ExpansionWorker) walk(ctx context.Context, seed MatchEvent, dir int64) []MatchEvent {
	var pairs []MatchEvent
	misses := 0
	for i, a := seed.Index+dir, seed.Addr+dir; i >= 0 && i < w.ref.SectorCount() && a >= 0 && a < w.src.SectorCount(); i, a = i+dir, a+dir {
		if ctx.Err() != nil {
			break
		}
		if addr, _, ok := w.rmap.Lookup(i); ok && addr == a {
			break
		}
		buf, err := w.src.ReadSector(ctx, a)
		if err == nil && bytes.Equal(buf, w.ref.Sector(i)) {
			pairs = append(pairs, MatchEvent{Index: i, Addr: a})
			misses = 0
			continue
		}
		misses++
		if misses > w.tolerance {
			break
		}
	}
	return pairs
}
