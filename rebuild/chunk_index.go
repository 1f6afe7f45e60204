package rebuild

import (
	"bytes"
	"sync"
)

// ChunkIndex maps sector fingerprints to the still-unresolved reference
// sector indices carrying that content. Resolved indices are pruned so
// later skim probes stay cheap and already-found data is not re-matched.
type ChunkIndex struct {
	mu   sync.RWMutex
	ref  *Reference
	byFP map[Fingerprint][]int64
	left int64
}

func NewChunkIndex(ref *Reference) *ChunkIndex {
	idx := &ChunkIndex{
		ref:  ref,
		byFP: make(map[Fingerprint][]int64, ref.SectorCount()),
		left: ref.SectorCount(),
	}
	for i := int64(0); i < ref.SectorCount(); i++ {
		fp := CalcFP(ref.Sector(i))
		idx.byFP[fp] = append(idx.byFP[fp], i)
	}
	return idx
}

// Lookup returns the unresolved reference indices whose content is
// byte-identical to buf. The fingerprint only narrows the candidates;
// every returned index passed a full compare.
func (idx *ChunkIndex) Lookup(buf []byte) []int64 {
	if len(buf) != SectorSize {
		return nil
	}
	fp := CalcFP(buf)

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []int64
	for _, i := range idx.byFP[fp] {
		if bytes.Equal(buf, idx.ref.Sector(i)) {
			out = append(out, i)
		}
	}
	return out
}

// Remove prunes index i after it has been resolved. Removing an index
// twice is harmless.
func (idx *ChunkIndex) Remove(i int64) {
	fp := CalcFP(idx.ref.Sector(i))

	idx.mu.Lock()
	defer idx.mu.Unlock()
	c := idx.byFP[fp]
	for k, v := range c {
		if v == i {
			idx.byFP[fp] = append(c[:k], c[k+1:]...)
			idx.left--
			break
		}
	}
	if len(idx.byFP[fp]) == 0 {
		delete(idx.byFP, fp)
	}
}

// Remaining reports how many reference sectors are still unresolved.
func (idx *ChunkIndex) Remaining() int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.left
}
