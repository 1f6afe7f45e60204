// Copyright 2026 The restitch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rebuild

import (
	"sort"
	"sync"
)

type mapEntry struct {
	resolved bool
	addr     int64
	conf     int
}

// ReconstructionMap is the single source of truth for which reference
// sectors have been located on the device: one entry per sector index,
// Unresolved or Resolved{addr, confidence}. The merge rule is applied
// atomically per entry and is order-independent — a longer chain always
// wins, an equal-length chain wins only with a lower device address — so
// the final map never depends on worker interleaving.
type ReconstructionMap struct {
	mu       sync.Mutex
	entries  []mapEntry
	resolved int64
	dirty    map[int64]struct{} // updated since the last TakeDirty
}

func NewReconstructionMap(n int64) *ReconstructionMap {
	return &ReconstructionMap{
		entries: make([]mapEntry, n),
		dirty:   make(map[int64]struct{}),
	}
}

// Resolve records that reference sector index was found at device sector
// addr by a chain of conf matched sectors. It reports whether the entry
// was updated: a weaker claim than the recorded one is dropped.
func (m *ReconstructionMap) Resolve(index, addr int64, conf int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &m.entries[index]
	if e.resolved && (conf < e.conf || (conf == e.conf && addr >= e.addr)) {
		return false
	}
	if !e.resolved {
		m.resolved++
	}
	e.resolved = true
	e.addr = addr
	e.conf = conf
	m.dirty[index] = struct{}{}
	return true
}

// Lookup returns the recorded placement of reference sector index.
func (m *ReconstructionMap) Lookup(index int64) (addr int64, conf int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[index]
	return e.addr, e.conf, e.resolved
}

func (m *ReconstructionMap) ResolvedCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolved
}

func (m *ReconstructionMap) TotalCount() int64 {
	return int64(len(m.entries))
}

func (m *ReconstructionMap) Complete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolved == int64(len(m.entries))
}

// TakeDirty returns the placements updated since the previous call and
// clears the dirty set; used for incremental checkpoints.
func (m *ReconstructionMap) TakeDirty() []Placement {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Placement, 0, len(m.dirty))
	for i := range m.dirty {
		e := m.entries[i]
		out = append(out, Placement{Index: i, Addr: e.addr, Conf: e.conf})
	}
	m.dirty = make(map[int64]struct{})
	sort.Slice(out, func(a, b int) bool { return out[a].Index < out[b].Index })
	return out
}

// Restore preloads placements from an earlier session. Restored entries
// are not marked dirty; they are already persisted.
func (m *ReconstructionMap) Restore(ps []Placement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range ps {
		if p.Index < 0 || p.Index >= int64(len(m.entries)) {
			logger.Warnf("dropping restored placement with index %d outside the reference", p.Index)
			continue
		}
		e := &m.entries[p.Index]
		if !e.resolved {
			m.resolved++
		}
		e.resolved = true
		e.addr = p.Addr
		e.conf = p.Conf
	}
}

// Placements returns every resolved entry in index order.
func (m *ReconstructionMap) Placements() []Placement {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Placement
	for i, e := range m.entries {
		if e.resolved {
			out = append(out, Placement{Index: int64(i), Addr: e.addr, Conf: e.conf})
		}
	}
	return out
}

// Chains returns the lengths of the resolved chains in file order. A chain
// is a run of resolved indices lying on one device diagonal (address
// deltas equal to index deltas); holes of up to tolerance sectors inside
// the run keep it one chain. Length counts resolved members only.
func (m *ReconstructionMap) Chains(tolerance int) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var chains []int
	cur := 0
	prevIdx, prevAddr := int64(-1), int64(0)
	for i, e := range m.entries {
		if !e.resolved {
			continue
		}
		idx := int64(i)
		if cur > 0 && idx-prevIdx <= int64(tolerance)+1 && e.addr-prevAddr == idx-prevIdx {
			cur++
		} else {
			if cur > 0 {
				chains = append(chains, cur)
			}
			cur = 1
		}
		prevIdx, prevAddr = idx, e.addr
	}
	if cur > 0 {
		chains = append(chains, cur)
	}
	return chains
}

// Gaps returns the unresolved index ranges, half-open, in file order.
func (m *ReconstructionMap) Gaps() []Range {
	m.mu.Lock()
	defer m.mu.Unlock()
	var gaps []Range
	for i := 0; i < len(m.entries); {
		if m.entries[i].resolved {
			i++
			continue
		}
		j := i
		for j < len(m.entries) && !m.entries[j].resolved {
			j++
		}
		gaps = append(gaps, Range{Start: int64(i), End: int64(j)})
		i = j
	}
	return gaps
}
