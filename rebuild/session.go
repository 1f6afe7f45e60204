package rebuild

import (
	"sort"
	"sync"
	"time"

	"github.com/restitch/restitch/internal"
)

// SessionMeta describes one recovery session for later resumption.
type SessionMeta struct {
	ID             string
	ReferenceBytes int64
	StartSector    int64
	CreatedAt      time.Time
}

// SessionStore persists scan checkpoints so an interrupted run can resume
// without rescanning the device. SaveEntries upserts by sector index;
// Complete and Drop discard the session.
type SessionStore interface {
	Create(meta *SessionMeta) error
	LoadMeta(id string) (*SessionMeta, error)
	SaveEntries(id string, entries []Placement) error
	LoadEntries(id string) ([]Placement, error)
	Complete(id string) error
	Drop(id string) error
}

// MemSessionStore keeps sessions in process memory. It backs tests and
// runs that want checkpoint semantics without a metadata server.
type MemSessionStore struct {
	mu      sync.Mutex
	metas   map[string]SessionMeta
	entries map[string]map[int64]Placement
}

func NewMemSessionStore() *MemSessionStore {
	return &MemSessionStore{
		metas:   make(map[string]SessionMeta),
		entries: make(map[string]map[int64]Placement),
	}
}

func (s *MemSessionStore) Create(meta *SessionMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metas[meta.ID] = *meta
	if s.entries[meta.ID] == nil {
		s.entries[meta.ID] = make(map[int64]Placement)
	}
	return nil
}

func (s *MemSessionStore) LoadMeta(id string) (*SessionMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.metas[id]
	if !ok {
		return nil, internal.ErrNoSession
	}
	return &meta, nil
}

func (s *MemSessionStore) SaveEntries(id string, entries []Placement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.entries[id]
	if !ok {
		return internal.ErrNoSession
	}
	for _, p := range entries {
		m[p.Index] = p
	}
	return nil
}

func (s *MemSessionStore) LoadEntries(id string) ([]Placement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.entries[id]
	if !ok {
		return nil, internal.ErrNoSession
	}
	out := make([]Placement, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Index < out[b].Index })
	return out, nil
}

func (s *MemSessionStore) Complete(id string) error {
	return s.Drop(id)
}

func (s *MemSessionStore) Drop(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.metas, id)
	delete(s.entries, id)
	return nil
}
