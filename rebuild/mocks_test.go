package rebuild

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/restitch/restitch/internal"
	"github.com/stretchr/testify/mock"
)

// MemSource is an in-memory SectorSource with per-sector fault injection.
type MemSource struct {
	mu     sync.Mutex
	data   []byte
	bad    map[int64]bool
	reads  int64
	onRead func(total int64)
}

func NewMemSource(sectors int64) *MemSource {
	return &MemSource{
		data: make([]byte, sectors*SectorSize),
		bad:  make(map[int64]bool),
	}
}

// Place copies data onto the disk starting at sector addr.
func (m *MemSource) Place(addr int64, data []byte) {
	copy(m.data[addr*SectorSize:], data)
}

// Corrupt makes sector addr fail every read.
func (m *MemSource) Corrupt(addr int64) {
	m.bad[addr] = true
}

// Scramble overwrites sector addr with bytes that match nothing.
func (m *MemSource) Scramble(addr int64) {
	s := m.data[addr*SectorSize : (addr+1)*SectorSize]
	for i := range s {
		s[i] = 0xA5 ^ byte(i) ^ byte(addr)
	}
}

func (m *MemSource) SectorCount() int64 {
	return int64(len(m.data)) / SectorSize
}

func (m *MemSource) ReadSector(ctx context.Context, addr int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if addr < 0 || addr >= m.SectorCount() {
		return nil, internal.ErrSectorBounds
	}
	m.mu.Lock()
	m.reads++
	total := m.reads
	cb := m.onRead
	bad := m.bad[addr]
	var buf []byte
	if !bad {
		buf = make([]byte, SectorSize)
		copy(buf, m.data[addr*SectorSize:(addr+1)*SectorSize])
	}
	m.mu.Unlock()

	if cb != nil {
		cb(total)
	}
	if bad {
		return nil, errors.New("I/O error")
	}
	return buf, nil
}

// MemSink collects the assembled output in memory.
type MemSink struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	next int64
}

func (s *MemSink) WriteSector(index int64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index != s.next {
		return internal.ErrNonSequential
	}
	s.buf.Write(data)
	s.next++
	return nil
}

func (s *MemSink) Close() error { return nil }

func (s *MemSink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Bytes()
}

// MockSessionStore is a mock implementation of the SessionStore interface.
type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) Create(meta *SessionMeta) error {
	args := m.Called(meta)
	return args.Error(0)
}

func (m *MockSessionStore) LoadMeta(id string) (*SessionMeta, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*SessionMeta), args.Error(1)
}

func (m *MockSessionStore) SaveEntries(id string, entries []Placement) error {
	args := m.Called(id, entries)
	return args.Error(0)
}

func (m *MockSessionStore) LoadEntries(id string) ([]Placement, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Placement), args.Error(1)
}

func (m *MockSessionStore) Complete(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockSessionStore) Drop(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

// refBytes builds n-1 full sectors plus a tail of tailLen bytes, every
// sector carrying distinct non-zero content.
func refBytes(sectors int, tailLen int) []byte {
	size := (sectors-1)*SectorSize + tailLen
	out := make([]byte, size)
	for i := range out {
		sector := i / SectorSize
		out[i] = byte(sector*31+i%SectorSize) | 0x01
	}
	return out
}

func mustReference(data []byte) *Reference {
	ref, err := NewReference(bytes.NewReader(data))
	if err != nil {
		panic(err)
	}
	return ref
}

// paddedRef returns the reference content zero-padded to a whole number of
// sectors, the exact image a clean on-disk copy would have.
func paddedRef(ref *Reference) []byte {
	out := make([]byte, ref.SectorCount()*SectorSize)
	for i := int64(0); i < ref.SectorCount(); i++ {
		copy(out[i*SectorSize:], ref.Sector(i))
	}
	return out
}
