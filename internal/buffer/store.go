// Package buffer owns buffer records: bounded, device-owned holding areas
// for messages. Creation and deletion resolve device ownership over the bus;
// the lookup handlers serve peer domains directly.
package buffer

import (
	"sort"
	"sync"

	"github.com/connmesh/connmesh/internal/domain"
)

// Store is the buffer persistence contract.
type Store interface {
	Insert(b domain.Buffer) error
	Update(b domain.Buffer) error
	Get(uid string) (domain.Buffer, bool)
	ByDevice(deviceUID string) []domain.Buffer
	Delete(uid string) bool
}

// MemoryStore is a mutex-guarded in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	buffers map[string]domain.Buffer
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buffers: make(map[string]domain.Buffer)}
}

func (s *MemoryStore) Insert(b domain.Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buffers[b.UID]; ok {
		return domain.AlreadyExistsf("buffer %s already exists", b.UID)
	}
	s.buffers[b.UID] = b
	return nil
}

func (s *MemoryStore) Update(b domain.Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buffers[b.UID]; !ok {
		return domain.NotFoundf("buffer %s not found", b.UID)
	}
	s.buffers[b.UID] = b
	return nil
}

func (s *MemoryStore) Get(uid string) (domain.Buffer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buffers[uid]
	return b, ok
}

func (s *MemoryStore) ByDevice(deviceUID string) []domain.Buffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Buffer
	for _, b := range s.buffers {
		if b.DeviceUID == deviceUID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

func (s *MemoryStore) Delete(uid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buffers[uid]; !ok {
		return false
	}
	delete(s.buffers, uid)
	return true
}
