// Package scheme owns connection schemes: client-owned directed graphs over
// buffers that drive message propagation. Graph validity and buffer
// ownership are enforced here at creation and update time, not in storage.
package scheme

import (
	"sort"
	"sync"

	"github.com/connmesh/connmesh/internal/domain"
)

// Store is the scheme persistence contract.
type Store interface {
	Insert(s domain.ConnectionScheme) error
	Update(s domain.ConnectionScheme) error
	Get(uid string) (domain.ConnectionScheme, bool)
	ByBuffer(bufferUID string) []domain.ConnectionScheme
	ByClient(clientUID string) []domain.ConnectionScheme
	Delete(uid string) bool
}

// MemoryStore is a mutex-guarded in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	schemes map[string]domain.ConnectionScheme
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{schemes: make(map[string]domain.ConnectionScheme)}
}

func (s *MemoryStore) Insert(cs domain.ConnectionScheme) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schemes[cs.UID]; ok {
		return domain.AlreadyExistsf("scheme %s already exists", cs.UID)
	}
	s.schemes[cs.UID] = cs
	return nil
}

func (s *MemoryStore) Update(cs domain.ConnectionScheme) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schemes[cs.UID]; !ok {
		return domain.NotFoundf("scheme %s not found", cs.UID)
	}
	s.schemes[cs.UID] = cs
	return nil
}

func (s *MemoryStore) Get(uid string) (domain.ConnectionScheme, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.schemes[uid]
	return cs, ok
}

// ByBuffer returns every scheme whose used buffer set contains bufferUID.
func (s *MemoryStore) ByBuffer(bufferUID string) []domain.ConnectionScheme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ConnectionScheme
	for _, cs := range s.schemes {
		if cs.Uses(bufferUID) {
			out = append(out, cs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

func (s *MemoryStore) ByClient(clientUID string) []domain.ConnectionScheme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ConnectionScheme
	for _, cs := range s.schemes {
		if cs.ClientUID == clientUID {
			out = append(out, cs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

func (s *MemoryStore) Delete(uid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schemes[uid]; !ok {
		return false
	}
	delete(s.schemes, uid)
	return true
}
