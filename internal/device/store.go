// Package device owns device records: client-owned endpoints that own
// buffers. It serves the device lookups every other domain resolves ownership
// through.
package device

import (
	"sort"
	"sync"

	"github.com/connmesh/connmesh/internal/domain"
)

// Store is the device persistence contract.
type Store interface {
	Insert(d domain.Device) error
	Get(uid string) (domain.Device, bool)
	ByClient(clientUID string) []domain.Device
	Delete(uid string) bool
}

// MemoryStore is a mutex-guarded in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	devices map[string]domain.Device
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{devices: make(map[string]domain.Device)}
}

func (s *MemoryStore) Insert(d domain.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[d.UID]; ok {
		return domain.AlreadyExistsf("device %s already exists", d.UID)
	}
	s.devices[d.UID] = d
	return nil
}

func (s *MemoryStore) Get(uid string) (domain.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[uid]
	return d, ok
}

func (s *MemoryStore) ByClient(clientUID string) []domain.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Device
	for _, d := range s.devices {
		if d.ClientUID == clientUID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

func (s *MemoryStore) Delete(uid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[uid]; !ok {
		return false
	}
	delete(s.devices, uid)
	return true
}
