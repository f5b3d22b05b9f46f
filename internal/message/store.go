// Package message implements the buffer-graph message router: authorization
// gated ingestion of messages into buffers and single-hop propagation of
// outgoing messages along the connection-scheme transition graph.
package message

import (
	"sort"
	"sync"

	"github.com/connmesh/connmesh/internal/domain"
)

// Store is the message persistence contract. Add is idempotent by uid so a
// replayed propagation step after a crash cannot duplicate a message.
type Store interface {
	Add(m domain.Message) error
	Count(bufferUID string) int
	// Page returns the messages of the given buffers ordered by creation
	// time, sliced by offset and limit. With deleteOnGet the returned page is
	// removed atomically with the read.
	Page(bufferUIDs []string, offset, limit int, deleteOnGet bool) []domain.Message
	// PurgeBuffer removes every message in the buffer and reports how many.
	PurgeBuffer(bufferUID string) int
}

type entry struct {
	msg domain.Message
	seq uint64
}

// MemoryStore is a mutex-guarded in-memory Store. An insertion sequence
// breaks creation-time ties so pages are never reordered between calls.
type MemoryStore struct {
	mu       sync.Mutex
	messages map[string]entry
	nextSeq  uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: make(map[string]entry)}
}

func (s *MemoryStore) Add(m domain.Message) error {
	if m.UID == "" {
		return domain.Validationf("message requires a uid")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[m.UID]; ok {
		return nil
	}
	s.nextSeq++
	s.messages[m.UID] = entry{msg: m, seq: s.nextSeq}
	return nil
}

func (s *MemoryStore) Count(bufferUID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.messages {
		if e.msg.BufferUID == bufferUID {
			n++
		}
	}
	return n
}

func (s *MemoryStore) Page(bufferUIDs []string, offset, limit int, deleteOnGet bool) []domain.Message {
	wanted := make(map[string]struct{}, len(bufferUIDs))
	for _, uid := range bufferUIDs {
		wanted[uid] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []entry
	for _, e := range s.messages {
		if _, ok := wanted[e.msg.BufferUID]; ok {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].msg.CreatedAt.Equal(entries[j].msg.CreatedAt) {
			return entries[i].seq < entries[j].seq
		}
		return entries[i].msg.CreatedAt.Before(entries[j].msg.CreatedAt)
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(entries) {
		return nil
	}
	entries = entries[offset:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}

	out := make([]domain.Message, len(entries))
	for i, e := range entries {
		out[i] = e.msg
		if deleteOnGet {
			delete(s.messages, e.msg.UID)
		}
	}
	return out
}

func (s *MemoryStore) PurgeBuffer(bufferUID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for uid, e := range s.messages {
		if e.msg.BufferUID == bufferUID {
			delete(s.messages, uid)
			n++
		}
	}
	return n
}
