// Package ids generates the identifiers used across the mesh: ULIDs for
// correlation ids, message uids, and per-process instance ids, and UUIDs for
// entity uids (devices, buffers, schemes, clients).
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewCorrelationID returns a time-sortable identifier for one in-flight call.
// Monotonic entropy keeps ids pairwise distinct within a process lifetime.
func NewCorrelationID() string {
	return newULID()
}

// NewInstanceID returns the random identifier appended to per-instance reply
// topics so sibling instances never observe each other's responses.
func NewInstanceID() string {
	return newULID()
}

// NewMessageUID returns a uid for a stored message.
func NewMessageUID() string {
	return uuid.NewString()
}

// NewEntityUID returns a uid for a device, buffer, scheme, or client record.
func NewEntityUID() string {
	return uuid.NewString()
}

// ValidUID reports whether s parses as an entity uid.
func ValidUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
