package domain

import "time"

// ContentType marks the direction of a message relative to its buffer.
type ContentType string

const (
	// Outgoing messages are eligible for propagation along the owning
	// scheme's transition graph.
	Outgoing ContentType = "OUTGOING"
	// Incoming messages are terminal: they never re-trigger propagation.
	Incoming ContentType = "INCOMING"
)

// Valid reports whether the content type is one of the two known values.
func (c ContentType) Valid() bool {
	return c == Outgoing || c == Incoming
}

// Device is a client-owned endpoint that owns buffers.
type Device struct {
	UID       string `json:"uid"`
	ClientUID string `json:"client_uid"`
	Name      string `json:"name,omitempty"`
}

// Buffer is a bounded holding area for messages, owned by a device.
type Buffer struct {
	UID               string `json:"uid"`
	DeviceUID         string `json:"device_uid"`
	MaxMessagesNumber int    `json:"max_messages_number"`
	MaxMessageSize    int    `json:"max_message_size"`
	MessagePrototype  string `json:"message_prototype,omitempty"`
}

// ConnectionScheme is a client-owned directed graph over buffers. Every
// buffer uid appearing in BufferTransitions must be a member of UsedBuffers.
type ConnectionScheme struct {
	UID               string              `json:"uid"`
	ClientUID         string              `json:"client_uid"`
	UsedBuffers       []string            `json:"used_buffers"`
	BufferTransitions map[string][]string `json:"buffer_transitions"`
}

// Uses reports whether bufferUID participates in the scheme.
func (s ConnectionScheme) Uses(bufferUID string) bool {
	for _, uid := range s.UsedBuffers {
		if uid == bufferUID {
			return true
		}
	}
	return false
}

// Message is a payload sitting in a buffer.
type Message struct {
	UID         string      `json:"uid"`
	BufferUID   string      `json:"buffer_uid"`
	ContentType ContentType `json:"content_type"`
	Content     string      `json:"content"`
	CreatedAt   time.Time   `json:"created_at"`
}

// HealthStatus is the answer to a health check, both over the bus and from
// the direct Health methods.
type HealthStatus struct {
	Status       string            `json:"status"`
	Service      string            `json:"service"`
	Timestamp    int64             `json:"timestamp"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

const (
	HealthOK       = "OK"
	HealthDegraded = "DEGRADED"

	DependencyAvailable   = "AVAILABLE"
	DependencyUnavailable = "UNAVAILABLE"
)
