package bus

import (
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
)

// HandlerInfo describes one registered handler and its runtime stats.
type HandlerInfo struct {
	Name         string
	ConsumeTopic string
	Stats        *HandlerStats
}

// HandlerStats tracks processing counters for a single handler.
type HandlerStats struct {
	mu            sync.Mutex
	processed     uint64
	failed        uint64
	lastError     error
	lastProcessed time.Time
	totalDuration time.Duration
}

func newHandlerStats() *HandlerStats {
	return &HandlerStats{}
}

func (s *HandlerStats) record(duration time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	s.totalDuration += duration
	s.lastProcessed = time.Now()
	if err != nil {
		s.failed++
		s.lastError = err
	}
}

// Snapshot is a point-in-time copy of a handler's counters.
type Snapshot struct {
	Processed     uint64
	Failed        uint64
	LastError     error
	LastProcessed time.Time
	AvgDuration   time.Duration
}

// Snapshot returns the current counters.
func (s *HandlerStats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Processed:     s.processed,
		Failed:        s.failed,
		LastError:     s.lastError,
		LastProcessed: s.lastProcessed,
	}
	if s.processed > 0 {
		snap.AvgDuration = s.totalDuration / time.Duration(s.processed)
	}
	return snap
}

func wrapWithStats(fn func(*message.Message) error, stats *HandlerStats) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		start := time.Now()
		err := fn(msg)
		stats.record(time.Since(start), err)
		return err
	}
}
