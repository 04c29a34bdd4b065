package events

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// emitGrace is how long Emit waits on a full buffer before dropping.
const emitGrace = 100 * time.Millisecond

// ChannelEmitter delivers events on a buffered channel.
type ChannelEmitter struct {
	mu           sync.RWMutex
	events       chan Event
	closed       bool
	droppedCount atomic.Uint64
	logger       *zap.Logger
}

// NewChannelEmitter creates an emitter with the given buffer size.
func NewChannelEmitter(bufferSize int, logger *zap.Logger) *ChannelEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChannelEmitter{
		events: make(chan Event, bufferSize),
		logger: logger,
	}
}

// Emit sends an event. If the buffer stays full for emitGrace the event is
// dropped. Emit after Close is a no-op.
func (e *ChannelEmitter) Emit(event Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}

	select {
	case e.events <- event:
		return
	default:
	}

	timer := time.NewTimer(emitGrace)
	defer timer.Stop()
	select {
	case e.events <- event:
	case <-timer.C:
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			e.logger.Warn("event channel full, dropping events",
				zap.Uint64("dropped", count),
				zap.String("type", string(event.Type)))
		}
	}
}

// DroppedCount returns the total number of events dropped.
func (e *ChannelEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns the receive side of the channel.
func (e *ChannelEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the channel. It is safe to call more than once.
func (e *ChannelEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.events)
	}
}
