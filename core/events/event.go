package events

import (
	"sync"

	"creditchain/core/types"
)

// Event represents a structured state change emitted by a module.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is the default wired into engines that do not need an event sink.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// MemoryEmitter collects emitted events in order. The daemon uses it to expose
// recent events over RPC; tests use it to assert on emissions.
type MemoryEmitter struct {
	mu     sync.Mutex
	events []*types.Event
	cap    int
}

// NewMemoryEmitter constructs an emitter retaining at most cap events. A
// non-positive cap keeps every event.
func NewMemoryEmitter(cap int) *MemoryEmitter {
	return &MemoryEmitter{cap: cap}
}

func (m *MemoryEmitter) Emit(e Event) {
	if m == nil || e == nil {
		return
	}
	evt := e.Event()
	if evt == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	if m.cap > 0 && len(m.events) > m.cap {
		m.events = m.events[len(m.events)-m.cap:]
	}
}

// Events returns a snapshot of the collected events.
func (m *MemoryEmitter) Events() []*types.Event {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Event, len(m.events))
	copy(out, m.events)
	return out
}
