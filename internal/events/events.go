package events

import (
	"sync"
)

// Type identifies a lifecycle event emitted by a file buffer.
type Type string

const (
	// Ready fires exactly once when a backing strategy has been committed.
	Ready Type = "ready"
	// Progress carries a completion ratio in [0,1].
	Progress Type = "progress"
	// Data carries a chunk in read mode. A nil chunk is the end-of-sequence
	// sentinel, not a failure.
	Data Type = "data"
	// Error carries the underlying cause of a failed operation.
	Error Type = "error"
	// Finish marks logical completion and triggers Destroy.
	Finish Type = "finish"
	// Destroy is terminal; all buffer state has been released.
	Destroy Type = "destroy"
)

// Event is the payload delivered to handlers. Only the fields relevant to
// the event's Type are set.
type Event struct {
	Type  Type
	Ratio float64
	Chunk []byte
	Err   error
}

// Handler receives an emitted event. Handlers run synchronously on the
// emitting goroutine; they must not block.
type Handler func(Event)

// Emitter dispatches typed lifecycle events to subscribed handlers.
// Subscribe before triggering any operation that can emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	once     map[Type][]Handler
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{
		handlers: make(map[Type][]Handler),
		once:     make(map[Type][]Handler),
	}
}

// On registers a handler for every occurrence of the given event type.
func (e *Emitter) On(t Type, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[t] = append(e.handlers[t], h)
}

// Once registers a handler that runs for the next occurrence only.
func (e *Emitter) Once(t Type, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.once[t] = append(e.once[t], h)
}

// Emit delivers the event to all handlers registered for its type.
// One-shot handlers are removed before they run, so a handler that emits
// the same event type again cannot re-enter itself.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	handlers := make([]Handler, 0, len(e.handlers[ev.Type])+len(e.once[ev.Type]))
	handlers = append(handlers, e.handlers[ev.Type]...)
	handlers = append(handlers, e.once[ev.Type]...)
	delete(e.once, ev.Type)
	e.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}
