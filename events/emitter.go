// Package events is the node-local pub/sub broker every other package
// publishes world-state and pipeline events through: triggers subscribe to
// match filters, and the builtin asset index subscribes to maintain its
// secondary index. Kept from the teacher
// (events/emitter.go's subscribe/emit/panic-recovery shape) with EventType
// generalised from a flat game-domain string enum to core.EventKind, the
// four families spec §4.K names.
package events

import (
	"log"
	"sync"

	"github.com/tolelom/irohad/core"
)

// Handler is a callback invoked for matching events.
type Handler func(core.Event)

// Emitter is a simple pub/sub broker, keyed by core.EventKind. Subscribe
// before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[core.EventKind][]Handler
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[core.EventKind][]Handler)}
}

// Subscribe registers h to be called whenever an event of kind is emitted.
func (e *Emitter) Subscribe(kind core.EventKind, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[kind] = append(e.handlers[kind], h)
}

// EmitAll delivers every event in evs to their respective subscribers, in
// order. Block commit calls this once per block with the BlockContext's
// journal (wsv/blockcontext.go) plus a trailing EventPipeline event.
func (e *Emitter) EmitAll(evs []core.Event) {
	for _, ev := range evs {
		e.Emit(ev)
	}
}

// Emit delivers ev to all subscribers for ev.Kind synchronously. Each
// handler is guarded by panic recovery so a misbehaving subscriber cannot
// crash the node or halt block production.
func (e *Emitter) Emit(ev core.Event) {
	e.mu.RLock()
	handlers := e.handlers[ev.Kind]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[events] handler panicked for kind %d: %v", ev.Kind, r)
				}
			}()
			h(ev)
		}()
	}
}
