// Package broadcast fans persisted run log events out to live listeners.
package broadcast

import (
	"sync"

	"github.com/google/uuid"

	"github.com/researchgpt/researchgpt/internal/types"
)

// DefaultBufferSize is the per-listener channel capacity. A listener that
// falls this far behind starts losing events; the persisted history remains
// complete.
const DefaultBufferSize = 64

// Listener receives the events of one run. Events returns a receive-only
// channel that is closed on Detach.
type Listener struct {
	ch chan types.LogEvent
}

// Events returns the listener's event channel.
func (l *Listener) Events() <-chan types.LogEvent {
	return l.ch
}

// Registry routes log events to the listeners of each run. Publish never
// blocks: slow listeners drop events rather than stalling a step runner.
type Registry struct {
	mu        sync.Mutex
	listeners map[uuid.UUID]map[*Listener]struct{}
	bufSize   int
}

// NewRegistry creates a Registry with the default listener buffer size.
func NewRegistry() *Registry {
	return NewRegistryWithBuffer(DefaultBufferSize)
}

// NewRegistryWithBuffer creates a Registry with a custom listener buffer size.
func NewRegistryWithBuffer(bufSize int) *Registry {
	if bufSize < 1 {
		bufSize = 1
	}
	return &Registry{
		listeners: make(map[uuid.UUID]map[*Listener]struct{}),
		bufSize:   bufSize,
	}
}

// Attach registers a new listener for a run. The caller must Detach it when
// done or the listener leaks.
func (r *Registry) Attach(runID uuid.UUID) *Listener {
	l := &Listener{ch: make(chan types.LogEvent, r.bufSize)}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listeners[runID] == nil {
		r.listeners[runID] = make(map[*Listener]struct{})
	}
	r.listeners[runID][l] = struct{}{}
	return l
}

// Detach removes a listener and closes its channel. Detaching twice is a
// no-op.
func (r *Registry) Detach(runID uuid.UUID, l *Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.listeners[runID]
	if !ok {
		return
	}
	if _, ok := set[l]; !ok {
		return
	}
	delete(set, l)
	if len(set) == 0 {
		delete(r.listeners, runID)
	}
	close(l.ch)
}

// CloseRun detaches every listener of a run and closes their channels. Used
// when the run itself goes away so open streams end instead of idling.
func (r *Registry) CloseRun(runID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for l := range r.listeners[runID] {
		close(l.ch)
	}
	delete(r.listeners, runID)
}

// Publish delivers an event to every current listener of its run. Full
// listener buffers drop the event.
func (r *Registry) Publish(event types.LogEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for l := range r.listeners[event.RunID] {
		select {
		case l.ch <- event:
		default:
			// Listener is not keeping up; it can reread history afterwards.
		}
	}
}

// ListenerCount reports how many listeners a run currently has.
func (r *Registry) ListenerCount(runID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners[runID])
}
