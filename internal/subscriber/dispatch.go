// Package subscriber is the client side of the realtime channel: it holds one
// broker connection for a signed-in user and re-dispatches what arrives as
// in-process custom events.
package subscriber

import (
	"sync"

	"budgetbot/internal/models"
)

// CustomEvent is what listeners receive. Name is the custom event name, e.g.
// "pusher-notification" or "expense-updated".
type CustomEvent struct {
	Name   string
	Detail models.Event
}

type Listener func(CustomEvent)

// Dispatcher routes custom events to listeners registered by name.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[string]map[uint64]Listener
	next      uint64
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{listeners: make(map[string]map[uint64]Listener)}
}

// On registers fn for name and returns a func that removes it again.
func (d *Dispatcher) On(name string, fn Listener) (off func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	id := d.next
	if d.listeners[name] == nil {
		d.listeners[name] = make(map[uint64]Listener)
	}
	d.listeners[name][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.listeners[name], id)
			if len(d.listeners[name]) == 0 {
				delete(d.listeners, name)
			}
		})
	}
}

// Dispatch calls every listener for ev.Name and returns how many ran.
// Listeners run synchronously on the caller's goroutine.
func (d *Dispatcher) Dispatch(ev CustomEvent) int {
	d.mu.RLock()
	fns := make([]Listener, 0, len(d.listeners[ev.Name]))
	for _, fn := range d.listeners[ev.Name] {
		fns = append(fns, fn)
	}
	d.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
	return len(fns)
}
