// Package events provides a small typed event emitter with explicit
// subscribe/unsubscribe handles and synchronous delivery.
package events

import (
	"fmt"
	"sync"

	"github.com/marmos91/formsync/internal/logger"
)

// Listener receives emitted values.
type Listener[T any] func(T)

// Emitter delivers values to its listeners synchronously, in subscription
// order. A panicking listener is recovered and logged so the remaining
// listeners are still invoked.
type Emitter[T any] struct {
	name string

	mu        sync.RWMutex
	nextID    uint64
	listeners []subscription[T]
}

type subscription[T any] struct {
	id uint64
	fn Listener[T]
}

// NewEmitter creates an emitter; name only appears in logs.
func NewEmitter[T any](name string) *Emitter[T] {
	return &Emitter[T]{name: name}
}

// Subscribe registers fn and returns a function that removes it again.
// Calling the returned function more than once is a no-op.
func (e *Emitter[T]) Subscribe(fn Listener[T]) (unsubscribe func()) {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.listeners = append(e.listeners, subscription[T]{id: id, fn: fn})
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(id) })
	}
}

func (e *Emitter[T]) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.listeners {
		if s.id == id {
			e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered listeners.
func (e *Emitter[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}

// Emit calls every listener with v. Listeners registered or removed during
// delivery take effect from the next Emit.
func (e *Emitter[T]) Emit(v T) {
	e.mu.RLock()
	snapshot := make([]subscription[T], len(e.listeners))
	copy(snapshot, e.listeners)
	e.mu.RUnlock()

	for _, s := range snapshot {
		e.deliver(s.fn, v)
	}
}

func (e *Emitter[T]) deliver(fn Listener[T], v T) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Event listener panicked",
				"emitter", e.name,
				logger.KeyError, fmt.Sprint(r))
		}
	}()
	fn(v)
}
