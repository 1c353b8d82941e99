package listener

import (
	"sort"
	"sync"
)

// Bus is a typed publish/subscribe bus keyed by event name.
//
// Thread-safety: all methods are safe for concurrent use. Handlers are called on
// the emitting goroutine, in subscription order, without holding internal locks,
// so a handler may subscribe or unsubscribe.
type Bus[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]func(T)
}

// NewBus creates an empty bus.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[string]map[uint64]func(T))}
}

// On subscribes handler to event and returns a handle for Off.
func (b *Bus[T]) On(event string, handler func(T)) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	if b.subs[event] == nil {
		b.subs[event] = make(map[uint64]func(T))
	}
	b.subs[event][b.nextID] = handler
	return b.nextID
}

// Off removes a subscription. It returns false if the handle is unknown.
func (b *Bus[T]) Off(event string, handle uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	handlers, ok := b.subs[event]
	if !ok {
		return false
	}
	if _, ok := handlers[handle]; !ok {
		return false
	}
	delete(handlers, handle)
	if len(handlers) == 0 {
		delete(b.subs, event)
	}
	return true
}

// Emit calls every handler subscribed to event and returns how many were called.
func (b *Bus[T]) Emit(event string, value T) int {
	b.mu.RLock()
	handles := make([]uint64, 0, len(b.subs[event]))
	for h := range b.subs[event] {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	handlers := make([]func(T), len(handles))
	for i, h := range handles {
		handlers[i] = b.subs[event][h]
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(value)
	}
	return len(handlers)
}
