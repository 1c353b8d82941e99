package listener

import "github.com/puzpuzpuz/xsync/v3"

// IDListeners holds one-shot callbacks keyed by correlation id.
// A callback fires at most once and is removed when it fires or is cancelled.
// Timeouts are the caller's business, who cancels the registration when giving up.
//
// Thread-safety: all methods are safe for concurrent use.
type IDListeners[T any] struct {
	listeners *xsync.MapOf[string, func(T)]
}

// NewIDListeners creates an empty registry.
func NewIDListeners[T any]() *IDListeners[T] {
	return &IDListeners[T]{listeners: xsync.NewMapOf[string, func(T)]()}
}

// Register adds callback for id. It returns false if id is already registered.
func (l *IDListeners[T]) Register(id string, callback func(T)) bool {
	_, loaded := l.listeners.LoadOrStore(id, callback)
	return !loaded
}

// Fire removes the callback for id and calls it with value.
// It returns false if nothing was registered.
func (l *IDListeners[T]) Fire(id string, value T) bool {
	callback, ok := l.listeners.LoadAndDelete(id)
	if !ok {
		return false
	}
	callback(value)
	return true
}

// Cancel removes the callback for id without calling it.
func (l *IDListeners[T]) Cancel(id string) bool {
	_, ok := l.listeners.LoadAndDelete(id)
	return ok
}

// Has reports whether a callback is registered for id.
func (l *IDListeners[T]) Has(id string) bool {
	_, ok := l.listeners.Load(id)
	return ok
}

// Len returns the number of pending callbacks.
func (l *IDListeners[T]) Len() int {
	return l.listeners.Size()
}
