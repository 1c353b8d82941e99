package listener

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultDebounce is the debounce window used when none is configured.
const DefaultDebounce = 100 * time.Millisecond

// KeyCallback is called with the key and the last value triggered within a debounce window.
type KeyCallback[T any] func(key string, value T)

// keyListener is a single registration. The generation counter acts as the
// cancellation token of the pending timer: a timer only fires if no newer trigger
// replaced it and the listener was not removed.
type keyListener[T any] struct {
	key      string
	callback KeyCallback[T]

	mu      sync.Mutex
	timer   *clock.Timer
	gen     uint64
	removed bool
}

// KeyListeners is a registry of debounced callbacks per key.
// A burst of triggers for a key coalesces into one call carrying the last value.
//
// Thread-safety: all methods are safe for concurrent use. Callbacks run on timer
// goroutines (or the triggering goroutine if the window is zero).
type KeyListeners[T any] struct {
	clock     clock.Clock
	window    time.Duration
	nextID    atomic.Uint64
	listeners *xsync.MapOf[uint64, *keyListener[T]]
}

// NewKeyListeners creates an empty registry. A window of zero dispatches synchronously.
func NewKeyListeners[T any](clk clock.Clock, window time.Duration) *KeyListeners[T] {
	if clk == nil {
		clk = clock.New()
	}
	return &KeyListeners[T]{
		clock:     clk,
		window:    window,
		listeners: xsync.NewMapOf[uint64, *keyListener[T]](),
	}
}

// Add registers callback for key and returns a handle. Handles are never reused.
func (l *KeyListeners[T]) Add(key string, callback KeyCallback[T]) uint64 {
	id := l.nextID.Add(1)
	l.listeners.Store(id, &keyListener[T]{key: key, callback: callback})
	return id
}

// Remove unregisters a listener and cancels its pending dispatch.
// It returns false if the handle is unknown.
func (l *KeyListeners[T]) Remove(id uint64) bool {
	kl, ok := l.listeners.LoadAndDelete(id)
	if !ok {
		return false
	}
	kl.mu.Lock()
	kl.removed = true
	if kl.timer != nil {
		kl.timer.Stop()
		kl.timer = nil
	}
	kl.mu.Unlock()
	return true
}

// Trigger schedules value for every listener of key, replacing pending values.
// It returns the number of matching listeners.
func (l *KeyListeners[T]) Trigger(key string, value T) int {
	matched := 0
	l.listeners.Range(func(_ uint64, kl *keyListener[T]) bool {
		if kl.key != key {
			return true
		}
		matched++
		l.schedule(kl, value)
		return true
	})
	return matched
}

// Len returns the number of registered listeners.
func (l *KeyListeners[T]) Len() int {
	return l.listeners.Size()
}

// Keys returns the number of listeners per key.
func (l *KeyListeners[T]) Keys() map[string]int {
	out := make(map[string]int)
	l.listeners.Range(func(_ uint64, kl *keyListener[T]) bool {
		out[kl.key]++
		return true
	})
	return out
}

func (l *KeyListeners[T]) schedule(kl *keyListener[T], value T) {
	kl.mu.Lock()
	if kl.removed {
		kl.mu.Unlock()
		return
	}
	kl.gen++
	if kl.timer != nil {
		kl.timer.Stop()
		kl.timer = nil
	}

	if l.window <= 0 {
		kl.mu.Unlock()
		kl.callback(kl.key, value)
		return
	}

	gen := kl.gen
	kl.timer = l.clock.AfterFunc(l.window, func() {
		kl.mu.Lock()
		if kl.removed || kl.gen != gen {
			kl.mu.Unlock()
			return
		}
		kl.timer = nil
		kl.mu.Unlock()
		kl.callback(kl.key, value)
	})
	kl.mu.Unlock()
}
