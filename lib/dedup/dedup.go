package dedup

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultMaxEntries bounds the number of remembered keys.
	DefaultMaxEntries = 10000
	// DefaultMaxAge is how long a key is remembered.
	DefaultMaxAge = 5 * time.Minute
)

// Deduplicator remembers keys for a bounded time and count.
// The oldest keys are evicted first once maxEntries is reached.
//
// Thread-safety: all methods are safe for concurrent use.
type Deduplicator struct {
	mu   sync.Mutex
	seen *expirable.LRU[string, struct{}]
}

// New creates a deduplicator. Non-positive bounds fall back to the defaults.
func New(maxEntries int, maxAge time.Duration) *Deduplicator {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Deduplicator{seen: expirable.NewLRU[string, struct{}](maxEntries, nil, maxAge)}
}

// Seen reports whether key was seen before and records it otherwise.
// The check and the insert are atomic.
func (d *Deduplicator) Seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen.Peek(key); ok {
		return true
	}
	d.seen.Add(key, struct{}{})
	return false
}

// Forget removes key so that it is accepted again.
func (d *Deduplicator) Forget(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen.Remove(key)
}

// Len returns the number of remembered keys.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen.Len()
}
