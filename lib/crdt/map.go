package crdt

import (
	"encoding/json"
	"sort"
	"sync"
)

// MapChange records one SET or DEL on a key of a Map.
type MapChange struct {
	Op     Op              `json:"op"`
	Author string          `json:"author"`
	Key    string          `json:"key"`
	Value  json.RawMessage `json:"value,omitempty"`
	Seq    uint64          `json:"seq"`
}

// mapChangeID is the structural identity used for deduplication.
type mapChangeID struct {
	author string
	key    string
	seq    uint64
	op     Op
}

func (c *MapChange) id() mapChangeID {
	return mapChangeID{author: c.Author, key: c.Key, seq: c.Seq, op: c.Op}
}

// valid reports whether the change is well-formed. Invalid changes are dropped on merge.
func (c *MapChange) valid() bool {
	if c.Author == "" || c.Key == "" || c.Seq == 0 {
		return false
	}
	switch c.Op {
	case OpSet:
		return len(c.Value) > 0
	case OpDel:
		return true
	default:
		return false
	}
}

// lessMapChange orders changes by (seq asc, SET before DEL, author asc).
// Key is the final tie breaker so the canonical encoding is stable.
func lessMapChange(a, b *MapChange) bool {
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	if a.Op != b.Op {
		return a.Op == OpSet
	}
	if a.Author != b.Author {
		return a.Author < b.Author
	}
	return a.Key < b.Key
}

// Map is a replicated map whose value is the replay of all changes in sorted order.
// The winner for a key is the last change in that order, not the latest by wall clock.
//
// Thread-safety: all methods are safe for concurrent use.
type Map struct {
	mu      sync.Mutex
	author  string
	changes []MapChange
	seen    map[mapChangeID]struct{}

	// cached materialized value, valid while cachedLen == len(changes)
	cache     map[string]json.RawMessage
	cachedLen int
}

// NewMap creates an empty Map. Local mutations are attributed to author.
func NewMap(author string) *Map {
	return &Map{
		author:    author,
		seen:      make(map[mapChangeID]struct{}),
		cachedLen: -1,
	}
}

// --------------------------------------------------------------------------
// Mutations
// --------------------------------------------------------------------------

// Set writes value (any JSON encodable value or json.RawMessage) to key and returns the recorded change.
func (m *Map) Set(key string, value any) (MapChange, error) {
	raw, err := encodeValue(value)
	if err != nil {
		return MapChange{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := MapChange{Op: OpSet, Author: m.author, Key: key, Value: raw, Seq: m.nextSeq(key)}
	m.add(c)
	return c, nil
}

// Delete removes key and returns the recorded change.
func (m *Map) Delete(key string) MapChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := MapChange{Op: OpDel, Author: m.author, Key: key, Seq: m.nextSeq(key)}
	m.add(c)
	return c
}

// MergeChanges merges remote changes and returns how many were new.
func (m *Map) MergeChanges(changes []MapChange) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	added := 0
	for _, c := range changes {
		if c.Op == OpSet {
			c.Value = compactValue(c.Value)
		} else {
			c.Value = nil
		}
		if !c.valid() {
			continue
		}
		if m.add(c) {
			added++
		}
	}
	return added
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get returns the current value of key.
func (m *Map) Get(key string) (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.materialize()[key]
	return v, ok
}

// Keys returns all present keys in ascending order.
func (m *Map) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	value := m.materialize()
	keys := make([]string, 0, len(value))
	for k := range value {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Value returns a copy of the materialized map.
func (m *Map) Value() map[string]json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	value := m.materialize()
	out := make(map[string]json.RawMessage, len(value))
	for k, v := range value {
		out[k] = v
	}
	return out
}

// GetChanges returns all changes in canonical order.
func (m *Map) GetChanges() []MapChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MapChange, len(m.changes))
	copy(out, m.changes)
	sort.Slice(out, func(i, j int) bool { return lessMapChange(&out[i], &out[j]) })
	return out
}

// --------------------------------------------------------------------------
// Interface Methods (docu see crdt.CRDT)
// --------------------------------------------------------------------------

func (m *Map) Type() Type {
	return TypeMap
}

func (m *Map) MergeJSON(data []byte) error {
	var changes []MapChange
	if err := json.Unmarshal(data, &changes); err != nil {
		return err
	}
	m.MergeChanges(changes)
	return nil
}

func (m *Map) MarshalChanges() ([]byte, error) {
	return json.Marshal(m.GetChanges())
}

func (m *Map) ValueJSON() ([]byte, error) {
	return json.Marshal(m.Value())
}

func (m *Map) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.changes)
}

// --------------------------------------------------------------------------
// Helper Methods (callers must hold m.mu)
// --------------------------------------------------------------------------

// add appends c unless a change with the same identity is known.
func (m *Map) add(c MapChange) bool {
	id := c.id()
	if _, ok := m.seen[id]; ok {
		return false
	}
	m.seen[id] = struct{}{}
	m.changes = append(m.changes, c)
	return true
}

// nextSeq returns a sequence number greater than every known change on key.
// This keeps seq monotonic per (author, key) and orders a write after everything its author had seen.
func (m *Map) nextSeq(key string) uint64 {
	var max uint64
	for i := range m.changes {
		if m.changes[i].Key == key && m.changes[i].Seq > max {
			max = m.changes[i].Seq
		}
	}
	return max + 1
}

// materialize replays all changes in sorted order. The result is cached until new changes arrive.
func (m *Map) materialize() map[string]json.RawMessage {
	if m.cachedLen == len(m.changes) && m.cache != nil {
		return m.cache
	}
	sorted := make([]*MapChange, len(m.changes))
	for i := range m.changes {
		sorted[i] = &m.changes[i]
	}
	sort.Slice(sorted, func(i, j int) bool { return lessMapChange(sorted[i], sorted[j]) })

	value := make(map[string]json.RawMessage)
	for _, c := range sorted {
		switch c.Op {
		case OpSet:
			value[c.Key] = c.Value
		case OpDel:
			delete(value, c.Key)
		}
	}
	m.cache = value
	m.cachedLen = len(m.changes)
	return value
}
