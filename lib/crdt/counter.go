package crdt

import (
	"encoding/json"
	"sort"
	"sync"
)

// CounterChange records one increment (ADD) or decrement (SUB) of a Counter.
type CounterChange struct {
	Op     Op     `json:"op"`
	Author string `json:"author"`
	Value  int64  `json:"value"`
	Seq    uint64 `json:"seq"`
}

type counterChangeID struct {
	author string
	seq    uint64
	op     Op
}

func (c *CounterChange) id() counterChangeID {
	return counterChangeID{author: c.Author, seq: c.Seq, op: c.Op}
}

func (c *CounterChange) valid() bool {
	return c.Author != "" && c.Seq > 0 && (c.Op == OpAdd || c.Op == OpSub)
}

func lessCounterChange(a, b *CounterChange) bool {
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	if a.Author != b.Author {
		return a.Author < b.Author
	}
	return a.Op < b.Op
}

// Counter is a replicated signed counter. Its value is the sum of all ADD minus all SUB changes.
//
// Thread-safety: all methods are safe for concurrent use.
type Counter struct {
	mu      sync.Mutex
	author  string
	changes []CounterChange
	seen    map[counterChangeID]struct{}
	total   int64
}

// NewCounter creates a Counter starting at zero. Local mutations are attributed to author.
func NewCounter(author string) *Counter {
	return &Counter{
		author: author,
		seen:   make(map[counterChangeID]struct{}),
	}
}

// Add increments the counter by n.
func (c *Counter) Add(n int64) CounterChange {
	return c.record(OpAdd, n)
}

// Sub decrements the counter by n.
func (c *Counter) Sub(n int64) CounterChange {
	return c.record(OpSub, n)
}

// Value returns the current total.
func (c *Counter) Value() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// MergeChanges merges remote changes and returns how many were new.
func (c *Counter) MergeChanges(changes []CounterChange) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	added := 0
	for _, ch := range changes {
		if !ch.valid() {
			continue
		}
		if c.add(ch) {
			added++
		}
	}
	if added > 0 {
		c.fold()
	}
	return added
}

// GetChanges returns all changes in canonical order.
func (c *Counter) GetChanges() []CounterChange {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CounterChange, len(c.changes))
	copy(out, c.changes)
	sort.Slice(out, func(i, j int) bool { return lessCounterChange(&out[i], &out[j]) })
	return out
}

// --------------------------------------------------------------------------
// Interface Methods (docu see crdt.CRDT)
// --------------------------------------------------------------------------

func (c *Counter) Type() Type {
	return TypeCounter
}

func (c *Counter) MergeJSON(data []byte) error {
	var changes []CounterChange
	if err := json.Unmarshal(data, &changes); err != nil {
		return err
	}
	c.MergeChanges(changes)
	return nil
}

func (c *Counter) MarshalChanges() ([]byte, error) {
	return json.Marshal(c.GetChanges())
}

func (c *Counter) ValueJSON() ([]byte, error) {
	return json.Marshal(c.Value())
}

func (c *Counter) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.changes)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (c *Counter) record(op Op, n int64) CounterChange {
	c.mu.Lock()
	defer c.mu.Unlock()
	var seq uint64
	for i := range c.changes {
		if c.changes[i].Author == c.author && c.changes[i].Seq > seq {
			seq = c.changes[i].Seq
		}
	}
	ch := CounterChange{Op: op, Author: c.author, Value: n, Seq: seq + 1}
	c.add(ch)
	c.fold()
	return ch
}

func (c *Counter) add(ch CounterChange) bool {
	id := ch.id()
	if _, ok := c.seen[id]; ok {
		return false
	}
	c.seen[id] = struct{}{}
	c.changes = append(c.changes, ch)
	return true
}

// fold recomputes the total over the sorted change set.
func (c *Counter) fold() {
	sorted := make([]*CounterChange, len(c.changes))
	for i := range c.changes {
		sorted[i] = &c.changes[i]
	}
	sort.Slice(sorted, func(i, j int) bool { return lessCounterChange(sorted[i], sorted[j]) })
	var total int64
	for _, ch := range sorted {
		switch ch.Op {
		case OpAdd:
			total += ch.Value
		case OpSub:
			total -= ch.Value
		}
	}
	c.total = total
}
