package crdt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// ListChange records one insertion (INS) or tombstone (DEL) of a List.
//
// Every change carries its own id "<author>-<seq>". An INS names its neighbours
// by the ids of the changes that created them, a DEL names the INS it removes in Target.
type ListChange struct {
	Op     Op              `json:"op"`
	ID     string          `json:"id"`
	Value  json.RawMessage `json:"value,omitempty"`
	Prev   string          `json:"prev,omitempty"`
	Next   string          `json:"next,omitempty"`
	Target string          `json:"target,omitempty"`

	// parsed from ID
	author string
	seq    uint64
}

// FormatListID builds a list change id.
func FormatListID(author string, seq uint64) string {
	return author + "-" + strconv.FormatUint(seq, 10)
}

// ParseListID splits a list change id into author and seq.
func ParseListID(id string) (string, uint64, error) {
	i := strings.LastIndexByte(id, '-')
	if i <= 0 || i == len(id)-1 {
		return "", 0, fmt.Errorf("invalid list id: %q", id)
	}
	seq, err := strconv.ParseUint(id[i+1:], 10, 64)
	if err != nil || seq == 0 {
		return "", 0, fmt.Errorf("invalid list id: %q", id)
	}
	return id[:i], seq, nil
}

// normalize parses the id and drops fields that do not belong to the op.
// It returns false for malformed changes.
func (c *ListChange) normalize() bool {
	author, seq, err := ParseListID(c.ID)
	if err != nil {
		return false
	}
	c.author, c.seq = author, seq
	switch c.Op {
	case OpIns:
		c.Value = compactValue(c.Value)
		c.Target = ""
		return len(c.Value) > 0
	case OpDel:
		c.Value, c.Prev, c.Next = nil, "", ""
		return c.Target != ""
	default:
		return false
	}
}

// lessListChange orders changes by (seq, author). Ids are unique so this is a total order.
func lessListChange(a, b *ListChange) bool {
	if a.seq != b.seq {
		return a.seq < b.seq
	}
	return a.author < b.author
}

// listElement is one threaded insertion.
type listElement struct {
	id    string
	value json.RawMessage
}

// List is a replicated sequence in the style of RGA. Deleted elements stay
// in the thread as tombstones and are never part of the visible value.
//
// Thread-safety: all methods are safe for concurrent use.
type List struct {
	mu      sync.Mutex
	author  string
	changes []ListChange
	seen    map[string]struct{}
	maxSeq  uint64

	// cached thread, valid while cachedLen == len(changes)
	thread     []listElement
	tombstones map[string]struct{}
	visible    []int
	cachedLen  int
}

// NewList creates an empty List. Local mutations are attributed to author.
func NewList(author string) *List {
	return &List{
		author:    author,
		seen:      make(map[string]struct{}),
		cachedLen: -1,
	}
}

// --------------------------------------------------------------------------
// Mutations
// --------------------------------------------------------------------------

// Insert places value at the visible position index (0 <= index <= Len()).
func (l *List) Insert(index int, value any) (ListChange, error) {
	raw, err := encodeValue(value)
	if err != nil {
		return ListChange{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.materialize()
	if index < 0 || index > len(l.visible) {
		return ListChange{}, fmt.Errorf("index %d out of range [0, %d]", index, len(l.visible))
	}
	c := ListChange{Op: OpIns, Value: raw}
	if index > 0 {
		c.Prev = l.thread[l.visible[index-1]].id
	}
	if index < len(l.visible) {
		c.Next = l.thread[l.visible[index]].id
	}
	l.stamp(&c)
	l.add(c)
	return c, nil
}

// Push appends value after the last visible element.
func (l *List) Push(value any) (ListChange, error) {
	raw, err := encodeValue(value)
	if err != nil {
		return ListChange{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.materialize()
	c := ListChange{Op: OpIns, Value: raw}
	if n := len(l.visible); n > 0 {
		c.Prev = l.thread[l.visible[n-1]].id
	}
	l.stamp(&c)
	l.add(c)
	return c, nil
}

// Delete tombstones the element at the visible position index.
func (l *List) Delete(index int) (ListChange, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.materialize()
	if index < 0 || index >= len(l.visible) {
		return ListChange{}, fmt.Errorf("index %d out of range [0, %d)", index, len(l.visible))
	}
	c := ListChange{Op: OpDel, Target: l.thread[l.visible[index]].id}
	l.stamp(&c)
	l.add(c)
	return c, nil
}

// MergeChanges merges remote changes and returns how many were new.
func (l *List) MergeChanges(changes []ListChange) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	added := 0
	for _, c := range changes {
		if !c.normalize() {
			continue
		}
		if l.add(c) {
			added++
		}
	}
	return added
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Value returns the visible elements in thread order.
func (l *List) Value() []json.RawMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.materialize()
	out := make([]json.RawMessage, len(l.visible))
	for i, idx := range l.visible {
		out[i] = l.thread[idx].value
	}
	return out
}

// IDs returns the ids of the visible elements in thread order.
func (l *List) IDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.materialize()
	out := make([]string, len(l.visible))
	for i, idx := range l.visible {
		out[i] = l.thread[idx].id
	}
	return out
}

// Len returns the number of visible elements.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.materialize()
	return len(l.visible)
}

// GetChanges returns all changes in canonical order.
func (l *List) GetChanges() []ListChange {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ListChange, len(l.changes))
	copy(out, l.changes)
	sort.Slice(out, func(i, j int) bool { return lessListChange(&out[i], &out[j]) })
	return out
}

// --------------------------------------------------------------------------
// Interface Methods (docu see crdt.CRDT)
// --------------------------------------------------------------------------

func (l *List) Type() Type {
	return TypeList
}

func (l *List) MergeJSON(data []byte) error {
	var changes []ListChange
	if err := json.Unmarshal(data, &changes); err != nil {
		return err
	}
	l.MergeChanges(changes)
	return nil
}

func (l *List) MarshalChanges() ([]byte, error) {
	return json.Marshal(l.GetChanges())
}

func (l *List) ValueJSON() ([]byte, error) {
	return json.Marshal(l.Value())
}

func (l *List) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.changes)
}

// --------------------------------------------------------------------------
// Helper Methods (callers must hold l.mu)
// --------------------------------------------------------------------------

// stamp assigns the next id. The seq is larger than every seq seen so far,
// so a change always sorts after the neighbours it references.
func (l *List) stamp(c *ListChange) {
	l.maxSeq++
	c.author, c.seq = l.author, l.maxSeq
	c.ID = FormatListID(l.author, l.maxSeq)
}

func (l *List) add(c ListChange) bool {
	if _, ok := l.seen[c.ID]; ok {
		return false
	}
	l.seen[c.ID] = struct{}{}
	l.changes = append(l.changes, c)
	if c.seq > l.maxSeq {
		l.maxSeq = c.seq
	}
	return true
}

// materialize threads all insertions in sorted order and applies tombstones.
func (l *List) materialize() {
	if l.cachedLen == len(l.changes) && l.thread != nil {
		return
	}
	sorted := make([]*ListChange, len(l.changes))
	for i := range l.changes {
		sorted[i] = &l.changes[i]
	}
	sort.Slice(sorted, func(i, j int) bool { return lessListChange(sorted[i], sorted[j]) })

	thread := make([]listElement, 0, len(sorted))
	tombstones := make(map[string]struct{})
	indexOf := func(id string) int {
		for i := range thread {
			if thread[i].id == id {
				return i
			}
		}
		return -1
	}

	for _, c := range sorted {
		if c.Op == OpDel {
			tombstones[c.Target] = struct{}{}
			continue
		}
		pos := 0
		if p := indexOf(c.Prev); c.Prev != "" && p >= 0 {
			pos = p + 1
		} else if n := indexOf(c.Next); c.Next != "" && n >= 0 {
			pos = n
		}
		thread = append(thread, listElement{})
		copy(thread[pos+1:], thread[pos:])
		thread[pos] = listElement{id: c.ID, value: c.Value}
	}

	visible := make([]int, 0, len(thread))
	for i := range thread {
		if _, dead := tombstones[thread[i].id]; !dead {
			visible = append(visible, i)
		}
	}
	l.thread, l.tombstones, l.visible = thread, tombstones, visible
	l.cachedLen = len(l.changes)
}
