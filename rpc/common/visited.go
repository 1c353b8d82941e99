package common

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"sort"
)

// VisitedSet is the set of addresses an envelope already passed through.
// It is immutable: With returns a new set.
type VisitedSet struct {
	addrs map[string]struct{}
}

// NewVisitedSet creates a set holding addrs.
func NewVisitedSet(addrs ...string) VisitedSet {
	return VisitedSet{}.With(addrs...)
}

// Contains reports whether addr was visited.
func (v VisitedSet) Contains(addr string) bool {
	_, ok := v.addrs[addr]
	return ok
}

// With returns a copy of the set with addrs added. Empty addresses are ignored.
func (v VisitedSet) With(addrs ...string) VisitedSet {
	out := make(map[string]struct{}, len(v.addrs)+len(addrs))
	for a := range v.addrs {
		out[a] = struct{}{}
	}
	for _, a := range addrs {
		if a != "" {
			out[a] = struct{}{}
		}
	}
	return VisitedSet{addrs: out}
}

// Len returns the number of visited addresses.
func (v VisitedSet) Len() int {
	return len(v.addrs)
}

// Slice returns the visited addresses in sorted order.
func (v VisitedSet) Slice() []string {
	out := make([]string, 0, len(v.addrs))
	for a := range v.addrs {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (v VisitedSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Slice())
}

// UnmarshalJSON decodes an array of addresses. null decodes to an empty set.
func (v *VisitedSet) UnmarshalJSON(data []byte) error {
	var addrs []string
	if err := json.Unmarshal(data, &addrs); err != nil {
		return err
	}
	*v = NewVisitedSet(addrs...)
	return nil
}

// GobEncode implements gob.GobEncoder, since the set has no exported fields.
func (v VisitedSet) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v.Slice()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (v *VisitedSet) GobDecode(data []byte) error {
	var addrs []string
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&addrs); err != nil {
		return err
	}
	*v = NewVisitedSet(addrs...)
	return nil
}
