package crdt

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// CRDT Type Definition
// --------------------------------------------------------------------------

// Type identifies the replicated data type stored under a key.
// TypeNone marks plain (non CRDT) values.
type Type uint8

const (
	TypeNone Type = iota
	TypeMap
	TypeList
	TypeCounter
)

// String returns the string representation of a Type.
func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeMap:
		return "map"
	case TypeList:
		return "list"
	case TypeCounter:
		return "counter"
	default:
		return "unknown"
	}
}

// ParseType converts the string representation of a Type back.
// The empty string is treated as TypeNone.
func ParseType(s string) (Type, error) {
	switch s {
	case "none", "":
		return TypeNone, nil
	case "map":
		return TypeMap, nil
	case "list":
		return TypeList, nil
	case "counter":
		return TypeCounter, nil
	default:
		return TypeNone, fmt.Errorf("unknown crdt type: %s", s)
	}
}

// MarshalJSON implements the json.Marshaller interface for Type.
func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Type.
func (t *Type) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// --------------------------------------------------------------------------
// Operations
// --------------------------------------------------------------------------

// Op is the operation recorded by a change.
type Op string

const (
	OpSet Op = "SET" // Map: write a key
	OpDel Op = "DEL" // Map: remove a key, List: tombstone an element
	OpIns Op = "INS" // List: insert an element
	OpAdd Op = "ADD" // Counter: increment
	OpSub Op = "SUB" // Counter: decrement
)

// --------------------------------------------------------------------------
// Common Interface
// --------------------------------------------------------------------------

// CRDT is the contract shared by Map, List and Counter.
//
// Merging is commutative, associative and idempotent: replicas that merged the
// same set of changes in any order and with any duplication expose the same value.
// Malformed or duplicate changes are ignored, they never produce an error.
//
// Thread-safety: all implementations are safe for concurrent use.
type CRDT interface {
	// Type returns the replicated data type.
	Type() Type
	// MergeJSON merges a JSON encoded change set into the local state.
	// An error is only returned if data is not a JSON array of changes.
	MergeJSON(data []byte) error
	// MarshalChanges returns the complete change set in canonical order.
	// Two replicas holding the same set of changes produce identical bytes.
	MarshalChanges() ([]byte, error)
	// ValueJSON returns the materialized value encoded as JSON.
	ValueJSON() ([]byte, error)
	// Size returns the number of changes held.
	Size() int
}

// New creates an empty CRDT of the given type. Local mutations are attributed to author.
func New(t Type, author string) (CRDT, error) {
	switch t {
	case TypeMap:
		return NewMap(author), nil
	case TypeList:
		return NewList(author), nil
	case TypeCounter:
		return NewCounter(author), nil
	default:
		return nil, fmt.Errorf("cannot create crdt of type %s", t)
	}
}

// FromChanges creates a CRDT of the given type and merges the JSON encoded change set into it.
// Empty data yields an empty CRDT.
func FromChanges(t Type, author string, data []byte) (CRDT, error) {
	c, err := New(t, author)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return c, nil
	}
	if err := c.MergeJSON(data); err != nil {
		return nil, err
	}
	return c, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// compactValue returns the compact JSON form of v, or nil if v is not valid JSON.
func compactValue(v json.RawMessage) json.RawMessage {
	if len(v) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return nil
	}
	return buf.Bytes()
}

// encodeValue marshals a Go value into its compact JSON form.
func encodeValue(v any) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		if c := compactValue(raw); c != nil {
			return c, nil
		}
		return nil, fmt.Errorf("invalid json value")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}
