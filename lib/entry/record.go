package entry

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/pKV/lib/crdt"
)

// Record is the storage format of a key.
//
// Entry is the last signed entry that won the timestamp comparison. For CRDT keys
// Merged holds the merged change set of every verified entry seen for the key and
// Sources holds the signed entries it was merged from. No source is contained in
// another one, so replicas receiving all sources can rebuild Merged and verify
// every change in it.
type Record struct {
	Entry   Entry           `json:"entry"`
	Merged  json.RawMessage `json:"merged,omitempty"`
	Sources []Entry         `json:"sources,omitempty"`
}

// NewCrdtRecord creates the record of a CRDT key from its first verified entry.
func NewCrdtRecord(e *Entry) (*Record, error) {
	c, err := crdt.FromChanges(e.CrdtType, e.Author, e.Value)
	if err != nil {
		return nil, err
	}
	merged, err := c.MarshalChanges()
	if err != nil {
		return nil, err
	}
	return &Record{Entry: *e.Clone(), Merged: merged, Sources: []Entry{*e.Clone()}}, nil
}

// DecodeRecord parses a stored record.
func DecodeRecord(raw []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &r, nil
}

// Encode returns the stored form of the record.
func (r *Record) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// Changes returns the merged change set, falling back to the signed entry value.
func (r *Record) Changes() json.RawMessage {
	if len(r.Merged) > 0 {
		return r.Merged
	}
	return r.Entry.Value
}

// Materialize returns the CRDT held by the record. author attributes further local mutations.
func (r *Record) Materialize(author string) (crdt.CRDT, error) {
	return crdt.FromChanges(r.Entry.CrdtType, author, r.Changes())
}

// Value returns the value of the record as JSON. CRDT records return their materialized value.
func (r *Record) Value() (json.RawMessage, error) {
	if r.Entry.CrdtType == crdt.TypeNone {
		return r.Entry.Value, nil
	}
	c, err := r.Materialize("")
	if err != nil {
		return nil, err
	}
	return c.ValueJSON()
}

// Signed returns the signed entries needed to rebuild the record, Entry first.
func (r *Record) Signed() []*Entry {
	out := []*Entry{r.Entry.Clone()}
	for i := range r.Sources {
		if r.Sources[i].Hash != r.Entry.Hash {
			out = append(out, r.Sources[i].Clone())
		}
	}
	return out
}

// MergeCrdt merges a verified CRDT entry of the same key and type into the record
// and reports whether the record changed.
//
// The change set grows by every change unknown so far, regardless of the entry's
// timestamp. Entry is only replaced by a newer entry. Sources contained in e are
// replaced by e.
func (r *Record) MergeCrdt(e *Entry) (bool, error) {
	if e.CrdtType != r.Entry.CrdtType {
		return false, fmt.Errorf("stored %s, got %s", r.Entry.CrdtType, e.CrdtType)
	}
	c, err := r.Materialize(e.Author)
	if err != nil {
		return false, err
	}
	before := c.Size()
	if err := c.MergeJSON(e.Value); err != nil {
		return false, err
	}
	grew := c.Size() > before
	newer := e.NewerThan(&r.Entry)
	if !grew && !newer {
		return false, nil
	}

	sources := make([]Entry, 0, len(r.Sources)+1)
	for _, s := range r.sources() {
		if s.Hash == e.Hash {
			continue
		}
		covered, err := contains(e, &s)
		if err != nil {
			return false, err
		}
		if !covered {
			sources = append(sources, s)
		}
	}
	r.Sources = append(sources, *e.Clone())

	if grew {
		if r.Merged, err = c.MarshalChanges(); err != nil {
			return false, err
		}
	}
	if newer {
		r.Entry = *e.Clone()
	}
	return true, nil
}

// sources returns Sources, or the signed entry for records written without them.
func (r *Record) sources() []Entry {
	if len(r.Sources) > 0 {
		return r.Sources
	}
	return []Entry{r.Entry}
}

// contains reports whether every change of inner is part of the change set of outer.
func contains(outer, inner *Entry) (bool, error) {
	c, err := crdt.FromChanges(outer.CrdtType, "", outer.Value)
	if err != nil {
		return false, err
	}
	size := c.Size()
	if err := c.MergeJSON(inner.Value); err != nil {
		return false, err
	}
	return c.Size() == size, nil
}
