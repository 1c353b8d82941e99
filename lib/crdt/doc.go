// Package crdt provides the conflict-free replicated data types used for CRDT keys
// of the store: Map, List and Counter.
//
// Every mutation produces an immutable change record. Replicas exchange change
// sets and merge them; changes are never removed. The materialized value of each
// type is a pure function of the change set, so replicas that know the same
// changes expose the same value no matter in which order or how often the
// changes were merged.
//
// Key Components:
//
//   - Map: replays SET/DEL changes sorted by (seq, SET before DEL, author).
//     The per key sequence number is one larger than any sequence number the
//     writer has seen for that key, so later writes win over what they observed.
//
//   - List: an RGA-style sequence. Each insertion references its neighbours by
//     change id ("<author>-<seq>"), deletions tombstone an insertion by id.
//
//   - Counter: the signed sum of all ADD and SUB changes.
//
// Deduplication on merge uses the structural identity of a change
// (author, seq and op for Map and Counter; the id for List), never the value.
// Malformed changes are dropped silently.
//
// The CRDT interface lets callers handle the three types uniformly through their
// JSON change set encoding, which is what is stored and replicated as the value
// of a CRDT entry:
//
//	c, _ := crdt.FromChanges(crdt.TypeCounter, author, storedChanges)
//	_ = c.MergeJSON(incomingChanges)
//	merged, _ := c.MarshalChanges()
package crdt
