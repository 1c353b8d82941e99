package node

import (
	"fmt"

	"github.com/ValentinKolb/pKV/lib/crdt"
	"github.com/ValentinKolb/pKV/lib/entry"
)

// loadRecord returns the stored record of key or nil
func (n *Node) loadRecord(key string) (*entry.Record, error) {
	raw, ok, err := n.store.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return entry.DecodeRecord(raw)
}

func (n *Node) saveRecord(rec *entry.Record) error {
	raw, err := rec.Encode()
	if err != nil {
		return err
	}
	if err := n.store.Put(rec.Entry.Key, raw); err != nil {
		return err
	}
	n.metrics.persisted.Inc()
	return nil
}

// persistEntry stores a verified plain entry if it wins against the stored one.
//
// A stored entry is replaced only by a newer entry of the same author for
// namespaced keys, frozen keys are never replaced and CRDT keys never hold plain
// values. The returned record is the one stored after the call.
func (n *Node) persistEntry(e *entry.Entry) (*entry.Record, bool, error) {
	n.storeMu.Lock()
	defer n.storeMu.Unlock()

	prev, err := n.loadRecord(e.Key)
	if err != nil {
		return nil, false, err
	}
	if prev != nil {
		if entry.IsFrozen(e.Key) || prev.Entry.CrdtType != crdt.TypeNone || !e.NewerThan(&prev.Entry) {
			return prev, false, nil
		}
		if _, ok := entry.NamespaceOwner(e.Key); ok && prev.Entry.Author != e.Author {
			return prev, false, nil
		}
	}

	rec := &entry.Record{Entry: *e.Clone()}
	if err := n.saveRecord(rec); err != nil {
		return prev, false, err
	}
	return rec, true, nil
}

// mergeEntry merges the change set of a verified CRDT entry into the stored record.
// The record is written whenever the entry adds changes or is newer than the
// stored entry. The returned record is the one stored after the call.
func (n *Node) mergeEntry(e *entry.Entry) (*entry.Record, bool, error) {
	n.storeMu.Lock()
	defer n.storeMu.Unlock()

	prev, err := n.loadRecord(e.Key)
	if err != nil {
		return nil, false, err
	}

	if prev == nil {
		rec, err := entry.NewCrdtRecord(e)
		if err != nil {
			return nil, false, err
		}
		if err := n.saveRecord(rec); err != nil {
			return nil, false, err
		}
		return rec, true, nil
	}

	if prev.Entry.CrdtType != e.CrdtType {
		return prev, false, fmt.Errorf("%w: stored %s, got %s", ErrTypeMismatch, prev.Entry.CrdtType, e.CrdtType)
	}
	rec := *prev
	changed, err := rec.MergeCrdt(e)
	if err != nil || !changed {
		return prev, false, err
	}
	if err := n.saveRecord(&rec); err != nil {
		return prev, false, err
	}
	return &rec, true, nil
}
