package crdt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func rawValues(t *testing.T, values ...any) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, len(values))
	for i, v := range values {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		out[i] = b
	}
	return out
}

func TestMap(t *testing.T) {
	t.Run("Set&Delete", func(t *testing.T) {
		m := NewMap("alice")
		_, err := m.Set("a", 1)
		require.NoError(t, err)
		_, err = m.Set("b", "two")
		require.NoError(t, err)

		v, ok := m.Get("a")
		require.True(t, ok)
		require.JSONEq(t, `1`, string(v))
		require.Equal(t, []string{"a", "b"}, m.Keys())

		del := m.Delete("a")
		require.Equal(t, OpDel, del.Op)
		require.Equal(t, uint64(2), del.Seq)
		_, ok = m.Get("a")
		require.False(t, ok)
	})

	t.Run("HigherSeqWins", func(t *testing.T) {
		a, b := NewMap("alice"), NewMap("bob")
		_, err := a.Set("k", "alice-1")
		require.NoError(t, err)
		b.MergeChanges(a.GetChanges())

		// bob saw alice's write, so his write sorts after it
		_, err = b.Set("k", "bob-2")
		require.NoError(t, err)
		a.MergeChanges(b.GetChanges())

		v, _ := a.Get("k")
		require.JSONEq(t, `"bob-2"`, string(v))
	})

	t.Run("ConcurrentTieBreak", func(t *testing.T) {
		a, b := NewMap("alice"), NewMap("bob")
		_, err := a.Set("k", "from-alice")
		require.NoError(t, err)
		b.Delete("k")

		a.MergeChanges(b.GetChanges())
		b.MergeChanges(a.GetChanges())

		// same seq: SET is replayed before DEL
		_, ok := a.Get("k")
		require.False(t, ok)
		_, ok = b.Get("k")
		require.False(t, ok)

		_, err = b.Set("x", 1)
		require.NoError(t, err)
		_, err = a.Set("x", 2)
		require.NoError(t, err)
		a.MergeChanges(b.GetChanges())
		b.MergeChanges(a.GetChanges())

		// same seq and op: the greater author is replayed last
		va, _ := a.Get("x")
		vb, _ := b.Get("x")
		require.JSONEq(t, `1`, string(va))
		require.JSONEq(t, `1`, string(vb))
	})

	t.Run("IgnoresMalformed", func(t *testing.T) {
		m := NewMap("alice")
		added := m.MergeChanges([]MapChange{
			{Op: OpSet, Author: "", Key: "k", Value: json.RawMessage(`1`), Seq: 1},
			{Op: OpSet, Author: "bob", Key: "", Value: json.RawMessage(`1`), Seq: 1},
			{Op: "PUT", Author: "bob", Key: "k", Value: json.RawMessage(`1`), Seq: 1},
			{Op: OpSet, Author: "bob", Key: "k", Value: json.RawMessage(`{broken`), Seq: 1},
			{Op: OpSet, Author: "bob", Key: "k", Value: json.RawMessage(`1`), Seq: 0},
			{Op: OpSet, Author: "bob", Key: "k", Value: json.RawMessage(` 7 `), Seq: 1},
		})
		require.Equal(t, 1, added)
		v, ok := m.Get("k")
		require.True(t, ok)
		require.Equal(t, `7`, string(v))
	})
}

func TestList(t *testing.T) {
	t.Run("PushInsertDelete", func(t *testing.T) {
		l := NewList("alice")
		_, err := l.Push("a")
		require.NoError(t, err)
		_, err = l.Push("c")
		require.NoError(t, err)
		_, err = l.Insert(1, "b")
		require.NoError(t, err)
		_, err = l.Insert(0, "start")
		require.NoError(t, err)
		require.Equal(t, rawValues(t, "start", "a", "b", "c"), l.Value())

		del, err := l.Delete(2)
		require.NoError(t, err)
		require.Equal(t, OpDel, del.Op)
		require.Equal(t, rawValues(t, "start", "a", "c"), l.Value())

		_, err = l.Delete(3)
		require.Error(t, err)
		_, err = l.Insert(5, "x")
		require.Error(t, err)
	})

	t.Run("ConcurrentInsertSameNeighbour", func(t *testing.T) {
		a := NewList("alice")
		_, err := a.Push("head")
		require.NoError(t, err)
		b := NewList("bob")
		b.MergeChanges(a.GetChanges())

		_, err = a.Push("from-alice")
		require.NoError(t, err)
		_, err = b.Push("from-bob")
		require.NoError(t, err)

		a.MergeChanges(b.GetChanges())
		b.MergeChanges(a.GetChanges())
		require.Equal(t, a.Value(), b.Value())
		require.Equal(t, 3, a.Len())
	})

	t.Run("NoTombstoneLeak", func(t *testing.T) {
		a := NewList("alice")
		for i := 0; i < 5; i++ {
			_, err := a.Push(i)
			require.NoError(t, err)
		}
		b := NewList("bob")
		b.MergeChanges(a.GetChanges())

		deleted := b.IDs()[2]
		_, err := b.Delete(2)
		require.NoError(t, err)
		// alice inserts next to the element bob removed
		_, err = a.Insert(3, "neighbour")
		require.NoError(t, err)

		a.MergeChanges(b.GetChanges())
		b.MergeChanges(a.GetChanges())
		for _, l := range []*List{a, b} {
			require.NotContains(t, l.IDs(), deleted)
			require.Equal(t, 5, l.Len())
		}
		require.Equal(t, a.Value(), b.Value())
	})

	t.Run("IDs", func(t *testing.T) {
		author, seq, err := ParseListID(FormatListID("abc", 12))
		require.NoError(t, err)
		require.Equal(t, "abc", author)
		require.Equal(t, uint64(12), seq)

		for _, id := range []string{"", "abc", "abc-", "-1", "abc-0", "abc-x"} {
			_, _, err := ParseListID(id)
			require.Error(t, err, id)
		}
	})
}

func TestCounter(t *testing.T) {
	alice := NewCounter("alice")
	alice.Add(5)
	alice.Add(3)
	require.Equal(t, int64(8), alice.Value())

	bob := NewCounter("bob")
	bob.MergeChanges(alice.GetChanges())
	require.Equal(t, int64(8), bob.Value())

	change := bob.Sub(2)
	require.Equal(t, uint64(1), change.Seq)
	bob.Add(5)
	require.Equal(t, int64(11), bob.Value())

	alice.MergeChanges(bob.GetChanges())
	alice.MergeChanges(bob.GetChanges())
	require.Equal(t, int64(11), alice.Value())
	require.Equal(t, 4, alice.Size())

	added := alice.MergeChanges([]CounterChange{{Op: OpAdd, Author: "", Value: 1, Seq: 1}, {Op: "MUL", Author: "x", Value: 2, Seq: 1}})
	require.Zero(t, added)
}
