package entry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ValentinKolb/pKV/lib/crdt"
	"github.com/stretchr/testify/require"
)

type staticSigner struct{ addr string }

func (s staticSigner) Address() string                  { return s.addr }
func (s staticSigner) Sign(hash string) (string, error) { return "sig:" + hash, nil }

func TestNamespaces(t *testing.T) {
	owner, ok := NamespaceOwner(":abc.profile.name")
	require.True(t, ok)
	require.Equal(t, "abc", owner)

	_, ok = NamespaceOwner("plain.key")
	require.False(t, ok)
	_, ok = NamespaceOwner(":no-separator")
	require.False(t, ok)

	require.Equal(t, ":abc.profile", NamespacedKey("abc", "profile"))
	require.True(t, IsFrozen("==alice"))
	require.False(t, IsFrozen("=alice"))
}

func TestComputeHash(t *testing.T) {
	h1, err := ComputeHash([]byte(`{"a": 1, "b": [1, 2]}`), "author", 1628918110150, 679)
	require.NoError(t, err)
	h2, err := ComputeHash([]byte(`{"a":1,"b":[1,2]}`), "author", 1628918110150, 679)
	require.NoError(t, err)
	require.Equal(t, h1, h2, "hash must only depend on the canonical value")
	require.Len(t, h1, 64)

	h3, err := ComputeHash([]byte(`{"a":1,"b":[1,2]}`), "author", 1628918110150, 680)
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)

	_, err = ComputeHash([]byte(`{broken`), "author", 1, 1)
	require.ErrorIs(t, err, ErrInvalidValue)
}

func TestProofOfWork(t *testing.T) {
	require.True(t, HasLeadingZeros("0006fab5", 3))
	require.False(t, HasLeadingZeros("0016fab5", 3))
	require.True(t, HasLeadingZeros("ffff", 0))
	require.False(t, HasLeadingZeros("00", 3))

	nonce, hash, err := SolveProofOfWork(context.Background(), []byte(`"value"`), "author", 1628918110150, 3)
	require.NoError(t, err)
	require.True(t, HasLeadingZeros(hash, 3))

	recomputed, err := ComputeHash([]byte(`"value"`), "author", 1628918110150, nonce)
	require.NoError(t, err)
	require.Equal(t, hash, recomputed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = SolveProofOfWork(ctx, []byte(`"value"`), "author", 1, 64)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSeal(t *testing.T) {
	now := time.UnixMilli(1628918110150)
	e, err := Seal(context.Background(), staticSigner{addr: "alice"}, "k", []byte(` { "x" : 1 } `), crdt.TypeNone, 2, now)
	require.NoError(t, err)

	require.Equal(t, "alice", e.Author)
	require.Equal(t, int64(1628918110150), e.Timestamp)
	require.Equal(t, `{"x":1}`, string(e.Value))
	require.True(t, HasLeadingZeros(e.Hash, 2))
	require.Equal(t, "sig:"+e.Hash, e.Signature)

	data, err := json.Marshal(e)
	require.NoError(t, err)
	var decoded Entry
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, *e, decoded)
}

func TestRecord(t *testing.T) {
	ctr := crdt.NewCounter("alice")
	ctr.Add(5)
	signed, err := ctr.MarshalChanges()
	require.NoError(t, err)
	ctr.Add(3)
	merged, err := ctr.MarshalChanges()
	require.NoError(t, err)

	r := &Record{Entry: Entry{Key: "c", Value: signed, CrdtType: crdt.TypeCounter}}
	require.Equal(t, json.RawMessage(signed), r.Changes())

	r.Merged = merged
	raw, err := r.Encode()
	require.NoError(t, err)
	decoded, err := DecodeRecord(raw)
	require.NoError(t, err)

	c, err := decoded.Materialize("bob")
	require.NoError(t, err)
	require.Equal(t, int64(8), c.(*crdt.Counter).Value())

	_, err = DecodeRecord([]byte(`nope`))
	require.Error(t, err)
}

func TestNewerThan(t *testing.T) {
	older := &Entry{Timestamp: 100}
	newer := &Entry{Timestamp: 150}
	require.True(t, newer.NewerThan(older))
	require.False(t, older.NewerThan(newer))
	require.False(t, older.NewerThan(older))
	require.True(t, older.NewerThan(nil))
}

func TestMergeCrdt(t *testing.T) {
	seal := func(author string, c crdt.CRDT, ts int64) *Entry {
		value, err := c.MarshalChanges()
		require.NoError(t, err)
		e, err := Seal(context.Background(), staticSigner{addr: author}, "c", value, c.Type(), 0, time.UnixMilli(ts))
		require.NoError(t, err)
		return e
	}
	valueOf := func(r *Record) int64 {
		c, err := r.Materialize("")
		require.NoError(t, err)
		return c.(*crdt.Counter).Value()
	}

	alice := crdt.NewCounter("alice")
	alice.Add(8)
	first := seal("alice", alice, 100)
	bob := crdt.NewCounter("bob")
	bob.Add(5)
	second := seal("bob", bob, 200)

	rec, err := NewCrdtRecord(first)
	require.NoError(t, err)
	require.Equal(t, int64(8), valueOf(rec))

	changed, err := rec.MergeCrdt(second)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, int64(13), valueOf(rec))
	require.Equal(t, "bob", rec.Entry.Author)
	require.Len(t, rec.Signed(), 2)

	// older entry with unknown changes replaces the source it contains
	alice.Add(2)
	third := seal("alice", alice, 150)
	changed, err = rec.MergeCrdt(third)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, int64(15), valueOf(rec))
	require.Equal(t, "bob", rec.Entry.Author)
	signed := rec.Signed()
	require.Len(t, signed, 2)
	require.Equal(t, second.Hash, signed[0].Hash)
	require.Equal(t, third.Hash, signed[1].Hash)

	changed, err = rec.MergeCrdt(first)
	require.NoError(t, err)
	require.False(t, changed)

	// the signed entries alone rebuild the merged value
	rebuilt, err := NewCrdtRecord(signed[0])
	require.NoError(t, err)
	for _, e := range signed[1:] {
		_, err := rebuilt.MergeCrdt(e)
		require.NoError(t, err)
	}
	require.Equal(t, int64(15), valueOf(rebuilt))

	m := crdt.NewMap("alice")
	_, err = m.Set("a", 1)
	require.NoError(t, err)
	_, err = rec.MergeCrdt(seal("alice", m, 300))
	require.Error(t, err)
}
