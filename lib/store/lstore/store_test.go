package lstore

import (
	"errors"
	"testing"

	"github.com/ValentinKolb/pKV/lib/db"
	"github.com/ValentinKolb/pKV/lib/db/engines/btree"
	"github.com/ValentinKolb/pKV/lib/store"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) store.IStore {
	s, err := NewLocalStore(func() (db.KVDB, error) {
		return btree.NewBTreeDB(), nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLocalStore(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.Get("missing")
	require.NoError(t, err)
	require.False(t, ok, "not found is not an error")

	require.NoError(t, s.Put("users/alice", []byte("a")))
	require.NoError(t, s.Put("users/bob", []byte("b")))
	require.NoError(t, s.Put("posts/1", []byte("p")))

	value, ok, err := s.Get("users/alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("a"), value)

	has, err := s.Has("posts/1")
	require.NoError(t, err)
	require.True(t, has)

	keys, err := s.Query("users/")
	require.NoError(t, err)
	require.Equal(t, []string{"users/alice", "users/bob"}, keys)

	info, err := s.GetDBInfo()
	require.NoError(t, err)
	require.Equal(t, db.ImplBTree, info.DbType)
	require.Equal(t, 3, info.Keys)
}

func TestLocalStoreErrors(t *testing.T) {
	s := newTestStore(t)

	var storeErr *store.Error
	err := s.Put("", []byte("x"))
	require.True(t, errors.As(err, &storeErr))
	require.Equal(t, store.RetCInvalidOperation, storeErr.Code)

	_, err = NewLocalStore(func() (db.KVDB, error) {
		return nil, errors.New("disk on fire")
	})
	require.True(t, errors.As(err, &storeErr))
	require.Equal(t, store.RetCInternalError, storeErr.Code)

	require.NoError(t, s.Close())
	_, _, err = s.Get("k")
	require.True(t, errors.As(err, &storeErr))
	require.Equal(t, store.RetCInternalError, storeErr.Code)
}
