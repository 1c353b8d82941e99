package node_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/pKV/lib/crdt"
	"github.com/ValentinKolb/pKV/lib/db"
	"github.com/ValentinKolb/pKV/lib/db/engines/btree"
	"github.com/ValentinKolb/pKV/lib/entry"
	"github.com/ValentinKolb/pKV/lib/identity"
	"github.com/ValentinKolb/pKV/lib/store/lstore"
	"github.com/ValentinKolb/pKV/rpc/common"
	"github.com/ValentinKolb/pKV/rpc/node"
	"github.com/ValentinKolb/pKV/rpc/transport"
	"github.com/ValentinKolb/pKV/rpc/transport/memory"
	"github.com/stretchr/testify/require"
)

var suite = identity.NewSecp256k1Suite(identity.VaultParams{Time: 1, MemoryKiB: 1024, Threads: 1})

const (
	waitFor = 5 * time.Second
	tick    = 20 * time.Millisecond
)

// startNode starts a node on the in-memory hub. Servers listen on their name.
func startNode(t *testing.T, hub *memory.Hub, name string, mode common.NodeMode, bootstrap ...string) *node.Node {
	t.Helper()
	key, err := suite.Generate()
	require.NoError(t, err)

	config := common.DefaultNodeConfig()
	config.Mode = mode
	config.Endpoint = name
	config.Bootstrap = bootstrap
	config.AutoDial = false
	config.RequestTimeout = 500 * time.Millisecond
	config.QueryQuietPeriod = 100 * time.Millisecond
	config.FunctionTimeout = 2 * time.Second
	config.DebounceWindow = 0

	st, err := lstore.NewLocalStore(func() (db.KVDB, error) { return btree.NewBTreeDB(), nil })
	require.NoError(t, err)
	network := memory.NewNetwork(hub, transport.Config{Address: key.Address(), Server: mode == common.ModeServer})

	n, err := node.New(config, key, network, st, suite)
	require.NoError(t, err)
	require.NoError(t, n.Start(context.Background()))
	t.Cleanup(func() {
		_ = n.Close()
		_ = st.Close()
	})
	require.Eventually(t, func() bool { return len(n.Connections()) >= len(bootstrap) }, waitFor, tick)
	return n
}

// network is the topology used by the tests:
//
//	alice -> A <-> B <- bob
type network struct {
	A, B       *node.Node
	alice, bob *node.Node
}

func startNetwork(t *testing.T) *network {
	t.Helper()
	hub := memory.NewHub()
	a := startNode(t, hub, "A", common.ModeServer)
	b := startNode(t, hub, "B", common.ModeServer, "A")
	return &network{
		A:     a,
		B:     b,
		alice: startNode(t, hub, "alice", common.ModeClient, "A"),
		bob:   startNode(t, hub, "bob", common.ModeClient, "B"),
	}
}

func TestE2EPutAndGetAcrossServers(t *testing.T) {
	net := startNetwork(t)
	ctx := context.Background()

	require.NoError(t, net.alice.SignUp(ctx, "alice", "secret"))
	require.NoError(t, net.alice.PutData(ctx, "greeting", "hello"))

	require.Eventually(t, func() bool {
		value, err := net.bob.GetData(ctx, "greeting")
		return err == nil && string(value) == `"hello"`
	}, waitFor, tick)

	rec, err := net.bob.GetRecord(ctx, "greeting")
	require.NoError(t, err)
	require.Equal(t, net.alice.Address(), rec.Entry.Author)
}

func TestE2EAccounts(t *testing.T) {
	net := startNetwork(t)
	ctx := context.Background()

	require.NoError(t, net.alice.SignUp(ctx, "alice", "secret"))
	address := net.alice.Address()
	require.NotEmpty(t, address)
	require.Equal(t, "alice", net.alice.Username())

	require.ErrorIs(t, net.alice.SignUp(ctx, "alice", "other"), node.ErrUserExists)
	require.ErrorIs(t, net.alice.SignUp(ctx, "a.b", "x"), node.ErrKeyDots)

	// the account is readable on the other side of the network
	require.Eventually(t, func() bool {
		return net.bob.SignIn(ctx, "alice", "secret") == nil
	}, waitFor, tick)
	require.Equal(t, address, net.bob.Address())

	require.ErrorIs(t, net.bob.SignIn(ctx, "alice", "wrong"), node.ErrInvalidPassword)
	require.ErrorIs(t, net.bob.SignIn(ctx, "nobody", "secret"), node.ErrUserNotFound)

	net.bob.SignOut()
	require.Empty(t, net.bob.Address())
	require.ErrorIs(t, net.bob.PutData(ctx, "k", 1), node.ErrNotLoggedIn)
}

func TestE2EUserData(t *testing.T) {
	net := startNetwork(t)
	ctx := context.Background()

	require.NoError(t, net.alice.SignUp(ctx, "alice", "secret"))
	require.NoError(t, net.alice.PutUserData(ctx, "profile", map[string]string{"name": "Alice"}))

	value, err := net.alice.GetUserData(ctx, "", "profile")
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"Alice"}`, string(value))

	// nobody else can write into the namespace of alice
	require.NoError(t, net.bob.SignUp(ctx, "bob", "secret"))
	key := entry.NamespacedKey(net.alice.Address(), "profile")
	err = net.bob.PutData(ctx, key, "mallory")
	var rejected *node.RejectedError
	require.True(t, errors.As(err, &rejected))

	require.Eventually(t, func() bool {
		value, err := net.bob.GetUserData(ctx, net.alice.Address(), "profile")
		return err == nil && string(value) == `{"name":"Alice"}`
	}, waitFor, tick)
}

func TestE2ECounter(t *testing.T) {
	net := startNetwork(t)
	ctx := context.Background()

	require.NoError(t, net.alice.SignUp(ctx, "alice", "secret"))
	require.NoError(t, net.bob.SignUp(ctx, "bob", "secret"))

	value, err := net.alice.IncrementCounter(ctx, "visits", 8)
	require.NoError(t, err)
	require.Equal(t, int64(8), value)

	require.Eventually(t, func() bool {
		c, err := net.bob.GetCrdt(ctx, "visits")
		return err == nil && c.(*crdt.Counter).Value() == 8
	}, waitFor, tick)

	value, err = net.bob.IncrementCounter(ctx, "visits", 5)
	require.NoError(t, err)
	require.Equal(t, int64(13), value)

	require.Eventually(t, func() bool {
		c, err := net.alice.GetCrdt(ctx, "visits")
		return err == nil && c.(*crdt.Counter).Value() == 13
	}, waitFor, tick)

	_, err = net.alice.GetData(ctx, "visits")
	require.ErrorIs(t, err, node.ErrTypeMismatch)
}

func TestE2ESubscription(t *testing.T) {
	net := startNetwork(t)
	ctx := context.Background()
	require.NoError(t, net.alice.SignUp(ctx, "alice", "secret"))

	var mu sync.Mutex
	var seen []string
	handle := net.bob.SubscribeData("news", func(key string, rec *entry.Record) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(rec.Entry.Value))
	})
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, net.alice.PutData(ctx, "news", "v1"))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1 && seen[0] == `"v1"`
	}, waitFor, tick)

	require.True(t, net.bob.Unsubscribe(handle))
	require.False(t, net.bob.Unsubscribe(handle))
}

func TestE2EQuery(t *testing.T) {
	net := startNetwork(t)
	ctx := context.Background()
	require.NoError(t, net.alice.SignUp(ctx, "alice", "secret"))
	require.NoError(t, net.bob.SignUp(ctx, "bob", "secret"))

	require.NoError(t, net.alice.PutData(ctx, "user-1", 1))
	require.NoError(t, net.alice.PutData(ctx, "user-2", 2))
	require.NoError(t, net.bob.PutData(ctx, "user-3", 3))
	require.NoError(t, net.bob.PutData(ctx, "other", 4))

	require.Eventually(t, func() bool {
		keys, err := net.bob.QueryKeys(ctx, "user-")
		return err == nil && len(keys) == 3
	}, waitFor, tick)

	keys, err := net.alice.QueryKeys(ctx, "user-")
	require.NoError(t, err)
	require.Equal(t, []string{"user-1", "user-2", "user-3"}, keys)
}

func TestE2EFunctions(t *testing.T) {
	net := startNetwork(t)
	ctx := context.Background()

	net.A.RegisterFunction("sum", func(ctx context.Context, args json.RawMessage) (any, error) {
		var xs []int
		if err := json.Unmarshal(args, &xs); err != nil {
			return nil, err
		}
		total := 0
		for _, x := range xs {
			total += x
		}
		return total, nil
	})
	net.A.RegisterFunction("fail", func(ctx context.Context, args json.RawMessage) (any, error) {
		return nil, errors.New("boom")
	})

	result, err := net.alice.DoFunction(ctx, "sum", []int{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, "6", string(result))

	_, err = net.alice.DoFunction(ctx, "fail", nil)
	require.ErrorIs(t, err, node.ErrFunctionFailed)
	require.Contains(t, err.Error(), "boom")

	// function calls are not relayed, bob only reaches B
	_, err = net.bob.DoFunction(ctx, "sum", []int{1})
	require.ErrorIs(t, err, node.ErrFunctionNotFound)

	// B reaches A directly
	result, err = net.B.DoFunction(ctx, "sum", []int{4, 5})
	require.NoError(t, err)
	require.Equal(t, "9", string(result))

	// local functions run without the network
	result, err = net.A.DoFunction(ctx, "sum", []int{1, 1})
	require.NoError(t, err)
	require.Equal(t, "2", string(result))
}

func TestE2EPeerEvents(t *testing.T) {
	hub := memory.NewHub()
	a := startNode(t, hub, "A", common.ModeServer)

	events := make(chan node.Event, 4)
	a.On(node.EventPeerConnected, func(e node.Event) { events <- e })
	a.On(node.EventPeerDisconnected, func(e node.Event) { events <- e })

	b := startNode(t, hub, "B", common.ModeServer, "A")
	select {
	case e := <-events:
		require.Equal(t, b.NodeAddress(), e.Peer)
	case <-time.After(waitFor):
		t.Fatal("expected connected event")
	}
	require.Eventually(t, func() bool { return len(a.Peers()) == 1 }, waitFor, tick)
	require.Equal(t, b.NodeAddress(), a.Peers()[0].Address)

	require.NoError(t, b.Close())
	select {
	case e := <-events:
		require.Equal(t, b.NodeAddress(), e.Peer)
	case <-time.After(waitFor):
		t.Fatal("expected disconnected event")
	}
}

func TestE2EServerPersistsEverything(t *testing.T) {
	net := startNetwork(t)
	ctx := context.Background()
	require.NoError(t, net.alice.SignUp(ctx, "alice", "secret"))
	require.NoError(t, net.alice.PutData(ctx, "k", "v"))

	// both servers stored the account and the entry without being asked for them
	for _, server := range []*node.Node{net.A, net.B} {
		require.Eventually(t, func() bool {
			var buf bytes.Buffer
			server.Metrics().WritePrometheus(&buf)
			return strings.Contains(buf.String(), "pkv_entries_persisted_total 2")
		}, waitFor, tick)
	}
}
