package peers

import (
	"testing"
	"time"

	"github.com/ValentinKolb/pKV/lib/identity"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T, topic string) (*Registry, identity.ISuite) {
	t.Helper()
	suite := identity.NewSecp256k1Suite(identity.DefaultVaultParams())
	node, err := suite.Generate()
	require.NoError(t, err)
	mock := clock.NewMock()
	mock.Set(time.UnixMilli(1628918110150))
	return NewRegistry(topic, node, suite, mock), suite
}

func TestSelfAndVerify(t *testing.T) {
	a, _ := newRegistry(t, "pkv")
	b, _ := newRegistry(t, "pkv")
	other, _ := newRegistry(t, "other")

	self, err := a.Self("127.0.0.1", 7070, true)
	require.NoError(t, err)
	require.Equal(t, int64(1628918110150), self.Timestamp)
	require.Equal(t, "pkv", self.Topic)
	require.True(t, self.Server)

	require.NoError(t, b.Verify(self))
	require.ErrorIs(t, other.Verify(self), ErrTopicMismatch)

	tampered := self
	tampered.Port = 7071
	require.ErrorIs(t, b.Verify(tampered), ErrInvalidPeerSignature)

	forged := self
	bSelf, err := b.Self("127.0.0.1", 7070, true)
	require.NoError(t, err)
	forged.Address = bSelf.Address
	require.ErrorIs(t, a.Verify(forged), ErrInvalidPeerSignature)

	unsigned := self
	unsigned.Signature = ""
	require.ErrorIs(t, b.Verify(unsigned), ErrInvalidPeer)
}

func TestKnownPeers(t *testing.T) {
	a, _ := newRegistry(t, "pkv")
	b, _ := newRegistry(t, "pkv")
	c, _ := newRegistry(t, "pkv")

	pb, err := b.Self("10.0.0.2", 7070, true)
	require.NoError(t, err)
	pc, err := c.Self("10.0.0.3", 7070, true)
	require.NoError(t, err)

	require.True(t, a.Add(pc))
	require.True(t, a.Add(pb))
	require.False(t, a.Add(pb), "already known")
	require.True(t, a.Known(pb.Address))
	require.Equal(t, 2, a.Len())

	list := a.List()
	require.Len(t, list, 2)
	require.Less(t, list[0].Address, list[1].Address)

	got, ok := a.Get(pc.Address)
	require.True(t, ok)
	require.Equal(t, pc, got)

	require.True(t, a.Remove(pb.Address))
	require.False(t, a.Remove(pb.Address))
	require.False(t, a.Known(pb.Address))
}

func TestRates(t *testing.T) {
	a, _ := newRegistry(t, "pkv")
	defer a.Close()

	a.Mark("peer-1", 3)
	a.Mark("peer-1", 2)
	a.Mark("peer-2", 1)

	rates := a.Rates()
	require.Equal(t, int64(5), rates["peer-1"].Count)
	require.Equal(t, int64(1), rates["peer-2"].Count)

	a.Forget("peer-1")
	_, ok := a.Rates()["peer-1"]
	require.False(t, ok)
}
