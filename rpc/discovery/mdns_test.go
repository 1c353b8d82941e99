package discovery

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccept(t *testing.T) {
	m := &MDNS{address: "self", topic: "pkv"}

	require.True(t, m.accept(TXT("other", "pkv")))
	require.False(t, m.accept(TXT("self", "pkv")), "own announcement")
	require.False(t, m.accept(TXT("other", "staging")), "other topic")
	require.False(t, m.accept(nil))
}

func TestInvalidBindAddr(t *testing.T) {
	_, err := NewMDNS("self", "pkv", "no-port", func(string) {})
	require.Error(t, err)
	_, err = NewMDNS("self", "pkv", "127.0.0.1:http", func(string) {})
	require.Error(t, err)
}
