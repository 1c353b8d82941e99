package identity

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// testParams keeps key derivation cheap in tests
var testParams = VaultParams{Time: 1, MemoryKiB: 1024, Threads: 1}

func TestSignVerify(t *testing.T) {
	suite := NewSecp256k1Suite(testParams)
	alice, err := suite.Generate()
	require.NoError(t, err)
	bob, err := suite.Generate()
	require.NoError(t, err)
	require.NotEqual(t, alice.Address(), bob.Address())

	sig, err := alice.Sign("0006fab5")
	require.NoError(t, err)

	require.True(t, suite.Verify("0006fab5", sig, alice.Address()))
	require.False(t, suite.Verify("0006fab6", sig, alice.Address()), "other hash")
	require.False(t, suite.Verify("0006fab5", sig, bob.Address()), "other address")
	require.False(t, suite.Verify("0006fab5", "not-base58-0OIl", alice.Address()))
	require.False(t, suite.Verify("0006fab5", "", alice.Address()))

	flipped := []byte(sig)
	if flipped[5] == 'A' {
		flipped[5] = 'B'
	} else {
		flipped[5] = 'A'
	}
	require.False(t, suite.Verify("0006fab5", string(flipped), alice.Address()))
}

func TestFromPrivateKey(t *testing.T) {
	suite := NewSecp256k1Suite(testParams)
	key := bytes.Repeat([]byte{7}, 32)

	a, err := suite.FromPrivateKey(key)
	require.NoError(t, err)
	b, err := suite.FromPrivateKey(key)
	require.NoError(t, err)
	require.Equal(t, a.Address(), b.Address(), "address is derived deterministically")

	_, err = suite.FromPrivateKey([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidKey)
	_, err = suite.FromPrivateKey(make([]byte, 32))
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestAccountVault(t *testing.T) {
	suite := NewSecp256k1Suite(testParams)
	id, err := suite.Generate()
	require.NoError(t, err)

	blob, err := id.EncryptAccount("secret")
	require.NoError(t, err)

	restored, err := suite.DecryptAccount(blob, "secret")
	require.NoError(t, err)
	require.Equal(t, id.Address(), restored.Address())

	sig, err := restored.Sign("abc")
	require.NoError(t, err)
	require.True(t, suite.Verify("abc", sig, id.Address()))

	_, err = suite.DecryptAccount(blob, "wrong")
	require.ErrorIs(t, err, ErrInvalidPassword)

	_, err = suite.DecryptAccount([]byte("garbage"), "secret")
	require.ErrorIs(t, err, ErrInvalidAccount)

	tampered := append([]byte(nil), blob...)
	tampered[len(tampered)-1] ^= 0xff
	_, err = suite.DecryptAccount(tampered, "secret")
	require.ErrorIs(t, err, ErrInvalidPassword)
}

func TestVaultParamsAreBounded(t *testing.T) {
	blob, err := sealVault([]byte("key"), "secret", testParams)
	require.NoError(t, err)

	// time (4) | memory (4) | threads (1) follow the magic and the version
	p := len(vaultMagic) + 1
	tests := []struct {
		name  string
		patch func(b []byte)
	}{
		{"memory", func(b []byte) { binary.BigEndian.PutUint32(b[p+4:p+8], 0xFFFFFFFF) }},
		{"time", func(b []byte) { binary.BigEndian.PutUint32(b[p:p+4], 1<<20) }},
		{"threads", func(b []byte) { b[p+8] = 255 }},
		{"zero memory", func(b []byte) { binary.BigEndian.PutUint32(b[p+4:p+8], 0) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planted := append([]byte(nil), blob...)
			tt.patch(planted)
			_, err := openVault(planted, "secret")
			require.ErrorIs(t, err, ErrInvalidAccount)
		})
	}

	_, err = sealVault([]byte("key"), "secret", VaultParams{Time: 1, MemoryKiB: maxVaultMemoryKiB + 1, Threads: 1})
	require.ErrorIs(t, err, ErrInvalidAccount)
}
