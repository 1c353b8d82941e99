package identity

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Account blob layout:
//
//	magic "PKV-ACCT" | version (1) | time (4) | memory (4) | threads (1) | salt (16) | nonce (12) | ciphertext
//
// The key derivation parameters are stored in the blob so accounts stay readable
// when the defaults change.
const (
	vaultMagic   = "PKV-ACCT"
	vaultVersion = 1
	saltSize     = 16
	keyLen       = chacha20poly1305.KeySize
	headerLen    = len(vaultMagic) + 1 + 4 + 4 + 1 + saltSize + chacha20poly1305.NonceSize
)

// VaultParams are the argon2id parameters used to derive the account encryption key.
type VaultParams struct {
	Time      uint32 // iterations
	MemoryKiB uint32 // memory in KiB
	Threads   uint8
}

// Upper bounds of the parameters read from an account blob. Blobs are public,
// so the bounds cap the cost of opening a planted one.
const (
	maxVaultTime      = 16
	maxVaultMemoryKiB = 1 << 20
	maxVaultThreads   = 64
)

// validate checks that the parameters are within the accepted bounds.
func (p VaultParams) validate() error {
	if p.Time == 0 || p.Time > maxVaultTime || p.MemoryKiB == 0 || p.MemoryKiB > maxVaultMemoryKiB || p.Threads == 0 || p.Threads > maxVaultThreads {
		return fmt.Errorf("%w: key derivation parameters out of range (time=%d, memory=%dKiB, threads=%d)", ErrInvalidAccount, p.Time, p.MemoryKiB, p.Threads)
	}
	return nil
}

// DefaultVaultParams returns the parameters used for new accounts.
func DefaultVaultParams() VaultParams {
	return VaultParams{Time: 1, MemoryKiB: 64 * 1024, Threads: 4}
}

// sealVault encrypts secret with a key derived from password.
func sealVault(secret []byte, password string, params VaultParams) ([]byte, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	aead, err := chacha20poly1305.New(argon2.IDKey([]byte(password), salt, params.Time, params.MemoryKiB, params.Threads, keyLen))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(vaultMagic)
	buf.WriteByte(vaultVersion)
	buf.Write(binary.BigEndian.AppendUint32(nil, params.Time))
	buf.Write(binary.BigEndian.AppendUint32(nil, params.MemoryKiB))
	buf.WriteByte(params.Threads)
	buf.Write(salt)
	buf.Write(nonce)
	header := buf.Bytes()

	// the header is authenticated as additional data
	out := make([]byte, len(header), len(header)+len(secret)+aead.Overhead())
	copy(out, header)
	return aead.Seal(out, nonce, secret, header), nil
}

// openVault decrypts a blob created by sealVault.
func openVault(blob []byte, password string) ([]byte, error) {
	if len(blob) < headerLen+chacha20poly1305.Overhead || string(blob[:len(vaultMagic)]) != vaultMagic {
		return nil, ErrInvalidAccount
	}
	p := len(vaultMagic)
	if blob[p] != vaultVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidAccount, blob[p])
	}
	p++
	params := VaultParams{
		Time:      binary.BigEndian.Uint32(blob[p : p+4]),
		MemoryKiB: binary.BigEndian.Uint32(blob[p+4 : p+8]),
		Threads:   blob[p+8],
	}
	p += 9
	salt := blob[p : p+saltSize]
	p += saltSize
	nonce := blob[p : p+chacha20poly1305.NonceSize]
	header := blob[:headerLen]

	if err := params.validate(); err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(argon2.IDKey([]byte(password), salt, params.Time, params.MemoryKiB, params.Threads, keyLen))
	if err != nil {
		return nil, err
	}
	secret, err := aead.Open(nil, nonce, blob[headerLen:], header)
	if err != nil {
		return nil, ErrInvalidPassword
	}
	return secret, nil
}
