package identity

import "errors"

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IVerifier checks signatures produced by an IIdentity.
type IVerifier interface {
	// Verify reports whether signature is a valid signature over hash created by
	// the key belonging to address.
	Verify(hash, signature, address string) bool
}

// IIdentity is a key pair able to sign entry hashes.
// It satisfies entry.Signer.
type IIdentity interface {
	// Address returns the address derived deterministically from the public key.
	Address() string
	// Sign returns the encoded signature over hash.
	Sign(hash string) (string, error)
	// EncryptAccount seals the private key with password so it can be stored publicly.
	EncryptAccount(password string) ([]byte, error)
}

// ISuite bundles key generation, account recovery and signature verification
// for one signature scheme.
type ISuite interface {
	IVerifier
	// Generate creates a new random identity.
	Generate() (IIdentity, error)
	// DecryptAccount restores an identity from a blob created by IIdentity.EncryptAccount.
	DecryptAccount(blob []byte, password string) (IIdentity, error)
	// FromPrivateKey restores an identity from its raw private key.
	FromPrivateKey(key []byte) (IIdentity, error)
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrInvalidPassword is returned if an account blob cannot be opened with the given password
	ErrInvalidPassword = errors.New("invalid password")
	// ErrInvalidAccount is returned if an account blob is malformed
	ErrInvalidAccount = errors.New("invalid account data")
	// ErrInvalidKey is returned for malformed private keys
	ErrInvalidKey = errors.New("invalid private key")
)
