package identity

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/minio/sha256-simd"
	"github.com/mr-tron/base58"
)

// NewSecp256k1Suite creates a suite using compact secp256k1 signatures.
//
// Addresses are the base58 encoded compressed public key. Signatures are base58
// encoded compact signatures over SHA-256(hash) from which the public key can be
// recovered, so verification only needs the address.
// Account blobs are sealed with the given vault parameters.
func NewSecp256k1Suite(params VaultParams) ISuite {
	return &secp256k1Suite{params: params}
}

// secp256k1Suite implements the ISuite interface
type secp256k1Suite struct {
	params VaultParams
}

// secp256k1Identity implements the IIdentity interface
type secp256k1Identity struct {
	key     *secp256k1.PrivateKey
	address string
	params  VaultParams
}

// --------------------------------------------------------------------------
// Interface Methods (docu see identity.ISuite)
// --------------------------------------------------------------------------

func (s *secp256k1Suite) Generate() (IIdentity, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return s.newIdentity(key), nil
}

func (s *secp256k1Suite) FromPrivateKey(raw []byte) (IIdentity, error) {
	if len(raw) != secp256k1.PrivKeyBytesLen {
		return nil, ErrInvalidKey
	}
	key := secp256k1.PrivKeyFromBytes(raw)
	if key.Key.IsZero() {
		return nil, ErrInvalidKey
	}
	return s.newIdentity(key), nil
}

func (s *secp256k1Suite) DecryptAccount(blob []byte, password string) (IIdentity, error) {
	raw, err := openVault(blob, password)
	if err != nil {
		return nil, err
	}
	return s.FromPrivateKey(raw)
}

func (s *secp256k1Suite) Verify(hash, signature, address string) bool {
	sig, err := base58.Decode(signature)
	if err != nil || len(sig) != 65 {
		return false
	}
	digest := sha256.Sum256([]byte(hash))
	pub, _, err := ecdsa.RecoverCompact(sig, digest[:])
	if err != nil {
		return false
	}
	return encodeAddress(pub) == address
}

// --------------------------------------------------------------------------
// Interface Methods (docu see identity.IIdentity)
// --------------------------------------------------------------------------

func (i *secp256k1Identity) Address() string {
	return i.address
}

func (i *secp256k1Identity) Sign(hash string) (string, error) {
	digest := sha256.Sum256([]byte(hash))
	sig := ecdsa.SignCompact(i.key, digest[:], true)
	return base58.Encode(sig), nil
}

func (i *secp256k1Identity) EncryptAccount(password string) ([]byte, error) {
	return sealVault(i.key.Serialize(), password, i.params)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (s *secp256k1Suite) newIdentity(key *secp256k1.PrivateKey) *secp256k1Identity {
	return &secp256k1Identity{
		key:     key,
		address: encodeAddress(key.PubKey()),
		params:  s.params,
	}
}

func encodeAddress(pub *secp256k1.PublicKey) string {
	return base58.Encode(pub.SerializeCompressed())
}
