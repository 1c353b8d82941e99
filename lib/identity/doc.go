// Package identity provides the key material used to sign and verify entries and peer records.
//
// ISuite is the pluggable contract, the package ships a secp256k1 implementation:
// addresses are base58 encoded compressed public keys and signatures are
// recoverable compact signatures, so any node can verify a signature with
// nothing but the author address.
//
// Accounts are private keys sealed with a password (argon2id key derivation and
// ChaCha20-Poly1305). The sealed blob is safe to replicate publicly, which is how
// sign-up records are stored in the network.
package identity
