package entry

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/pKV/lib/crdt"
	"github.com/minio/sha256-simd"
)

// --------------------------------------------------------------------------
// Key Namespaces
// --------------------------------------------------------------------------

const (
	// NamespacePrefix starts a key owned by an address: ":" + address + "." + rest
	NamespacePrefix = ":"
	// NamespaceSeparator ends the address of a namespaced key
	NamespaceSeparator = "."
	// FrozenPrefix starts a write-once key
	FrozenPrefix = "=="
)

// NamespaceOwner returns the address embedded in a namespaced key.
// The boolean is false for keys that are not namespaced.
func NamespaceOwner(key string) (string, bool) {
	if !strings.HasPrefix(key, NamespacePrefix) {
		return "", false
	}
	rest := key[len(NamespacePrefix):]
	i := strings.Index(rest, NamespaceSeparator)
	if i < 0 {
		return "", false
	}
	return rest[:i], true
}

// NamespacedKey builds the key rest inside the namespace of address.
func NamespacedKey(address, rest string) string {
	return NamespacePrefix + address + NamespaceSeparator + rest
}

// IsFrozen reports whether key is a write-once key.
func IsFrozen(key string) bool {
	return strings.HasPrefix(key, FrozenPrefix)
}

// --------------------------------------------------------------------------
// Entry
// --------------------------------------------------------------------------

// Entry is one signed, hashed and timestamped unit of replicated state.
//
// Hash is H(canonical(Value) + Author + Timestamp + Nonce) and Signature signs Hash
// with the key belonging to Author. For CRDT entries Value holds the change set.
type Entry struct {
	Key       string          `json:"key"`
	Author    string          `json:"author"`
	Nonce     uint64          `json:"nonce"`
	Timestamp int64           `json:"timestamp"` // unix milliseconds
	Hash      string          `json:"hash"`
	Signature string          `json:"signature"`
	Value     json.RawMessage `json:"value"`
	CrdtType  crdt.Type       `json:"crdtType"`
}

// Signer signs entry hashes on behalf of an address.
type Signer interface {
	// Address returns the address entries signed by this signer are attributed to
	Address() string
	// Sign returns the encoded signature over hash
	Sign(hash string) (string, error)
}

// ErrInvalidValue is returned when an entry value is not valid JSON.
var ErrInvalidValue = errors.New("entry value is not valid json")

// Canonical returns the compact JSON encoding of value.
func Canonical(value []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return buf.Bytes(), nil
}

// ComputeHash returns the hex encoded SHA-256 over the canonical value, the author,
// the timestamp and the nonce.
func ComputeHash(value []byte, author string, timestamp int64, nonce uint64) (string, error) {
	canonical, err := Canonical(value)
	if err != nil {
		return "", err
	}
	return hashCanonical(canonical, author, timestamp, nonce), nil
}

func hashCanonical(canonical []byte, author string, timestamp int64, nonce uint64) string {
	h := sha256.New()
	h.Write(canonical)
	h.Write([]byte(author))
	h.Write([]byte(strconv.FormatInt(timestamp, 10)))
	h.Write([]byte(strconv.FormatUint(nonce, 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// HasLeadingZeros reports whether hash starts with at least difficulty '0' characters.
func HasLeadingZeros(hash string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if len(hash) < difficulty {
		return false
	}
	for i := 0; i < difficulty; i++ {
		if hash[i] != '0' {
			return false
		}
	}
	return true
}

// SolveProofOfWork searches the first nonce whose hash has difficulty leading zeros.
// With difficulty 0 the nonce is always 0.
func SolveProofOfWork(ctx context.Context, value []byte, author string, timestamp int64, difficulty int) (uint64, string, error) {
	canonical, err := Canonical(value)
	if err != nil {
		return 0, "", err
	}
	for nonce := uint64(0); ; nonce++ {
		if nonce&0x3ff == 0 {
			if err := ctx.Err(); err != nil {
				return 0, "", err
			}
		}
		hash := hashCanonical(canonical, author, timestamp, nonce)
		if HasLeadingZeros(hash, difficulty) {
			return nonce, hash, nil
		}
	}
}

// Seal builds a complete entry for key: it canonicalizes value, solves the proof of work
// for the given difficulty and signs the resulting hash.
func Seal(ctx context.Context, signer Signer, key string, value []byte, crdtType crdt.Type, difficulty int, now time.Time) (*Entry, error) {
	canonical, err := Canonical(value)
	if err != nil {
		return nil, err
	}
	timestamp := now.UnixMilli()
	nonce, hash, err := SolveProofOfWork(ctx, canonical, signer.Address(), timestamp, difficulty)
	if err != nil {
		return nil, err
	}
	signature, err := signer.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign entry: %w", err)
	}
	return &Entry{
		Key:       key,
		Author:    signer.Address(),
		Nonce:     nonce,
		Timestamp: timestamp,
		Hash:      hash,
		Signature: signature,
		Value:     canonical,
		CrdtType:  crdtType,
	}, nil
}

// NewerThan reports whether e was written after other.
func (e *Entry) NewerThan(other *Entry) bool {
	return other == nil || e.Timestamp > other.Timestamp
}

// Clone returns a deep copy of e.
func (e *Entry) Clone() *Entry {
	c := *e
	c.Value = append(json.RawMessage(nil), e.Value...)
	return &c
}
