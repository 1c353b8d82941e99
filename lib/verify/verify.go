package verify

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/pKV/lib/entry"
	"github.com/ValentinKolb/pKV/lib/identity"
	"github.com/ValentinKolb/pKV/lib/store"
	"github.com/benbjohnson/clock"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("verify")

// DefaultClockSkew is how far an entry timestamp may be ahead of the local clock.
const DefaultClockSkew = 10 * time.Second

// --------------------------------------------------------------------------
// Result
// --------------------------------------------------------------------------

// Result is the outcome of verifying an entry. Everything except Verified causes
// the entry to be dropped.
type Result uint8

const (
	InvalidData Result = iota
	InvalidVerification
	InvalidTimestamp
	PubKeyMismatch
	NoProofOfWork
	InvalidHashNonce
	InvalidSignature
	CustomVerificationFailed
	Verified
)

// String returns the string representation of a Result.
func (r Result) String() string {
	switch r {
	case InvalidData:
		return "InvalidData"
	case InvalidVerification:
		return "InvalidVerification"
	case InvalidTimestamp:
		return "InvalidTimestamp"
	case PubKeyMismatch:
		return "PubKeyMismatch"
	case NoProofOfWork:
		return "NoProofOfWork"
	case InvalidHashNonce:
		return "InvalidHashNonce"
	case InvalidSignature:
		return "InvalidSignature"
	case CustomVerificationFailed:
		return "CustomVerificationFailed"
	case Verified:
		return "Verified"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Verifier
// --------------------------------------------------------------------------

// Predicate decides whether next may replace the record stored for its key.
// previous is nil if nothing is stored yet.
type Predicate func(next *entry.Entry, previous *entry.Record) bool

type customVerificator struct {
	prefix    string
	predicate Predicate
}

// Verifier runs the verification pipeline for incoming entries.
//
// Thread-safety: all methods are safe for concurrent use. Predicates may be called
// concurrently and must not block.
type Verifier struct {
	signatures identity.IVerifier
	store      store.IStore
	clock      clock.Clock
	skew       time.Duration

	nextHandle atomic.Uint64
	custom     *xsync.MapOf[uint64, customVerificator]
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithClock replaces the wall clock, used to check timestamps.
func WithClock(c clock.Clock) Option {
	return func(v *Verifier) { v.clock = c }
}

// WithClockSkew sets how far timestamps may be ahead of the local clock.
func WithClockSkew(d time.Duration) Option {
	return func(v *Verifier) { v.skew = d }
}

// New creates a Verifier checking signatures with signatures and loading previous
// records for custom verificators from s.
func New(signatures identity.IVerifier, s store.IStore, opts ...Option) *Verifier {
	v := &Verifier{
		signatures: signatures,
		store:      s,
		clock:      clock.New(),
		skew:       DefaultClockSkew,
		custom:     xsync.NewMapOf[uint64, customVerificator](),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks e in order and returns the first failure:
//
//  1. all required fields are present (InvalidData)
//  2. the timestamp is not too far in the future (InvalidTimestamp)
//  3. a namespaced key belongs to the author (PubKeyMismatch)
//  4. the hash has powDifficulty leading zeros (NoProofOfWork) and matches the content (InvalidHashNonce)
//  5. the signature over the hash verifies against the author (InvalidSignature)
//
// The hash is always recomputed, also with powDifficulty 0, since the signature only covers the hash.
func (v *Verifier) Verify(e *entry.Entry, powDifficulty int) Result {
	if e == nil || e.Key == "" || e.Author == "" || e.Hash == "" || e.Signature == "" || e.Timestamp <= 0 || len(e.Value) == 0 {
		return InvalidData
	}

	if e.Timestamp > v.clock.Now().Add(v.skew).UnixMilli() {
		return InvalidTimestamp
	}

	if owner, ok := entry.NamespaceOwner(e.Key); ok && owner != e.Author {
		return PubKeyMismatch
	}

	if powDifficulty > 0 && !entry.HasLeadingZeros(e.Hash, powDifficulty) {
		return NoProofOfWork
	}
	hash, err := entry.ComputeHash(e.Value, e.Author, e.Timestamp, e.Nonce)
	if err != nil {
		return InvalidData
	}
	if hash != e.Hash {
		return InvalidHashNonce
	}

	if !v.signatures.Verify(e.Hash, e.Signature, e.Author) {
		return InvalidSignature
	}

	return Verified
}

// VerifyWithCustom runs Verify and then every custom verificator whose prefix matches
// the key. All matching predicates must pass, a single false yields CustomVerificationFailed.
// Failing to load the previous record yields InvalidVerification.
func (v *Verifier) VerifyWithCustom(e *entry.Entry, powDifficulty int) Result {
	result := v.Verify(e, powDifficulty)
	if result != Verified {
		return result
	}

	var matching []customVerificator
	v.custom.Range(func(_ uint64, c customVerificator) bool {
		if strings.HasPrefix(e.Key, c.prefix) {
			matching = append(matching, c)
		}
		return true
	})
	if len(matching) == 0 {
		return result
	}

	previous, err := v.loadPrevious(e.Key)
	if err != nil {
		Logger.Warningf("Failed to load previous record for %s: %v", e.Key, err)
		return InvalidVerification
	}

	for _, c := range matching {
		if !c.predicate(e, previous) {
			return CustomVerificationFailed
		}
	}
	return Verified
}

// Register adds a custom verificator for all keys starting with prefix and returns
// a handle to remove it again. Handles are never reused.
func (v *Verifier) Register(prefix string, p Predicate) uint64 {
	handle := v.nextHandle.Add(1)
	v.custom.Store(handle, customVerificator{prefix: prefix, predicate: p})
	return handle
}

// Unregister removes a custom verificator. It returns false if the handle is unknown.
func (v *Verifier) Unregister(handle uint64) bool {
	_, ok := v.custom.LoadAndDelete(handle)
	return ok
}

func (v *Verifier) loadPrevious(key string) (*entry.Record, error) {
	raw, ok, err := v.store.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return entry.DecodeRecord(raw)
}
