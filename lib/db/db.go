package db

import "errors"

// ErrClosed is returned by operations on a closed database.
var ErrClosed = errors.New("database is closed")

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplBTree  Implementation = "btree"
	ImplBadger Implementation = "badger"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeatureSet        Feature = 1 << iota // Support for Set operations
	FeatureGet                            // Support for Get operations
	FeatureHas                            // Support for Has operations
	FeaturePrefixScan                     // Support for ordered prefix scans (Query)
	FeaturePersistent                     // Data survives a restart
)

func (f Feature) String() string {
	switch f {
	case FeatureSet:
		return "Set"
	case FeatureGet:
		return "Get"
	case FeatureHas:
		return "Has"
	case FeaturePrefixScan:
		return "PrefixScan"
	case FeaturePersistent:
		return "Persistent"
	default:
		return "Unknown"
	}
}

type DatabaseInfo struct {
	Keys              int            `json:"keys"`
	SizeBytes         int64          `json:"size_bytes"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines an interface for ordered key-value database implementations.
// Keys are ordered lexicographically by their bytes, which allows prefix scans.
// Implementations can vary in their feature support, which can be queried with SupportsFeature.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Set inserts or updates an entry with the given key and value.
	// If the key already exists, the old value should be overwritten.
	Set(key string, value []byte) (err error)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves a copy of the value for an exact key.
	// The boolean return value indicates whether a value for the key was found.
	Get(key string) (value []byte, loaded bool, err error)

	// Has checks whether a key exists in the database.
	Has(key string) (loaded bool, err error)

	// Query returns all keys starting with prefix in ascending order.
	// An empty prefix returns all keys.
	Query(prefix string) (keys []string, err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Returns true if the feature is supported, false otherwise.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// Close closes the database.
	Close() (err error)
}

// FeatureList expands a feature mask into its single features.
func FeatureList(mask Feature) []Feature {
	var out []Feature
	for f := FeatureSet; f <= FeaturePersistent; f <<= 1 {
		if mask&f != 0 {
			out = append(out, f)
		}
	}
	return out
}
