// Package serializer provides envelope serialization for the gossip protocol.
// It defines a common interface and multiple implementations for turning
// common.Envelope values into bytes and back.
//
// Key Components:
//
//   - IEnvelopeSerializer: Core interface that all serializer implementations must satisfy.
//
//   - jsonSerializerImpl: JSON encoding. The default, human-readable and the
//     format the entry hashes are defined over.
//
//   - gobSerializerImpl: Go's gob encoding. Only usable between Go nodes.
//
//   - zstdSerializerImpl: wraps another serializer and compresses its output with
//     github.com/klauspost/compress/zstd. Worth it for large CRDT change sets.
//
// FromName selects an implementation by its configuration name
// (json, gob, json+zstd, gob+zstd). All nodes of a network must agree.
//
// Thread Safety:
//
//	All serializer implementations are safe for concurrent use
//	across multiple goroutines without additional synchronization.
package serializer
