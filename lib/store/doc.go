// Package store provides the storage adapter contract of a node together with
// unified error handling.
// It serves as an abstraction layer over the lower-level db.KVDB implementations.
//
// The package focuses on:
//   - A unified interface (IStore) for record storage across different backends
//   - Pluggable storage backend architecture through DBFactory pattern
//
// Key Components:
//
//   - IStore Interface: The core abstraction defining Get, Put, Has and prefix Query.
//     A missing key is a normal result (loaded=false), not an error, because it is
//     what triggers remote lookups and "create" semantics in the protocol.
//
//   - Error System: A structured error reporting mechanism using typed error codes
//     and descriptive messages. This system allows applications to make informed
//     decisions based on specific error conditions rather than generic errors.
//
//   - DBFactory: A function type that abstracts the creation of underlying db.KVDB
//     instances, providing dependency injection and flexible configuration of
//     storage backends.
//
// Implementations:
//
//	- Local Store (lstore): a thin implementation that directly utilizes a db.KVDB
//	  instance. Available in the "github.com/ValentinKolb/pKV/lib/store/lstore" package.
package store
