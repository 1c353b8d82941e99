// Package db provides a standardized interface for ordered key-value database implementations.
// It defines the KVDB interface that allows for consistent interaction with various
// database backends while abstracting implementation details.
//
// The package focuses on:
//   - A unified interface for key-value operations
//   - Lexicographically ordered prefix scans, required to answer key queries
//   - Feature discovery through capability flags
//   - Comprehensive metadata reporting
//
// Key Components:
//
//   - KVDB Interface: The core interface that all database implementations must satisfy.
//     It provides methods for basic operations (Set, Get, Has), prefix scans (Query),
//     metadata retrieval (GetInfo) and resource management (Close).
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     can advertise through the SupportsFeature method. This allows clients to
//     discover supported operations at runtime.
//
//   - Implementation Identifiers: The Implementation type provides string constants
//     for the database backends ("btree", "badger").
//
//   - Database Information: The DatabaseInfo structure provides standardized
//     reporting on database state, including size statistics, implementation type,
//     and implementation-specific metadata. Note: sizes are estimates for
//     persistent implementations.
//
// Related Packages:
//
// The engines/btree package (github.com/ValentinKolb/pKV/lib/db/engines/btree) provides an
// in-memory implementation backed by a B-tree. It is the default for clients and tests.
//
// The engines/badger package (github.com/ValentinKolb/pKV/lib/db/engines/badger) provides a
// persistent implementation on top of the Badger LSM store, intended for servers.
//
// The testing package (github.com/ValentinKolb/pKV/lib/db/testing) provides
// standardized tests and benchmarks for database implementations that satisfy the db.KVDB interface.
//   - RunKVDBTests: Runs a standardized test suite to validate implementations
//   - RunKVDBBenchmarks: Provides performance benchmarks for comparing implementations
package db
