// Package lstore implements the store.IStore interface on top of a single db.KVDB.
// It is the storage adapter every node uses to persist records locally.
//
// Key Features:
//   - Direct integration with db.KVDB implementations (in-memory btree, persistent badger)
//   - Feature detection to handle unsupported operations gracefully
//   - Uniform store.Error values for database failures
//   - Thread-safe operations for concurrent access
//
// Implementation Details:
//
//   - Feature Detection: Before executing operations, the store checks if the underlying
//     db.KVDB implementation supports the requested feature through the SupportsFeature
//     method. Unsupported operations return appropriate error codes rather than failing
//     silently or producing undefined behavior.
//
//   - Composition Architecture: The store follows a composition pattern where the
//     store.DBFactory factory function injects the underlying db.KVDB implementation.
//     This allows the store to work with any db.KVDB-compatible engine without modification.
//
// Thread Safety:
//
//	The store holds no state of its own. The underlying db.KVDB implementation
//	provides the thread safety guarantees for the actual storage operations.
//	Conditional writes (read, compare, write) must be serialized by the caller.
//
// Usage Example:
//
//	s, err := lstore.NewLocalStore(func() (db.KVDB, error) {
//		return btree.NewBTreeDB(), nil
//	})
//
//	err = s.Put("key", record)
//	value, exists, err := s.Get("key")
//	keys, err := s.Query(":address.")
package lstore
