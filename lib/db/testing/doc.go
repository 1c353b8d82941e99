// Package testing provides the conformance suite and benchmarks shared by
// every db.KVDB engine (btree, badger).
//
// RunKVDBTests checks the ordered-map contract the store relies on: set, get,
// has and prefix queries in key order. RunKVDBBenchmarks
// measures the same operations so engines can be compared.
//
// Example usage:
//
//	func TestBTreeDB(t *testing.T) {
//		dbtesting.RunKVDBTests(t, "BTreeDB", func() db.KVDB {
//			return btree.NewBTreeDB()
//		})
//	}
package testing
