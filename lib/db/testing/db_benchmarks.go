package testing

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/ValentinKolb/pKV/lib/db"
)

// RunKVDBBenchmarks runs all benchmarks for a key-value database implementations
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {

	b.Run("Set", func(b *testing.B) {
		benchmarkSet(b, factory())
	})

	b.Run("SetExisting", func(b *testing.B) {
		benchmarkSetExisting(b, factory())
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory())
	})

	b.Run("Query", func(b *testing.B) {
		benchmarkQuery(b, factory())
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Set operation
func benchmarkSet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet)

	value := []byte("benchmark-value")
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			_ = database.Set(fmt.Sprintf("key-%d", r.Int63()), value)
		}
	})
}

// Benchmark for overwriting a fixed set of keys
func benchmarkSetExisting(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet)

	const numKeys = 1000
	value := []byte("benchmark-value")
	for i := 0; i < numKeys; i++ {
		mustSet(b, database, fmt.Sprintf("key-%d", i), value)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_ = database.Set(fmt.Sprintf("key-%d", i%numKeys), value)
			i++
		}
	})
}

// Benchmark for Get operation
func benchmarkGet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureGet)

	const numKeys = 10_000
	for i := 0; i < numKeys; i++ {
		mustSet(b, database, fmt.Sprintf("key-%d", i), []byte("benchmark-value"))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _, _ = database.Get(fmt.Sprintf("key-%d", i%numKeys))
			i++
		}
	})
}

// Benchmark for prefix scans over namespaces of 100 keys
func benchmarkQuery(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeaturePrefixScan)

	const numPrefixes = 100
	for p := 0; p < numPrefixes; p++ {
		for i := 0; i < 100; i++ {
			mustSet(b, database, fmt.Sprintf(":addr%03d.key-%03d", p, i), []byte("v"))
		}
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = database.Query(fmt.Sprintf(":addr%03d.", i%numPrefixes))
			i++
		}
	})
}

// Benchmark for a read heavy mix of operations
func benchmarkMixedUsage(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureGet|db.FeatureHas)

	const numKeys = 1000
	value := []byte("benchmark-value")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := fmt.Sprintf("key-%d", r.Intn(numKeys))
			switch r.Intn(10) {
			case 0, 1:
				_ = database.Set(key, value)
			case 2:
				_, _ = database.Has(key)
			default:
				_, _, _ = database.Get(key)
			}
		}
	})
}
