package testing

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/pKV/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory())
		})

		t.Run("Query", func(t *testing.T) {
			testQuery(t, factory())
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, factory())
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// mustSet fails the test if a Set operation returns an error
func mustSet(t testing.TB, database db.KVDB, key string, value []byte) {
	if err := database.Set(key, value); err != nil {
		t.Fatalf("Set(%q) failed: %v", key, err)
	}
}

// mustGet fails the test if a Get operation returns an error
func mustGet(t testing.TB, database db.KVDB, key string) ([]byte, bool) {
	value, ok, err := database.Get(key)
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", key, err)
	}
	return value, ok
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	mustSet(t, database, testKey, testValue1)

	result, exists := mustGet(t, database, testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	mustSet(t, database, testKey, testValue2)

	result, exists = mustGet(t, database, testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	_, exists = mustGet(t, database, "nonexistent-key")
	if exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	retrievedValue, _ := mustGet(t, database, testKey)
	retrievedValue[0] = 'X'

	originalValue, _ := mustGet(t, database, testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	input := []byte("input-value")
	mustSet(t, database, "input-key", input)
	input[0] = 'X'

	stored, _ := mustGet(t, database, "input-key")
	if !bytes.Equal(stored, []byte("input-value")) {
		t.Errorf("Set should store a copy of the value, got %s", stored)
	}
}

func testHas(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureHas)

	has, err := database.Has("has-key")
	if err != nil {
		t.Fatalf("Has failed: %v", err)
	}
	if has {
		t.Errorf("Has should return false for a missing key")
	}

	mustSet(t, database, "has-key", []byte("value"))

	has, err = database.Has("has-key")
	if err != nil {
		t.Fatalf("Has failed: %v", err)
	}
	if !has {
		t.Errorf("Has should return true after Set")
	}
}

func testQuery(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeaturePrefixScan)

	keys := []string{
		"users/bob",
		"users/alice",
		"users/carol/profile",
		"usersx",
		"posts/1",
		":addr.profile",
		":addr.settings",
		":other.profile",
	}
	for _, k := range keys {
		mustSet(t, database, k, []byte("v"))
	}

	cases := map[string][]string{
		"users/":  {"users/alice", "users/bob", "users/carol/profile"},
		"users":   {"users/alice", "users/bob", "users/carol/profile", "usersx"},
		":addr.":  {":addr.profile", ":addr.settings"},
		"missing": {},
		"":        nil, // all keys
	}

	for prefix, expected := range cases {
		result, err := database.Query(prefix)
		if err != nil {
			t.Fatalf("Query(%q) failed: %v", prefix, err)
		}
		if expected == nil {
			expected = append([]string(nil), keys...)
			sort.Strings(expected)
		}
		if len(result) != len(expected) {
			t.Errorf("Query(%q): expected %v, got %v", prefix, expected, result)
			continue
		}
		for i := range expected {
			if result[i] != expected[i] {
				t.Errorf("Query(%q): expected %v, got %v", prefix, expected, result)
				break
			}
		}
	}
}

func testInfo(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)

	for i := 0; i < 10; i++ {
		mustSet(t, database, fmt.Sprintf("info-%d", i), []byte("value"))
	}
	mustSet(t, database, "info-0", []byte("replaced"))

	info := database.GetInfo()
	if info.Keys != 10 {
		t.Errorf("Expected 10 keys, got %d", info.Keys)
	}
	if info.DbType == "" {
		t.Errorf("Expected a database type")
	}
	for _, f := range info.SupportedFeatures {
		if !database.SupportsFeature(f) {
			t.Errorf("Feature %s is listed but not supported", f)
		}
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)

	emptyValueKey := "empty-value-key"
	mustSet(t, database, emptyValueKey, []byte{})

	result, exists := mustGet(t, database, emptyValueKey)
	if !exists {
		t.Errorf("Key for empty value not found after Set")
	} else if len(result) != 0 {
		t.Errorf("Empty value mismatch")
	}

	nilValueKey := "nil-value-key"
	mustSet(t, database, nilValueKey, nil)

	result, exists = mustGet(t, database, nilValueKey)
	if !exists {
		t.Errorf("Key for nil value not found after Set")
	} else if len(result) != 0 {
		t.Errorf("Nil value resulted in non-empty value: %v", result)
	}

	largeKey := string(bytes.Repeat([]byte("k"), 1000))
	largeKeyValue := []byte("value for large key")
	mustSet(t, database, largeKey, largeKeyValue)

	result, exists = mustGet(t, database, largeKey)
	if !exists {
		t.Errorf("Large key not found after Set")
	} else if !bytes.Equal(result, largeKeyValue) {
		t.Errorf("Value mismatch for large key")
	}

	largeValueKey := "large-value-key"
	largeValue := make([]byte, 4*1024*1024)
	for i := range largeValue {
		largeValue[i] = byte(i % 256)
	}
	mustSet(t, database, largeValueKey, largeValue)

	result, exists = mustGet(t, database, largeValueKey)
	if !exists {
		t.Errorf("Key for large value not found after Set")
	} else if !bytes.Equal(result, largeValue) {
		t.Errorf("Large value mismatch (got %d bytes, expected %d)", len(result), len(largeValue))
	}
}

func testRealisticUsage(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)
	requireFeature(t, database, db.FeatureGet)
	requireFeature(t, database, db.FeaturePrefixScan)

	numWorkers := 8
	opsPerWorker := 500

	var wg sync.WaitGroup
	var errorCount int32
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		go func(workerId int) {
			defer wg.Done()
			for i := 0; i < opsPerWorker; i++ {
				key := fmt.Sprintf("worker-%d/key-%04d", workerId, i)
				if err := database.Set(key, []byte(key)); err != nil {
					atomic.AddInt32(&errorCount, 1)
					continue
				}
				if i%3 == 0 {
					if _, _, err := database.Get(fmt.Sprintf("hot-key-%d", i%10)); err != nil {
						atomic.AddInt32(&errorCount, 1)
					}
				}
				if i%50 == 0 {
					if _, err := database.Query(fmt.Sprintf("worker-%d/", workerId)); err != nil {
						atomic.AddInt32(&errorCount, 1)
					}
				}
			}
		}(w)
	}

	wg.Wait()

	if atomic.LoadInt32(&errorCount) > 0 {
		t.Fatalf("Test had %d errors during parallel operations", errorCount)
	}

	for w := 0; w < numWorkers; w++ {
		keys, err := database.Query(fmt.Sprintf("worker-%d/", w))
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(keys) != opsPerWorker {
			t.Errorf("Worker %d: expected %d keys, got %d", w, opsPerWorker, len(keys))
			continue
		}
		if !sort.StringsAreSorted(keys) {
			t.Errorf("Worker %d: keys are not sorted", w)
		}
		value, ok := mustGet(t, database, keys[0])
		if !ok || string(value) != keys[0] {
			t.Errorf("Worker %d: unexpected value %q for %s", w, value, keys[0])
		}
	}
}
