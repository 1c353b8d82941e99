package badger

import (
	"testing"

	"github.com/ValentinKolb/pKV/lib/db"
	dbtesting "github.com/ValentinKolb/pKV/lib/db/testing"
)

func newTestDB(t testing.TB) db.KVDB {
	database, err := NewInMemoryBadgerDB()
	if err != nil {
		t.Fatalf("failed to open badger: %v", err)
	}
	return database
}

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "BadgerDB", func() db.KVDB {
		return newTestDB(t)
	})
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "BadgerDB", func() db.KVDB {
		return newTestDB(b)
	})
}

func TestPersistence(t *testing.T) {
	dir := t.TempDir()

	database, err := NewBadgerDB(dir)
	if err != nil {
		t.Fatalf("failed to open badger: %v", err)
	}
	if !database.SupportsFeature(db.FeaturePersistent) {
		t.Errorf("Expected on disk database to be persistent")
	}
	if err := database.Set("durable", []byte("value")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := database.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewBadgerDB(dir)
	if err != nil {
		t.Fatalf("failed to reopen badger: %v", err)
	}
	defer reopened.Close()

	value, ok, err := reopened.Get("durable")
	if err != nil || !ok || string(value) != "value" {
		t.Errorf("Expected persisted value, got %q (found=%v, err=%v)", value, ok, err)
	}
}

func TestInMemoryIsNotPersistent(t *testing.T) {
	database := newTestDB(t)
	defer database.Close()
	if database.SupportsFeature(db.FeaturePersistent) {
		t.Errorf("In-memory database must not report persistence")
	}
}
