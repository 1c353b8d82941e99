package btree

import (
	"github.com/ValentinKolb/pKV/lib/db"
	dbtesting "github.com/ValentinKolb/pKV/lib/db/testing"
	"testing"
)

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "BTreeDB", func() db.KVDB {
		return NewBTreeDB()
	})
}

func Benchmark(t *testing.B) {
	dbtesting.RunKVDBBenchmarks(t, "BTreeDB", func() db.KVDB {
		return NewBTreeDB()
	})
}

func TestClosed(t *testing.T) {
	database := NewBTreeDB()
	if err := database.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := database.Set("k", []byte("v")); err != db.ErrClosed {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if _, err := database.Query(""); err != db.ErrClosed {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}
