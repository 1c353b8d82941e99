package btree

import (
	"strings"
	"sync"

	"github.com/ValentinKolb/pKV/lib/db"
	"github.com/google/btree"
)

const (
	// degree of the underlying B-tree
	defaultDegree = 32

	supportedFeatures = db.FeatureSet | db.FeatureGet | db.FeatureHas | db.FeaturePrefixScan
)

// item is a single key value pair stored in the tree
type item struct {
	key   string
	value []byte
}

func lessItem(a, b item) bool {
	return a.key < b.key
}

// btreeDB implements the db.KVDB interface with an in-memory B-tree.
//
// Thread-safety: all methods are safe for concurrent use. Reads share a read lock,
// writes are exclusive.
type btreeDB struct {
	mu        sync.RWMutex
	tree      *btree.BTreeG[item]
	sizeBytes int64
	closed    bool
}

// NewBTreeDB creates a new empty in-memory database.
func NewBTreeDB() db.KVDB {
	return &btreeDB{
		tree: btree.NewG[item](defaultDegree, lessItem),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.KVDB)
// --------------------------------------------------------------------------

func (b *btreeDB) Set(key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return db.ErrClosed
	}
	old, replaced := b.tree.ReplaceOrInsert(item{key: key, value: stored})
	if replaced {
		b.sizeBytes -= int64(len(old.key) + len(old.value))
	}
	b.sizeBytes += int64(len(key) + len(stored))
	return nil
}

func (b *btreeDB) Get(key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, false, db.ErrClosed
	}
	found, ok := b.tree.Get(item{key: key})
	if !ok {
		return nil, false, nil
	}
	value := make([]byte, len(found.value))
	copy(value, found.value)
	return value, true, nil
}

func (b *btreeDB) Has(key string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false, db.ErrClosed
	}
	return b.tree.Has(item{key: key}), nil
}

func (b *btreeDB) Query(prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, db.ErrClosed
	}
	keys := make([]string, 0)
	b.tree.AscendGreaterOrEqual(item{key: prefix}, func(it item) bool {
		if !strings.HasPrefix(it.key, prefix) {
			return false
		}
		keys = append(keys, it.key)
		return true
	})
	return keys, nil
}

func (b *btreeDB) SupportsFeature(feature db.Feature) bool {
	return feature&supportedFeatures == feature
}

func (b *btreeDB) GetInfo() db.DatabaseInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return db.DatabaseInfo{
		Keys:              b.tree.Len(),
		SizeBytes:         b.sizeBytes,
		DbType:            db.ImplBTree,
		SupportedFeatures: db.FeatureList(supportedFeatures),
		Metadata: map[string]any{
			"degree": defaultDegree,
		},
	}
}

func (b *btreeDB) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.tree.Clear(false)
	b.sizeBytes = 0
	return nil
}
