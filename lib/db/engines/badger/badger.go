package badger

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/pKV/lib/db"
	"github.com/dgraph-io/badger/v4"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("badger")

const supportedFeatures = db.FeatureSet | db.FeatureGet | db.FeatureHas | db.FeaturePrefixScan | db.FeaturePersistent

// badgerDB implements the db.KVDB interface on top of a Badger LSM store.
//
// Thread-safety: all methods are safe for concurrent use, Badger serializes
// conflicting transactions internally.
type badgerDB struct {
	db       *badger.DB
	dir      string
	inMemory bool
}

// NewBadgerDB opens (or creates) a persistent database in dir.
func NewBadgerDB(dir string) (db.KVDB, error) {
	return open(badger.DefaultOptions(dir), dir, false)
}

// NewInMemoryBadgerDB creates a Badger database that keeps all data in memory.
func NewInMemoryBadgerDB() (db.KVDB, error) {
	return open(badger.DefaultOptions("").WithInMemory(true), "", true)
}

func open(opts badger.Options, dir string, inMemory bool) (db.KVDB, error) {
	// dragonboat's ILogger satisfies badger.Logger
	opts = opts.WithLogger(Logger)
	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return &badgerDB{db: bdb, dir: dir, inMemory: inMemory}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.KVDB)
// --------------------------------------------------------------------------

func (b *badgerDB) Set(key string, value []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	return translate(err)
}

func (b *badgerDB) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, translate(err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, true, nil
}

func (b *badgerDB) Has(key string) (bool, error) {
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, translate(err)
	}
	return true, nil
}

func (b *badgerDB) Query(prefix string) ([]string, error) {
	keys := make([]string, 0)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return keys, nil
}

func (b *badgerDB) SupportsFeature(feature db.Feature) bool {
	mask := supportedFeatures
	if b.inMemory {
		mask &^= db.FeaturePersistent
	}
	return feature&mask == feature
}

func (b *badgerDB) GetInfo() db.DatabaseInfo {
	lsm, vlog := b.db.Size()
	mask := supportedFeatures
	if b.inMemory {
		mask &^= db.FeaturePersistent
	}
	keys := 0
	_ = b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys++
		}
		return nil
	})
	return db.DatabaseInfo{
		Keys:              keys,
		SizeBytes:         lsm + vlog,
		DbType:            db.ImplBadger,
		SupportedFeatures: db.FeatureList(mask),
		Metadata: map[string]any{
			"dir":       b.dir,
			"in_memory": b.inMemory,
			"lsm_size":  lsm,
			"vlog_size": vlog,
		},
	}
}

func (b *badgerDB) Close() error {
	return b.db.Close()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// translate maps badger errors onto db errors
func translate(err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return db.ErrClosed
	}
	return err
}
