package lstore

import (
	"github.com/ValentinKolb/pKV/lib/db"
	"github.com/ValentinKolb/pKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("store")

type storeImpl struct {
	db db.KVDB
}

// NewLocalStore creates a new local store instance on top of the database created by factory.
func NewLocalStore(factory store.DBFactory) (store.IStore, error) {
	database, err := factory()
	if err != nil {
		return nil, store.NewError(store.RetCInternalError, err.Error())
	}
	info := database.GetInfo()
	Logger.Infof("Opened %s database (%d keys)", info.DbType, info.Keys)
	return &storeImpl{db: database}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	if !s.db.SupportsFeature(db.FeatureGet) {
		return nil, false, store.NewError(store.RetCUnsupportedOperation, "Get operation is not supported")
	}
	val, ok, err := s.db.Get(key)
	if err != nil {
		return nil, false, internal(err)
	}
	return val, ok, nil
}

func (s *storeImpl) Put(key string, value []byte) error {
	if !s.db.SupportsFeature(db.FeatureSet) {
		return store.NewError(store.RetCUnsupportedOperation, "Set operation is not supported")
	}
	if key == "" {
		return store.NewError(store.RetCInvalidOperation, "key must not be empty")
	}
	if err := s.db.Set(key, value); err != nil {
		return internal(err)
	}
	Logger.Debugf("Stored %s (%d bytes)", key, len(value))
	return nil
}

func (s *storeImpl) Has(key string) (bool, error) {
	if !s.db.SupportsFeature(db.FeatureHas) {
		return false, store.NewError(store.RetCUnsupportedOperation, "Has operation is not supported")
	}
	ok, err := s.db.Has(key)
	if err != nil {
		return false, internal(err)
	}
	return ok, nil
}

func (s *storeImpl) Query(prefix string) ([]string, error) {
	if !s.db.SupportsFeature(db.FeaturePrefixScan) {
		return nil, store.NewError(store.RetCUnsupportedOperation, "Query operation is not supported")
	}
	keys, err := s.db.Query(prefix)
	if err != nil {
		return nil, internal(err)
	}
	return keys, nil
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return s.db.GetInfo(), nil
}

func (s *storeImpl) Close() error {
	if err := s.db.Close(); err != nil {
		return internal(err)
	}
	return nil
}

// internal wraps a database error into a store error
func internal(err error) error {
	return store.NewError(store.RetCInternalError, err.Error())
}
