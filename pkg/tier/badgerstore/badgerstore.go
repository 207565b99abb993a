// Package badgerstore backs the hot tier with an embedded badger KV store.
package badgerstore

import (
	"context"
	"errors"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/fsx/pkg/fserrors"
)

// Store is a badger-backed tier backend.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a badger database at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fserrors.NewIO("open", path, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a badger database without a backing directory. For
// tests.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fserrors.NewIO("open", "", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the payload stored under key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fserrors.NewNotFound(key, "object")
		}
		return nil, fserrors.NewIO("get", key, err)
	}
	return data, nil
}

// Put stores the payload under key.
func (s *Store) Put(_ context.Context, key string, data []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fserrors.NewIO("put", key, err)
	}
	return nil
}

// Delete removes the payload. Deleting a missing key is not an error.
func (s *Store) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fserrors.NewIO("delete", key, err)
	}
	return nil
}

// Head returns the stored size without copying the payload out.
func (s *Store) Head(_ context.Context, key string) (int64, error) {
	var size int64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		size = item.ValueSize()
		return nil
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, fserrors.NewNotFound(key, "object")
		}
		return 0, fserrors.NewIO("head", key, err)
	}
	return size, nil
}
