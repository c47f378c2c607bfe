package badger

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger"

	"github.com/safing/recordstore/database/storage"
	"github.com/safing/recordstore/log"
)

// Badger storage. Records are stored with the key "<collection>/<key>".
type Badger struct {
	db *badger.DB
}

func init() {
	_ = storage.Register("badger", NewBadger)
}

// NewBadger opens/creates a badger storage.
func NewBadger(opts *storage.Options) (storage.Interface, error) {
	if opts.Location == "" {
		return nil, errors.New("badger: missing location")
	}

	badgerOpts := badger.DefaultOptions(opts.Location).WithLogger(logger{})
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}

	return &Badger{
		db: db,
	}, nil
}

func checkKey(collection, key string) error {
	if collection == "" || key == "" {
		return storage.ErrInvalidKey
	}
	return nil
}

func dbKey(collection, key string) []byte {
	return []byte(collection + "/" + key)
}

func prefix(collection string) []byte {
	return []byte(collection + "/")
}

// Get returns the data of a record.
func (b *Badger) Get(collection, key string) ([]byte, error) {
	if err := checkKey(collection, key); err != nil {
		return nil, err
	}

	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dbKey(collection, key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Put stores the data of a record.
func (b *Badger) Put(collection, key string, data []byte) error {
	if err := checkKey(collection, key); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(dbKey(collection, key), data)
	})
}

// Delete deletes a record.
func (b *Badger) Delete(collection, key string) error {
	if err := checkKey(collection, key); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(dbKey(collection, key))
	})
}

// DeleteCollection deletes all records of a collection.
func (b *Badger) DeleteCollection(collection string) error {
	if collection == "" {
		return storage.ErrInvalidKey
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return deletePrefix(txn, prefix(collection))
	})
}

func deletePrefix(txn *badger.Txn, keyPrefix []byte) error {
	// collect keys first, deleting while iterating is not supported
	var keys [][]byte
	iterOpts := badger.DefaultIteratorOptions
	iterOpts.PrefetchValues = false
	it := txn.NewIterator(iterOpts)
	for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// List returns the data of all records in a collection.
func (b *Badger) List(collection string) ([][]byte, error) {
	if collection == "" {
		return nil, storage.ErrInvalidKey
	}

	records := [][]byte{}
	err := b.db.View(func(txn *badger.Txn) error {
		keyPrefix := prefix(collection)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			records = append(records, data)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Apply applies all operations in a single badger transaction, so either all or none are applied.
func (b *Badger) Apply(ops []storage.Op) error {
	return b.db.Update(func(txn *badger.Txn) error {
		for _, op := range ops {
			var err error
			switch {
			case op.IsCollectionDelete():
				if op.Collection == "" {
					return storage.ErrInvalidKey
				}
				err = deletePrefix(txn, prefix(op.Collection))
			case op.Delete:
				if err = checkKey(op.Collection, op.Key); err == nil {
					err = txn.Delete(dbKey(op.Collection, op.Key))
				}
			default:
				if err = checkKey(op.Collection, op.Key); err == nil {
					err = txn.Set(dbKey(op.Collection, op.Key), op.Data)
				}
			}
			if err != nil {
				return fmt.Errorf("badger: failed to apply operation on %s/%s: %w", op.Collection, op.Key, err)
			}
		}
		return nil
	})
}

// Shutdown shuts down the storage.
func (b *Badger) Shutdown() error {
	return b.db.Close()
}

// logger forwards badger logs to the log package.
type logger struct{}

func (logger) Errorf(format string, args ...interface{}) {
	log.Errorf("badger: "+format, args...)
}

func (logger) Warningf(format string, args ...interface{}) {
	log.Warningf("badger: "+format, args...)
}

func (logger) Infof(format string, args ...interface{}) {
	log.Debugf("badger: "+format, args...)
}

func (logger) Debugf(format string, args ...interface{}) {
	log.Tracef("badger: "+format, args...)
}
