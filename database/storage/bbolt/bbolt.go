package bbolt

import (
	"errors"
	"fmt"
	"path/filepath"

	"go.etcd.io/bbolt"

	"github.com/safing/recordstore/database/storage"
	"github.com/safing/recordstore/utils"
)

// DatabaseFileName is the name of the bbolt file within the location.
const DatabaseFileName = "records.bbolt"

// BBolt storage. Every collection is a bucket.
type BBolt struct {
	db *bbolt.DB
}

func init() {
	_ = storage.Register("bbolt", NewBBolt)
}

// NewBBolt opens/creates a bbolt storage.
func NewBBolt(opts *storage.Options) (storage.Interface, error) {
	if opts.Location == "" {
		return nil, errors.New("bbolt: missing location")
	}
	if err := utils.EnsureDirectory(opts.Location, 0o700); err != nil {
		return nil, fmt.Errorf("bbolt: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(opts.Location, DatabaseFileName), 0o600, nil)
	if err != nil {
		return nil, err
	}

	return &BBolt{
		db: db,
	}, nil
}

func checkKey(collection, key string) error {
	if collection == "" || key == "" {
		return storage.ErrInvalidKey
	}
	return nil
}

// Get returns the data of a record.
func (b *BBolt) Get(collection, key string) ([]byte, error) {
	if err := checkKey(collection, key); err != nil {
		return nil, err
	}

	var data []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(collection))
		if bucket == nil {
			return storage.ErrNotFound
		}

		// get value from db
		value := bucket.Get([]byte(key))
		if value == nil {
			return storage.ErrNotFound
		}

		// copy data
		data = make([]byte, len(value))
		copy(data, value)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Put stores the data of a record.
func (b *BBolt) Put(collection, key string, data []byte) error {
	if err := checkKey(collection, key); err != nil {
		return err
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, collection, key, data)
	})
}

func put(tx *bbolt.Tx, collection, key string, data []byte) error {
	bucket, err := tx.CreateBucketIfNotExists([]byte(collection))
	if err != nil {
		return err
	}
	return bucket.Put([]byte(key), data)
}

// Delete deletes a record.
func (b *BBolt) Delete(collection, key string) error {
	if err := checkKey(collection, key); err != nil {
		return err
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		return deleteKey(tx, collection, key)
	})
}

func deleteKey(tx *bbolt.Tx, collection, key string) error {
	bucket := tx.Bucket([]byte(collection))
	if bucket == nil {
		return nil
	}
	return bucket.Delete([]byte(key))
}

// DeleteCollection deletes the bucket of a collection.
func (b *BBolt) DeleteCollection(collection string) error {
	if collection == "" {
		return storage.ErrInvalidKey
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		return deleteBucket(tx, collection)
	})
}

func deleteBucket(tx *bbolt.Tx, collection string) error {
	err := tx.DeleteBucket([]byte(collection))
	if errors.Is(err, bbolt.ErrBucketNotFound) {
		return nil
	}
	return err
}

// List returns the data of all records in a collection.
func (b *BBolt) List(collection string) ([][]byte, error) {
	if collection == "" {
		return nil, storage.ErrInvalidKey
	}

	records := [][]byte{}
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(collection))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, value []byte) error {
			duplicate := make([]byte, len(value))
			copy(duplicate, value)
			records = append(records, duplicate)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Apply applies all operations in a single bbolt transaction, so either all or none are applied.
func (b *BBolt) Apply(ops []storage.Op) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		for _, op := range ops {
			var err error
			switch {
			case op.IsCollectionDelete():
				if op.Collection == "" {
					return storage.ErrInvalidKey
				}
				err = deleteBucket(tx, op.Collection)
			case op.Delete:
				if err = checkKey(op.Collection, op.Key); err == nil {
					err = deleteKey(tx, op.Collection, op.Key)
				}
			default:
				if err = checkKey(op.Collection, op.Key); err == nil {
					err = put(tx, op.Collection, op.Key, op.Data)
				}
			}
			if err != nil {
				return fmt.Errorf("bbolt: failed to apply operation on %s/%s: %w", op.Collection, op.Key, err)
			}
		}
		return nil
	})
}

// Shutdown shuts down the storage.
func (b *BBolt) Shutdown() error {
	return b.db.Close()
}
