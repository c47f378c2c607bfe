package hashmap

import (
	"sync"

	"github.com/safing/recordstore/database/storage"
)

// HashMap storage.
type HashMap struct {
	db     map[string]map[string][]byte
	dbLock sync.RWMutex
}

func init() {
	_ = storage.Register("hashmap", NewHashMap)
}

// NewHashMap creates a hashmap storage.
func NewHashMap(_ *storage.Options) (storage.Interface, error) {
	return &HashMap{
		db: make(map[string]map[string][]byte),
	}, nil
}

func checkKey(collection, key string) error {
	if collection == "" || key == "" {
		return storage.ErrInvalidKey
	}
	return nil
}

// Get returns the data of a record.
func (hm *HashMap) Get(collection, key string) ([]byte, error) {
	if err := checkKey(collection, key); err != nil {
		return nil, err
	}

	hm.dbLock.RLock()
	defer hm.dbLock.RUnlock()

	data, ok := hm.db[collection][key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyBytes(data), nil
}

// Put stores the data of a record.
func (hm *HashMap) Put(collection, key string, data []byte) error {
	if err := checkKey(collection, key); err != nil {
		return err
	}

	hm.dbLock.Lock()
	defer hm.dbLock.Unlock()

	hm.put(collection, key, data)
	return nil
}

func (hm *HashMap) put(collection, key string, data []byte) {
	c, ok := hm.db[collection]
	if !ok {
		c = make(map[string][]byte)
		hm.db[collection] = c
	}
	c[key] = copyBytes(data)
}

// Delete deletes a record.
func (hm *HashMap) Delete(collection, key string) error {
	if err := checkKey(collection, key); err != nil {
		return err
	}

	hm.dbLock.Lock()
	defer hm.dbLock.Unlock()

	delete(hm.db[collection], key)
	return nil
}

// DeleteCollection deletes a collection with all its records.
func (hm *HashMap) DeleteCollection(collection string) error {
	if collection == "" {
		return storage.ErrInvalidKey
	}

	hm.dbLock.Lock()
	defer hm.dbLock.Unlock()

	delete(hm.db, collection)
	return nil
}

// List returns the data of all records in a collection.
func (hm *HashMap) List(collection string) ([][]byte, error) {
	if collection == "" {
		return nil, storage.ErrInvalidKey
	}

	hm.dbLock.RLock()
	defer hm.dbLock.RUnlock()

	records := make([][]byte, 0, len(hm.db[collection]))
	for _, data := range hm.db[collection] {
		records = append(records, copyBytes(data))
	}
	return records, nil
}

// Apply applies all operations atomically.
func (hm *HashMap) Apply(ops []storage.Op) error {
	for _, op := range ops {
		if op.IsCollectionDelete() {
			if op.Collection == "" {
				return storage.ErrInvalidKey
			}
			continue
		}
		if err := checkKey(op.Collection, op.Key); err != nil {
			return err
		}
	}

	hm.dbLock.Lock()
	defer hm.dbLock.Unlock()

	for _, op := range ops {
		switch {
		case op.IsCollectionDelete():
			delete(hm.db, op.Collection)
		case op.Delete:
			delete(hm.db[op.Collection], op.Key)
		default:
			hm.put(op.Collection, op.Key, op.Data)
		}
	}
	return nil
}

// Shutdown shuts down the storage.
func (hm *HashMap) Shutdown() error {
	return nil
}

func copyBytes(data []byte) []byte {
	duplicate := make([]byte, len(data))
	copy(duplicate, data)
	return duplicate
}
