package storage

import "context"

// Interface defines the storage backend API.
// Collections are created on first write and a missing collection behaves
// like an empty one.
type Interface interface {
	// Get returns the raw data stored for the key or ErrNotFound.
	Get(collection, key string) ([]byte, error)
	// Put stores the data for the key, replacing existing data.
	Put(collection, key string, data []byte) error
	// Delete removes the key. Deleting a missing key is not an error.
	Delete(collection, key string) error
	// DeleteCollection removes the collection and all its keys.
	// Deleting a missing collection is not an error.
	DeleteCollection(collection string) error
	// List returns the raw data of all keys in the collection, in no particular order.
	List(collection string) ([][]byte, error)

	// Apply applies all operations in order. Backends document how atomic
	// this is. A failure after some operations were applied is reported
	// wrapped in ErrPartialApply.
	Apply(ops []Op) error

	// Shutdown shuts down the storage.
	Shutdown() error
}

// Watcher is implemented by storages that can report changes made by
// others than the store itself.
type Watcher interface {
	// Watch calls changed for every changed key until the context is
	// canceled. Changes to a whole collection are reported with an empty key.
	Watch(ctx context.Context, changed func(collection, key string)) error
}

// Op is a single write operation applied in a batch.
type Op struct {
	Collection string
	// Key of the record. An empty key with Delete set removes the whole collection.
	Key    string
	Data   []byte
	Delete bool
}

// IsCollectionDelete returns whether the operation removes a whole collection.
func (op Op) IsCollectionDelete() bool {
	return op.Delete && op.Key == ""
}
