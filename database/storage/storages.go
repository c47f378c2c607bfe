package storage

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Options are passed to a storage factory.
type Options struct {
	// Location is the directory the storage keeps its data in.
	Location string
	// Extension is the file extension of stored records, for storages that use files.
	Extension string
}

// A Factory creates a new storage of it's type.
type Factory func(opts *Options) (Interface, error)

var (
	storages     = make(map[string]Factory)
	storagesLock sync.Mutex
)

// Register registers a new storage type.
func Register(name string, factory Factory) error {
	storagesLock.Lock()
	defer storagesLock.Unlock()

	_, ok := storages[name]
	if ok {
		return errors.New("factory for this type already exists")
	}

	storages[name] = factory
	return nil
}

// Start starts a new storage of the given type.
func Start(storageType string, opts *Options) (Interface, error) {
	storagesLock.Lock()
	factory, ok := storages[storageType]
	storagesLock.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStorage, storageType)
	}

	if opts == nil {
		opts = &Options{}
	}
	return factory(opts)
}

// Registered returns the names of all registered storage types.
func Registered() []string {
	storagesLock.Lock()
	defer storagesLock.Unlock()

	names := make([]string, 0, len(storages))
	for name := range storages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
