package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/tevino/abool"

	"github.com/safing/recordstore/config"
	"github.com/safing/recordstore/database/record"
	"github.com/safing/recordstore/database/storage"
	"github.com/safing/recordstore/formats/dsd"
	"github.com/safing/recordstore/log"
	"github.com/safing/recordstore/utils"
)

// Store keeps records in collections.
type Store struct {
	opts    *config.Options
	format  dsd.SerializationFormat
	storage storage.Interface

	locks   *lockRegistry
	cache   *recordCache
	subs    *subscriptions
	metrics *storeMetrics

	activeTxn     *Txn
	activeTxnLock sync.Mutex

	async     *Async
	asyncLock sync.Mutex

	// shuttingDown is set when Shutdown starts. closed is set after
	// pending asynchronous operations are done.
	shuttingDown *abool.AtomicBool
	closed       *abool.AtomicBool
	stopWatcher  context.CancelFunc
	watcherDone  chan struct{}
	watcherErr   error
}

// openStores counts stores that are not shut down. The log level is global,
// so only the first store opened sets it.
var openStores atomic.Int32

// New opens a store with the given options.
func New(opts *config.Options) (*Store, error) {
	if opts == nil {
		return nil, fmt.Errorf("%w: missing options", ErrInvalidArgument)
	}
	copied := *opts
	opts = &copied
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	format, err := opts.SerializationFormat()
	if err != nil {
		return nil, err
	}

	backend, err := storage.Start(opts.StorageType, &storage.Options{
		Location:  opts.DataRoot,
		Extension: format.Extension(),
	})
	if err != nil {
		return nil, fmt.Errorf("database: failed to start %s storage: %w", opts.StorageType, err)
	}

	m := newStoreMetrics()
	s := &Store{
		opts:         opts,
		format:       format,
		storage:      backend,
		locks:        newLockRegistry(),
		cache:        newRecordCache(opts.CacheSize, opts.CacheTTL.Duration(), m),
		subs:         &subscriptions{metrics: m},
		metrics:      m,
		shuttingDown: abool.New(),
		closed:       abool.New(),
	}
	m.registerGauges(s)

	if opts.WatchExternalChanges {
		if err := s.startWatcher(); err != nil {
			_ = backend.Shutdown()
			return nil, err
		}
	}

	level := log.ParseLevel(opts.LogLevel)
	switch {
	case openStores.Add(1) == 1:
		log.SetLogLevel(level)
	case level != log.GetLogLevel():
		log.Warningf("database: keeping log level %s of already open store, ignoring %s", log.GetLogLevel(), level)
	}

	log.Infof("database: opened %s store at %q with %s format", opts.StorageType, opts.DataRoot, format)
	return s, nil
}

// Format returns the serialization format records are stored in.
func (s *Store) Format() dsd.SerializationFormat {
	return s.format
}

func checkCollection(collection string) error {
	if err := utils.CheckName(collection); err != nil {
		return fmt.Errorf("%w: collection %q: %w", ErrInvalidArgument, collection, err)
	}
	return nil
}

func checkKey(collection, key string) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	if err := utils.CheckName(key); err != nil {
		return fmt.Errorf("%w: key %q: %w", ErrInvalidArgument, key, err)
	}
	return nil
}

// finish records metrics and publishes the event of a completed operation.
func (s *Store) finish(op Operation, collection, key, txnID string, started time.Time, err error) {
	s.metrics.observe(op, started, err)
	s.subs.publish(&Event{
		Op:         op,
		Collection: collection,
		Key:        key,
		TxnID:      txnID,
		Err:        err,
		Time:       started,
		Duration:   time.Since(started),
	})
}

// Put stores the record with the given key, replacing any existing record.
func (s *Store) Put(collection, key string, r *record.User) (err error) {
	if err := checkKey(collection, key); err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("%w: missing record", ErrInvalidArgument)
	}
	if s.closed.IsSet() {
		return ErrShuttingDown
	}

	started := time.Now()
	defer func() {
		s.finish(OpPut, collection, key, "", started, err)
	}()

	data, err := r.Marshal(s.format)
	if err != nil {
		return err
	}

	lock := s.locks.acquire(collection)
	lock.Lock()
	defer lock.Unlock()

	err = s.storage.Put(collection, key, data)
	if err != nil {
		return fmt.Errorf("database: failed to put %s/%s: %w", collection, key, err)
	}
	s.cache.set(collection, key, r)

	log.Tracef("database: put %s/%s", collection, key)
	return nil
}

// Get returns the record with the given key.
// A missing record is not an error, it is returned as nil.
func (s *Store) Get(collection, key string) (r *record.User, err error) {
	if err := checkKey(collection, key); err != nil {
		return nil, err
	}
	if s.closed.IsSet() {
		return nil, ErrShuttingDown
	}

	started := time.Now()
	defer func() {
		s.finish(OpGet, collection, key, "", started, err)
	}()

	// Reads take the lock too, so they are ordered with writes.
	lock := s.locks.acquire(collection)
	lock.Lock()
	defer lock.Unlock()

	if cached := s.cache.get(collection, key); cached != nil {
		return cached, nil
	}

	data, err := s.storage.Get(collection, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("database: failed to get %s/%s: %w", collection, key, err)
	}

	r, err = record.Unmarshal(data, s.format)
	if err != nil {
		log.Warningf("database: failed to parse %s/%s (starts with %s): %s", collection, key, utils.SafeFirst16Bytes(data), err)
		return nil, fmt.Errorf("database: failed to parse %s/%s: %w", collection, key, err)
	}
	s.cache.set(collection, key, r)

	return r, nil
}

// Exists returns whether a record with the given key exists.
func (s *Store) Exists(collection, key string) (bool, error) {
	r, err := s.Get(collection, key)
	if err != nil {
		return false, err
	}
	return r != nil, nil
}

// List returns the serialized data of all records in the collection, in no
// particular order. A missing collection is returned as an empty list.
func (s *Store) List(collection string) (records [][]byte, err error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if s.closed.IsSet() {
		return nil, ErrShuttingDown
	}

	started := time.Now()
	defer func() {
		s.finish(OpList, collection, "", "", started, err)
	}()

	lock := s.locks.acquire(collection)
	lock.Lock()
	defer lock.Unlock()

	records, err = s.storage.List(collection)
	if err != nil {
		return nil, fmt.Errorf("database: failed to list %s: %w", collection, err)
	}

	log.Tracef("database: listed %d records from %s", len(records), collection)
	return records, nil
}

// Delete deletes the record with the given key. An empty key deletes the
// whole collection. Deleting something that does not exist is not an error.
func (s *Store) Delete(collection, key string) (err error) {
	if key == "" {
		return s.DeleteCollection(collection)
	}
	if err := checkKey(collection, key); err != nil {
		return err
	}
	if s.closed.IsSet() {
		return ErrShuttingDown
	}

	started := time.Now()
	defer func() {
		s.finish(OpDelete, collection, key, "", started, err)
	}()

	lock := s.locks.acquire(collection)
	lock.Lock()
	defer lock.Unlock()

	err = s.storage.Delete(collection, key)
	if err != nil {
		return fmt.Errorf("database: failed to delete %s/%s: %w", collection, key, err)
	}
	s.cache.remove(collection, key)

	log.Tracef("database: deleted %s/%s", collection, key)
	return nil
}

// DeleteCollection deletes the collection with all its records.
func (s *Store) DeleteCollection(collection string) (err error) {
	if err := checkCollection(collection); err != nil {
		return err
	}
	if s.closed.IsSet() {
		return ErrShuttingDown
	}

	started := time.Now()
	defer func() {
		s.finish(OpDeleteCollection, collection, "", "", started, err)
	}()

	lock := s.locks.acquire(collection)
	lock.Lock()
	defer lock.Unlock()

	err = s.storage.DeleteCollection(collection)
	if err != nil {
		return fmt.Errorf("database: failed to delete collection %s: %w", collection, err)
	}
	s.cache.removeCollection(collection)

	log.Debugf("database: deleted collection %s", collection)
	return nil
}

// Shutdown finishes all asynchronous operations, discards any open
// transaction, cancels all subscriptions and shuts down the storage.
func (s *Store) Shutdown() error {
	if !s.shuttingDown.SetToIf(false, true) {
		return nil
	}

	var result *multierror.Error

	s.asyncLock.Lock()
	async := s.async
	s.asyncLock.Unlock()
	if async != nil {
		async.exec.Stop()
	}
	s.closed.Set()

	if s.stopWatcher != nil {
		s.stopWatcher()
		<-s.watcherDone
		if s.watcherErr != nil {
			result = multierror.Append(result, fmt.Errorf("failed to watch for external changes: %w", s.watcherErr))
		}
	}

	s.activeTxnLock.Lock()
	txn := s.activeTxn
	s.activeTxnLock.Unlock()
	if txn != nil && txn.close() {
		log.Warningf("database: discarded open transaction %s on shutdown", txn.id)
	}

	s.subs.cancelAll()

	if err := s.storage.Shutdown(); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to shut down storage: %w", err))
	}
	openStores.Add(-1)

	log.Infof("database: store at %q shut down", s.opts.DataRoot)
	return result.ErrorOrNil()
}
