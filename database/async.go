package database

import (
	"fmt"

	"github.com/safing/recordstore/database/record"
	"github.com/safing/recordstore/executor"
)

// Async runs store operations on the executor of the store. Operations on
// the same collection run in the order they were submitted. Invalid
// arguments are rejected before anything is submitted.
type Async struct {
	store *Store
	exec  *executor.Executor
}

// Async returns the asynchronous interface of the store. The executor is
// started on first use and stopped by Shutdown.
func (s *Store) Async() *Async {
	s.asyncLock.Lock()
	defer s.asyncLock.Unlock()

	if s.async != nil {
		return s.async
	}

	a := &Async{
		store: s,
		exec:  executor.New(s.opts.Workers, s.opts.QueueSize),
	}
	a.exec.Start()
	if s.shuttingDown.IsSet() {
		a.exec.Stop()
	}
	s.metrics.set.NewGauge("recordstore_executor_pending", func() float64 {
		return float64(a.exec.Pending())
	})
	s.async = a
	return a
}

func (a *Async) submitErr(err error) error {
	if err == nil {
		return nil
	}
	if a.store.shuttingDown.IsSet() {
		return ErrShuttingDown
	}
	return fmt.Errorf("database: failed to submit: %w", err)
}

// Put stores the record asynchronously.
func (a *Async) Put(collection, key string, r *record.User) (*executor.Future[struct{}], error) {
	if err := checkKey(collection, key); err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("%w: missing record", ErrInvalidArgument)
	}
	r = copyUser(r)

	f, err := executor.Submit(a.exec, collection, "put", func() (struct{}, error) {
		return struct{}{}, a.store.Put(collection, key, r)
	})
	return f, a.submitErr(err)
}

// Get reads the record asynchronously. A missing record resolves to nil.
func (a *Async) Get(collection, key string) (*executor.Future[*record.User], error) {
	if err := checkKey(collection, key); err != nil {
		return nil, err
	}

	f, err := executor.Submit(a.exec, collection, "get", func() (*record.User, error) {
		return a.store.Get(collection, key)
	})
	return f, a.submitErr(err)
}

// List reads all records of the collection asynchronously.
func (a *Async) List(collection string) (*executor.Future[[][]byte], error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}

	f, err := executor.Submit(a.exec, collection, "list", func() ([][]byte, error) {
		return a.store.List(collection)
	})
	return f, a.submitErr(err)
}

// Delete deletes the record asynchronously. An empty key deletes the whole
// collection.
func (a *Async) Delete(collection, key string) (*executor.Future[struct{}], error) {
	if key == "" {
		if err := checkCollection(collection); err != nil {
			return nil, err
		}
	} else if err := checkKey(collection, key); err != nil {
		return nil, err
	}

	f, err := executor.Submit(a.exec, collection, "delete", func() (struct{}, error) {
		return struct{}{}, a.store.Delete(collection, key)
	})
	return f, a.submitErr(err)
}

// Pending returns the number of operations that have not finished yet.
func (a *Async) Pending() int {
	return a.exec.Pending()
}

// Close waits for all submitted operations and shuts down the store.
func (a *Async) Close() error {
	return a.store.Shutdown()
}
