// Package executor runs tasks on a fixed set of workers.
//
// Every worker has its own queue and tasks are assigned to workers by their
// collection, so tasks of the same collection run one after another in the
// order they were submitted, while different collections run in parallel.
package executor

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/tevino/abool"
	"golang.org/x/sync/errgroup"

	"github.com/safing/recordstore/log"
)

// Default Executor Configuration.
const (
	DefaultWorkers   = 10
	DefaultQueueSize = 100
)

// Executor is a fixed-size worker pool.
type Executor struct {
	queues  []chan func()
	pending atomic.Int64

	workers errgroup.Group
	started *abool.AtomicBool
	stopped *abool.AtomicBool
	// queuesLock is held for reading while submitting and for writing
	// while closing the queues.
	queuesLock sync.RWMutex
}

// New returns an executor with the given number of workers, each accepting
// up to queueSize waiting tasks. Non-positive values select the defaults.
func New(workers, queueSize int) *Executor {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	e := &Executor{
		queues:  make([]chan func(), workers),
		started: abool.New(),
		stopped: abool.New(),
	}
	for i := range e.queues {
		e.queues[i] = make(chan func(), queueSize)
	}
	return e
}

// Start starts the workers. Tasks submitted before are queued until then.
func (e *Executor) Start() {
	if !e.started.SetToIf(false, true) {
		return
	}

	for i, queue := range e.queues {
		queue := queue
		e.workers.Go(func() error {
			for task := range queue {
				task()
				e.pending.Add(-1)
			}
			return nil
		})
		log.Tracef("executor: started worker #%d", i)
	}
	log.Debugf("executor: started %d workers", len(e.queues))
}

// Stop stops accepting tasks, waits until all submitted tasks are done
// and stops the workers.
func (e *Executor) Stop() {
	if !e.stopped.SetToIf(false, true) {
		return
	}

	// Workers must run to drain the queues, also if never started.
	e.Start()

	e.queuesLock.Lock()
	for _, queue := range e.queues {
		close(queue)
	}
	e.queuesLock.Unlock()

	_ = e.workers.Wait()
	log.Debugf("executor: stopped")
}

// Workers returns the number of workers.
func (e *Executor) Workers() int {
	return len(e.queues)
}

// Pending returns the number of submitted tasks that have not finished yet.
func (e *Executor) Pending() int {
	return int(e.pending.Load())
}

func (e *Executor) queueFor(collection string) chan func() {
	return e.queues[xxhash.Sum64String(collection)%uint64(len(e.queues))]
}

// Submit queues fn to run on the worker responsible for collection and
// returns a Future for its result. Submit blocks while that worker's queue
// is full. Panics of fn are returned as a *PanicError.
// Tasks must not submit further tasks to the same executor.
func Submit[T any](e *Executor, collection, name string, fn func() (T, error)) (*Future[T], error) {
	switch {
	case collection == "":
		return nil, fmt.Errorf("%w: missing collection", ErrInvalidArgument)
	case fn == nil:
		return nil, fmt.Errorf("%w: missing function", ErrInvalidArgument)
	}

	e.queuesLock.RLock()
	defer e.queuesLock.RUnlock()

	if e.stopped.IsSet() {
		return nil, ErrStopped
	}

	f := newFuture[T]()
	e.pending.Add(1)
	e.queueFor(collection) <- func() {
		runTask(f, collection, name, fn)
	}
	return f, nil
}

func runTask[T any](f *Future[T], collection, name string, fn func() (T, error)) {
	var (
		value T
		err   error
	)
	defer func() {
		// recover from panic
		panicVal := recover()
		if panicVal != nil {
			pe := newPanicError(name, collection, panicVal)
			log.Errorf("executor: %s\n%s", pe, pe.StackTrace)
			var zero T
			f.complete(zero, pe)
			return
		}
		f.complete(value, err)
	}()

	value, err = fn()
}
