package database

import (
	"sort"
	"sync"
)

// lockRegistry hands out one lock per collection.
// Locks are never removed.
type lockRegistry struct {
	locks     map[string]*sync.Mutex
	locksLock sync.Mutex
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{
		locks: make(map[string]*sync.Mutex),
	}
}

// acquire returns the lock of the collection, creating it on first use.
func (lr *lockRegistry) acquire(collection string) *sync.Mutex {
	lr.locksLock.Lock()
	defer lr.locksLock.Unlock()

	lock, ok := lr.locks[collection]
	if !ok {
		lock = &sync.Mutex{}
		lr.locks[collection] = lock
	}
	return lock
}

// lockMany locks all given collections in a stable order and returns a
// function to unlock them again.
func (lr *lockRegistry) lockMany(collections []string) (unlock func()) {
	sorted := make([]string, 0, len(collections))
	seen := make(map[string]struct{}, len(collections))
	for _, c := range collections {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			sorted = append(sorted, c)
		}
	}
	sort.Strings(sorted)

	locked := make([]*sync.Mutex, 0, len(sorted))
	for _, c := range sorted {
		lock := lr.acquire(c)
		lock.Lock()
		locked = append(locked, lock)
	}

	return func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].Unlock()
		}
	}
}

// size returns the number of known collections.
func (lr *lockRegistry) size() int {
	lr.locksLock.Lock()
	defer lr.locksLock.Unlock()

	return len(lr.locks)
}
