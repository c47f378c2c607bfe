package database

import (
	"context"
	"fmt"

	"github.com/safing/recordstore/database/storage"
	"github.com/safing/recordstore/log"
)

func (s *Store) startWatcher() error {
	watcher, ok := s.storage.(storage.Watcher)
	if !ok {
		return fmt.Errorf("%w: storage %s cannot watch for external changes", ErrInvalidArgument, s.opts.StorageType)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopWatcher = cancel
	s.watcherDone = make(chan struct{})

	go func() {
		defer close(s.watcherDone)
		if err := watcher.Watch(ctx, s.externalChange); err != nil {
			s.watcherErr = err
			log.Errorf("database: stopped watching for external changes: %s", err)
		}
	}()
	return nil
}

// externalChange drops cached records that were changed on disk.
// It holds the collection lock, so a concurrent read cannot put the old
// record back into the cache afterwards.
func (s *Store) externalChange(collection, key string) {
	lock := s.locks.acquire(collection)
	lock.Lock()
	defer lock.Unlock()

	if key == "" {
		s.cache.removeCollection(collection)
	} else {
		s.cache.remove(collection, key)
	}
	log.Tracef("database: dropped cache for external change of %s/%s", collection, key)
}
