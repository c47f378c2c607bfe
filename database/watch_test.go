package database

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safing/recordstore/config"
)

func TestWatchExternalChanges(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, "fstree", func(o *config.Options) {
		o.WatchExternalChanges = true
	})
	require.NoError(t, s.Put("users", "alice", testUser("alice", "Amazon")))

	changed := testUser("alice", "Google")
	data, err := changed.Marshal(s.Format())
	require.NoError(t, err)

	// The watcher starts asynchronously, keep changing the file until it is noticed.
	assert.Eventually(t, func() bool {
		if err := os.WriteFile(recordPath(s, "users", "alice"), data, 0o600); err != nil {
			return false
		}
		r, err := s.Get("users", "alice")
		return err == nil && r != nil && r.Company == "Google"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestExternalChangeHoldsCollectionLock(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, "fstree")
	require.NoError(t, s.Put("users", "alice", testUser("alice", "Amazon")))

	lock := s.locks.acquire("users")
	lock.Lock()
	done := make(chan struct{})
	go func() {
		s.externalChange("users", "alice")
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("cache was dropped while the collection was locked")
	case <-time.After(50 * time.Millisecond):
	}

	// A read holding the lock caches what it read before the change.
	s.cache.set("users", "alice", testUser("alice", "Stale"))
	lock.Unlock()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("external change did not finish")
	}
	assert.Nil(t, s.cache.get("users", "alice"))
}
