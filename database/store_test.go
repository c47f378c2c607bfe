package database

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/safing/recordstore/config"
	"github.com/safing/recordstore/database/record"
	"github.com/safing/recordstore/database/storage"
	"github.com/safing/recordstore/database/storage/hashmap"
	"github.com/safing/recordstore/log"
)

var testStorageTypes = []string{"fstree", "hashmap", "bbolt", "badger"}

var (
	errTestShutdown = errors.New("test shutdown error")
	errTestWatch    = errors.New("test watch error")
)

// failingStorage is a hashmap that fails to watch and to shut down.
type failingStorage struct {
	storage.Interface
}

func (fs *failingStorage) Shutdown() error {
	_ = fs.Interface.Shutdown()
	return errTestShutdown
}

func (fs *failingStorage) Watch(_ context.Context, _ func(collection, key string)) error {
	return errTestWatch
}

func init() {
	_ = storage.Register("failing", func(opts *storage.Options) (storage.Interface, error) {
		db, err := hashmap.NewHashMap(opts)
		if err != nil {
			return nil, err
		}
		return &failingStorage{Interface: db}, nil
	})
}

func newTestStore(t *testing.T, storageType string, modify ...func(*config.Options)) *Store {
	t.Helper()

	opts := config.Defaults()
	opts.StorageType = storageType
	opts.DataRoot = t.TempDir()
	opts.LogLevel = "warning"
	for _, fn := range modify {
		fn(opts)
	}

	s, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, s.Shutdown())
	})
	return s
}

func testUser(name, company string) *record.User {
	return &record.User{
		Name:    name,
		Age:     "28",
		Contact: "+1 555 0100",
		Company: company,
		Address: &record.Address{
			City:       "Seattle",
			State:      "WA",
			Country:    "USA",
			PostalCode: "98101",
		},
	}
}

func recordPath(s *Store, collection, key string) string {
	return filepath.Join(s.opts.DataRoot, collection, key+"."+s.format.Extension())
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = New(&config.Options{StorageType: "fstree"})
	assert.ErrorIs(t, err, config.ErrInvalidOptions)

	_, err = New(&config.Options{StorageType: "hashmap", WatchExternalChanges: true})
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	for _, storageType := range testStorageTypes {
		storageType := storageType
		t.Run(storageType, func(t *testing.T) {
			t.Parallel()

			s := newTestStore(t, storageType)
			alice := testUser("alice", "Amazon")

			// missing read
			r, err := s.Get("users", "alice")
			require.NoError(t, err)
			assert.Nil(t, r)

			require.NoError(t, s.Put("users", "alice", alice))
			r, err = s.Get("users", "alice")
			require.NoError(t, err)
			assert.True(t, alice.Equal(r), "got %+v", r)

			exists, err := s.Exists("users", "alice")
			require.NoError(t, err)
			assert.True(t, exists)

			// tombstone
			require.NoError(t, s.Delete("users", "alice"))
			r, err = s.Get("users", "alice")
			require.NoError(t, err)
			assert.Nil(t, r)

			// deleting again is fine
			require.NoError(t, s.Delete("users", "alice"))
		})
	}
}

func TestFormats(t *testing.T) {
	t.Parallel()

	for _, format := range []string{"json", "cbor", "msgpack", "yaml"} {
		format := format
		t.Run(format, func(t *testing.T) {
			t.Parallel()

			s := newTestStore(t, "fstree", func(o *config.Options) {
				o.Format = format
				o.CacheSize = 0
			})
			alice := testUser("alice", "Amazon")
			require.NoError(t, s.Put("users", "alice", alice))

			_, err := os.Stat(recordPath(s, "users", "alice"))
			require.NoError(t, err)

			r, err := s.Get("users", "alice")
			require.NoError(t, err)
			assert.True(t, alice.Equal(r), "got %+v", r)
		})
	}
}

func TestScenario(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, "fstree")

	alice := testUser("alice", "Amazon")
	require.NoError(t, s.Put("users", "alice", alice))
	r, err := s.Get("users", "alice")
	require.NoError(t, err)
	assert.True(t, alice.Equal(r))

	alice.Company = "Google"
	require.NoError(t, s.Put("users", "alice", alice))
	r, err = s.Get("users", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Google", r.Company)

	data, err := os.ReadFile(recordPath(s, "users", "alice"))
	require.NoError(t, err)
	assert.Equal(t, "Google", gjson.GetBytes(data, "company").String())
	assert.Equal(t, "98101", gjson.GetBytes(data, "address.pincode").String())
}

func TestList(t *testing.T) {
	t.Parallel()

	for _, storageType := range testStorageTypes {
		storageType := storageType
		t.Run(storageType, func(t *testing.T) {
			t.Parallel()

			s := newTestStore(t, storageType)

			records, err := s.List("users")
			require.NoError(t, err)
			assert.Empty(t, records)

			inserted := make(map[string]*record.User)
			for i := 0; i < 10; i++ {
				u := testUser(fmt.Sprintf("user%d", i), "Amazon")
				inserted[u.Name] = u
				require.NoError(t, s.Put("users", u.Name, u))
			}
			// other collections are not listed
			require.NoError(t, s.Put("admins", "root", testUser("root", "Amazon")))

			records, err = s.List("users")
			require.NoError(t, err)
			require.Len(t, records, len(inserted))
			for _, data := range records {
				name := gjson.GetBytes(data, "name").String()
				u, err := record.Unmarshal(data, s.Format())
				require.NoError(t, err)
				assert.True(t, inserted[name].Equal(u), "got %+v", u)
			}
		})
	}
}

func TestDeleteCollection(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, "fstree")
	require.NoError(t, s.Put("users", "alice", testUser("alice", "Amazon")))
	require.NoError(t, s.Put("users", "bob", testUser("bob", "Amazon")))
	require.NoError(t, s.Put("admins", "alice", testUser("alice", "Amazon")))

	require.NoError(t, s.Delete("users", ""))
	_, err := os.Stat(filepath.Join(s.opts.DataRoot, "users"))
	assert.True(t, os.IsNotExist(err))

	r, err := s.Get("users", "alice")
	require.NoError(t, err)
	assert.Nil(t, r)

	// other collections are untouched
	r, err = s.Get("admins", "alice")
	require.NoError(t, err)
	assert.NotNil(t, r)

	// deleting a missing collection is fine
	require.NoError(t, s.DeleteCollection("users"))
}

func TestInvalidArguments(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, "hashmap")
	alice := testUser("alice", "Amazon")

	for _, tc := range []struct {
		collection string
		key        string
	}{
		{"", "alice"},
		{"users", ""},
		{"../users", "alice"},
		{"users", "a/b"},
		{".", "alice"},
		{".hidden", "alice"},
		{"users", ".alice"},
	} {
		if tc.key != "" {
			assert.ErrorIs(t, s.Put(tc.collection, tc.key, alice), ErrInvalidArgument, tc)
			_, err := s.Get(tc.collection, tc.key)
			assert.ErrorIs(t, err, ErrInvalidArgument, tc)
			assert.ErrorIs(t, s.Delete(tc.collection, tc.key), ErrInvalidArgument, tc)
		} else {
			assert.ErrorIs(t, s.Put(tc.collection, tc.key, alice), ErrInvalidArgument, tc)
		}
	}
	assert.ErrorIs(t, s.Put("users", "alice", nil), ErrInvalidArgument)
	_, err := s.List("")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, s.Delete("", ""), ErrInvalidArgument)
}

func TestCachePerCollection(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, "fstree")
	require.NoError(t, s.Put("users", "alice", testUser("alice", "Amazon")))
	require.NoError(t, s.Put("admins", "alice", testUser("alice", "Google")))

	r, err := s.Get("users", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Amazon", r.Company)
	r, err = s.Get("admins", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Google", r.Company)

	// returned records are copies
	r.Company = "Changed"
	r, err = s.Get("admins", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Google", r.Company)

	// dropping a collection only drops its cache entries
	require.NoError(t, s.DeleteCollection("users"))
	assert.Equal(t, 1, s.cache.len())
}

func TestConcurrentPuts(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, "fstree")

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("user%02d", i)
			errs <- s.Put("users", name, testUser(name, "Amazon"))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	records, err := s.List("users")
	require.NoError(t, err)
	require.Len(t, records, 50)
	seen := make(map[string]struct{})
	for _, data := range records {
		u, err := record.Unmarshal(data, s.Format())
		require.NoError(t, err, "corrupted record: %s", data)
		seen[u.Name] = struct{}{}
	}
	assert.Len(t, seen, 50)
}

func TestLockRegistry(t *testing.T) {
	t.Parallel()

	lr := newLockRegistry()

	var (
		wg    sync.WaitGroup
		locks = make([]interface{}, 20)
	)
	for i := range locks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			locks[i] = lr.acquire("users")
		}(i)
	}
	wg.Wait()
	for _, lock := range locks {
		assert.Same(t, locks[0], lock)
	}
	assert.Equal(t, 1, lr.size())

	unlock := lr.lockMany([]string{"b", "a", "b", "users"})
	assert.Equal(t, 3, lr.size())
	assert.False(t, lr.acquire("a").TryLock())
	unlock()
	assert.True(t, lr.acquire("a").TryLock())
}

func TestEventsAndMetrics(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, "hashmap")
	sub := s.Subscribe(10)

	require.NoError(t, s.Put("users", "alice", testUser("alice", "Amazon")))
	_, err := s.Get("users", "alice")
	require.NoError(t, err)

	e := <-sub.Feed
	assert.Equal(t, OpPut, e.Op)
	assert.Equal(t, "users", e.Collection)
	assert.Equal(t, "alice", e.Key)
	assert.False(t, e.Failed())
	e = <-sub.Feed
	assert.Equal(t, OpGet, e.Op)

	sub.Cancel()
	_, ok := <-sub.Feed
	assert.False(t, ok)
	sub.Cancel()

	var buf bytes.Buffer
	s.WriteMetrics(&buf)
	out := buf.String()
	assert.Contains(t, out, `recordstore_operations_total{op="put",outcome="ok"} 1`)
	assert.Contains(t, out, `recordstore_cache_hits_total 1`)
	assert.Contains(t, out, `recordstore_cache_entries 1`)
}

func TestDroppedEvents(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, "hashmap")
	sub := s.Subscribe(1)
	defer sub.Cancel()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Put("users", "alice", testUser("alice", "Amazon")))
	}
	assert.Len(t, sub.Feed, 1)
	assert.Equal(t, uint64(2), s.metrics.droppedEvents.Get())
}

func TestShutdown(t *testing.T) {
	t.Parallel()

	opts := config.Defaults()
	opts.StorageType = "hashmap"
	s, err := New(opts)
	require.NoError(t, err)

	sub := s.Subscribe(0)
	txn := s.Begin()
	require.NoError(t, s.Shutdown())
	require.NoError(t, s.Shutdown())

	assert.False(t, txn.Active())
	_, ok := <-sub.Feed
	assert.False(t, ok)
	assert.ErrorIs(t, s.Put("users", "alice", testUser("alice", "Amazon")), ErrShuttingDown)
}

func TestShutdownErrors(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, "failing")
	require.NoError(t, s.startWatcher())

	err := s.Shutdown()
	require.Error(t, err)
	assert.ErrorIs(t, err, errTestWatch)
	assert.ErrorIs(t, err, errTestShutdown)
}

func TestLogLevelOfFirstStore(t *testing.T) { //nolint:paralleltest // Modifies the global log level.
	previous := log.GetLogLevel()
	defer log.SetLogLevel(previous)

	_ = newTestStore(t, "hashmap", func(o *config.Options) {
		o.LogLevel = "debug"
	})
	assert.Equal(t, log.DebugLevel, log.GetLogLevel())

	// a second store does not change the level of the first one
	_ = newTestStore(t, "hashmap", func(o *config.Options) {
		o.LogLevel = "error"
	})
	assert.Equal(t, log.DebugLevel, log.GetLogLevel())
}
