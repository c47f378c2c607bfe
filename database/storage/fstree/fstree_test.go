package fstree

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safing/recordstore/database/storage"
	"github.com/safing/recordstore/database/storage/storagetest"
)

func newTestFSTree(t *testing.T) *FSTree {
	t.Helper()

	db, err := NewFSTree(&storage.Options{
		Location:  t.TempDir(),
		Extension: "json",
	})
	require.NoError(t, err)
	return db.(*FSTree) //nolint:forcetypeassert
}

func TestFSTree(t *testing.T) {
	t.Parallel()

	db := newTestFSTree(t)
	storagetest.Run(t, db)
	require.NoError(t, db.Shutdown())
}

func TestLayout(t *testing.T) {
	t.Parallel()

	db := newTestFSTree(t)
	require.NoError(t, db.Put("users", "John Doe", []byte(`{"name":"John Doe"}`)))

	data, err := os.ReadFile(filepath.Join(db.BasePath(), "users", "John Doe.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"name":"John Doe"}`, string(data))

	// foreign files are ignored
	require.NoError(t, os.WriteFile(filepath.Join(db.BasePath(), "users", "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(db.BasePath(), "users", ".hidden.json"), []byte("x"), 0o600))
	records, err := db.List("users")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	// deleting the collection removes the directory
	require.NoError(t, db.DeleteCollection("users"))
	_, err = os.Stat(filepath.Join(db.BasePath(), "users"))
	assert.True(t, os.IsNotExist(err))
}

func TestInvalidNames(t *testing.T) {
	t.Parallel()

	db := newTestFSTree(t)
	for _, name := range []string{"..", "a/b", ".staging", "."} {
		assert.ErrorIs(t, db.Put(name, "key", []byte("x")), storage.ErrInvalidKey, name)
		assert.ErrorIs(t, db.Put("users", name, []byte("x")), storage.ErrInvalidKey, name)
	}

	_, err := NewFSTree(&storage.Options{Location: t.TempDir(), Extension: ""})
	assert.Error(t, err)
	_, err = NewFSTree(&storage.Options{Extension: "json"})
	assert.Error(t, err)
}

func TestApplyStagingFailure(t *testing.T) {
	t.Parallel()

	db := newTestFSTree(t)
	require.NoError(t, db.Put("users", "keep", []byte("keep")))

	// An invalid operation at the end of the batch must prevent all writes.
	err := db.Apply([]storage.Op{
		{Collection: "users", Key: "A", Data: []byte("a")},
		{Collection: "users", Key: "keep", Delete: true},
		{Collection: "users", Key: "../escape", Data: []byte("x")},
	})
	require.ErrorIs(t, err, storage.ErrInvalidKey)

	_, err = db.Get("users", "A")
	require.ErrorIs(t, err, storage.ErrNotFound)
	data, err := db.Get("users", "keep")
	require.NoError(t, err)
	assert.Equal(t, []byte("keep"), data)

	// no staged files are left behind
	entries, err := os.ReadDir(filepath.Join(db.BasePath(), stagingDir))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestApplyPartialFailure(t *testing.T) {
	t.Parallel()

	db := newTestFSTree(t)

	// A file where the collection directory should be makes the second write fail after staging.
	require.NoError(t, os.WriteFile(filepath.Join(db.BasePath(), "blocked"), []byte("x"), 0o600))

	err := db.Apply([]storage.Op{
		{Collection: "users", Key: "A", Data: []byte("a")},
		{Collection: "blocked", Key: "B", Data: []byte("b")},
		{Collection: "users", Key: "C", Data: []byte("c")},
	})
	require.ErrorIs(t, err, storage.ErrPartialApply)

	// the other operations were still applied
	_, err = db.Get("users", "A")
	require.NoError(t, err)
	_, err = db.Get("users", "C")
	require.NoError(t, err)
}

func TestWatch(t *testing.T) {
	t.Parallel()

	db := newTestFSTree(t)
	require.NoError(t, db.Put("users", "existing", []byte("x")))

	var (
		lock    sync.Mutex
		changes = make(map[string]bool)
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchDone := make(chan error, 1)
	go func() {
		watchDone <- db.Watch(ctx, func(collection, key string) {
			lock.Lock()
			defer lock.Unlock()
			changes[collection+"/"+key] = true
		})
	}()

	seen := func(change string) func() bool {
		return func() bool {
			lock.Lock()
			defer lock.Unlock()
			return changes[change]
		}
	}

	// The watcher starts asynchronously, keep changing the file until it is noticed.
	path := filepath.Join(db.BasePath(), "users", "existing.json")
	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("changed"), 0o600)
		return seen("users/existing")()
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, os.RemoveAll(filepath.Join(db.BasePath(), "users")))
	assert.Eventually(t, seen("users/"), 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-watchDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
