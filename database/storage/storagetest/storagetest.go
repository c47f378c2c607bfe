// Package storagetest provides a test suite every storage backend must pass.
package storagetest

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safing/recordstore/database/storage"
)

// Run runs the full suite against the given storage. The storage must be empty.
func Run(t *testing.T, db storage.Interface) {
	t.Helper()

	t.Run("crud", func(t *testing.T) { testCRUD(t, db) })
	t.Run("collections", func(t *testing.T) { testCollections(t, db) })
	t.Run("apply", func(t *testing.T) { testApply(t, db) })
	t.Run("concurrent", func(t *testing.T) { testConcurrent(t, db) })
}

func testCRUD(t *testing.T, db storage.Interface) {
	// missing
	_, err := db.Get("crud", "A")
	require.ErrorIs(t, err, storage.ErrNotFound)

	// put and get
	require.NoError(t, db.Put("crud", "A", []byte("banana")))
	data, err := db.Get("crud", "A")
	require.NoError(t, err)
	assert.Equal(t, []byte("banana"), data)

	// overwrite
	require.NoError(t, db.Put("crud", "A", []byte("apple")))
	data, err = db.Get("crud", "A")
	require.NoError(t, err)
	assert.Equal(t, []byte("apple"), data)

	// delete, twice
	require.NoError(t, db.Delete("crud", "A"))
	require.NoError(t, db.Delete("crud", "A"))
	_, err = db.Get("crud", "A")
	require.ErrorIs(t, err, storage.ErrNotFound)

	// delete in missing collection
	require.NoError(t, db.Delete("crud-missing", "A"))

	// invalid keys
	assert.ErrorIs(t, db.Put("", "A", []byte("x")), storage.ErrInvalidKey)
	assert.ErrorIs(t, db.Put("crud", "", []byte("x")), storage.ErrInvalidKey)
}

func testCollections(t *testing.T, db storage.Interface) {
	records, err := db.List("fruits")
	require.NoError(t, err)
	assert.Empty(t, records)

	for _, name := range []string{"apple", "banana", "cherry"} {
		require.NoError(t, db.Put("fruits", name, []byte(name)))
	}
	require.NoError(t, db.Put("vegetables", "carrot", []byte("carrot")))

	records, err = db.List("fruits")
	require.NoError(t, err)
	assert.ElementsMatch(t, [][]byte{[]byte("apple"), []byte("banana"), []byte("cherry")}, records)

	require.NoError(t, db.DeleteCollection("fruits"))
	require.NoError(t, db.DeleteCollection("fruits"))

	records, err = db.List("fruits")
	require.NoError(t, err)
	assert.Empty(t, records)
	_, err = db.Get("fruits", "apple")
	require.ErrorIs(t, err, storage.ErrNotFound)

	// other collections are untouched
	data, err := db.Get("vegetables", "carrot")
	require.NoError(t, err)
	assert.Equal(t, []byte("carrot"), data)
}

func testApply(t *testing.T, db storage.Interface) {
	require.NoError(t, db.Put("batch", "old", []byte("old")))
	require.NoError(t, db.Put("batch-gone", "x", []byte("x")))

	err := db.Apply([]storage.Op{
		{Collection: "batch", Key: "A", Data: []byte("a")},
		{Collection: "batch", Key: "B", Data: []byte("b")},
		{Collection: "batch", Key: "old", Delete: true},
		{Collection: "batch-gone", Delete: true},
		{Collection: "batch-new", Key: "C", Data: []byte("c")},
	})
	require.NoError(t, err)

	records, err := db.List("batch")
	require.NoError(t, err)
	assert.ElementsMatch(t, [][]byte{[]byte("a"), []byte("b")}, records)

	records, err = db.List("batch-gone")
	require.NoError(t, err)
	assert.Empty(t, records)

	data, err := db.Get("batch-new", "C")
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), data)

	// an invalid operation fails the batch before anything is written
	err = db.Apply([]storage.Op{
		{Collection: "batch", Key: "D", Data: []byte("d")},
		{Collection: "batch", Key: "", Data: []byte("invalid")},
	})
	require.Error(t, err)
	_, err = db.Get("batch", "D")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, db.Apply(nil))
}

func testConcurrent(t *testing.T, db storage.Interface) {
	const n = 50

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- db.Put("concurrent", fmt.Sprintf("key-%02d", i), []byte(fmt.Sprintf("value-%02d", i)))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	records, err := db.List("concurrent")
	require.NoError(t, err)
	require.Len(t, records, n)

	values := make([]string, 0, n)
	for _, r := range records {
		values = append(values, string(r))
	}
	sort.Strings(values)
	for i, v := range values {
		assert.Equal(t, fmt.Sprintf("value-%02d", i), v)
	}
}
