/*
Package fstree provides a dead simple file-based storage backend.
Every collection is a directory below the base path and every record is a
single file named after its key, so the data can easily be accessed directly.
*/
package fstree

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio"
	"golang.org/x/sync/errgroup"

	"github.com/safing/recordstore/database/storage"
	"github.com/safing/recordstore/log"
	"github.com/safing/recordstore/utils"
)

const (
	defaultFileMode = os.FileMode(0o644)
	defaultDirMode  = os.FileMode(0o755)

	// stagingDir holds files of a batch until they are moved into place.
	stagingDir = ".staging"

	maxParallelReads = 8
)

// FSTree storage.
type FSTree struct {
	basePath  string
	extension string
}

func init() {
	_ = storage.Register("fstree", NewFSTree)
}

// NewFSTree returns a (new) FSTree storage.
func NewFSTree(opts *storage.Options) (storage.Interface, error) {
	if opts.Location == "" {
		return nil, errors.New("fstree: missing location")
	}
	if opts.Extension == "" || strings.ContainsAny(opts.Extension, `./\`) {
		return nil, fmt.Errorf("fstree: invalid extension %q", opts.Extension)
	}

	basePath, err := filepath.Abs(opts.Location)
	if err != nil {
		return nil, fmt.Errorf("fstree: failed to validate path %s: %w", opts.Location, err)
	}

	err = utils.EnsureDirectory(basePath, defaultDirMode)
	if err != nil {
		return nil, fmt.Errorf("fstree: failed to open base path: %w", err)
	}

	// Remove leftovers of an interrupted batch.
	err = os.RemoveAll(filepath.Join(basePath, stagingDir))
	if err != nil {
		log.Warningf("fstree: failed to clean staging directory: %s", err)
	}

	return &FSTree{
		basePath:  basePath,
		extension: opts.Extension,
	}, nil
}

// BasePath returns the absolute directory the collections are stored in.
func (fst *FSTree) BasePath() string {
	return fst.basePath
}

func checkName(name string) error {
	if err := utils.CheckName(name); err != nil {
		return fmt.Errorf("%w: %q: %w", storage.ErrInvalidKey, name, err)
	}
	return nil
}

func (fst *FSTree) buildDirPath(collection string) (string, error) {
	if err := checkName(collection); err != nil {
		return "", err
	}

	dstPath := filepath.Join(fst.basePath, collection) // Join also calls Clean()
	if filepath.Dir(dstPath) != fst.basePath {
		return "", fmt.Errorf("fstree: collection integrity check failed, compiled path is %s", dstPath)
	}
	return dstPath, nil
}

func (fst *FSTree) buildFilePath(collection, key string) (string, error) {
	dirPath, err := fst.buildDirPath(collection)
	if err != nil {
		return "", err
	}
	if err := checkName(key); err != nil {
		return "", err
	}

	dstPath := filepath.Join(dirPath, key+"."+fst.extension)
	if filepath.Dir(dstPath) != dirPath {
		return "", fmt.Errorf("fstree: key integrity check failed, compiled path is %s", dstPath)
	}
	return dstPath, nil
}

// Get returns the data of a record.
func (fst *FSTree) Get(collection, key string) ([]byte, error) {
	dstPath, err := fst.buildFilePath(collection, key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(dstPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("fstree: failed to read file %s: %w", dstPath, err)
	}
	return data, nil
}

// Put stores the data of a record.
func (fst *FSTree) Put(collection, key string, data []byte) error {
	dstPath, err := fst.buildFilePath(collection, key)
	if err != nil {
		return err
	}

	err = renameio.WriteFile(dstPath, data, defaultFileMode)
	if err != nil {
		// create dir and try again
		err = os.MkdirAll(filepath.Dir(dstPath), defaultDirMode)
		if err != nil {
			return fmt.Errorf("fstree: failed to create directory %s: %w", filepath.Dir(dstPath), err)
		}
		err = renameio.WriteFile(dstPath, data, defaultFileMode)
		if err != nil {
			return fmt.Errorf("fstree: could not write file %s: %w", dstPath, err)
		}
	}

	return nil
}

// Delete deletes a record.
func (fst *FSTree) Delete(collection, key string) error {
	dstPath, err := fst.buildFilePath(collection, key)
	if err != nil {
		return err
	}

	err = os.Remove(dstPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("fstree: could not delete %s: %w", dstPath, err)
	}
	return nil
}

// DeleteCollection deletes a collection directory with all its records.
func (fst *FSTree) DeleteCollection(collection string) error {
	dirPath, err := fst.buildDirPath(collection)
	if err != nil {
		return err
	}

	err = os.RemoveAll(dirPath)
	if err != nil {
		return fmt.Errorf("fstree: could not delete collection %s: %w", dirPath, err)
	}
	return nil
}

// List returns the data of all records in a collection.
func (fst *FSTree) List(collection string) ([][]byte, error) {
	dirPath, err := fst.buildDirPath(collection)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return [][]byte{}, nil
		}
		return nil, fmt.Errorf("fstree: failed to read collection %s: %w", dirPath, err)
	}

	suffix := "." + fst.extension
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() ||
			strings.HasPrefix(name, ".") ||
			!strings.HasSuffix(name, suffix) {
			continue
		}
		files = append(files, filepath.Join(dirPath, name))
	}

	// read files in parallel, every goroutine writes its own slot
	results := make([][]byte, len(files))
	group := new(errgroup.Group)
	group.SetLimit(maxParallelReads)
	for i, file := range files {
		i, file := i, file
		group.Go(func() error {
			data, err := os.ReadFile(file)
			switch {
			case err == nil:
				results[i] = data
			case errors.Is(err, fs.ErrNotExist):
				// removed in the meantime
			default:
				return fmt.Errorf("fstree: failed to read file %s: %w", file, err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	records := results[:0]
	for _, data := range results {
		if data != nil {
			records = append(records, data)
		}
	}
	return records, nil
}

// Shutdown shuts down the storage.
func (fst *FSTree) Shutdown() error {
	return nil
}
