package fstree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/safing/recordstore/log"
)

// Watch reports changes to record files and collection directories.
// Changes made through the storage itself are reported too.
func (fst *FSTree) Watch(ctx context.Context, changed func(collection, key string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fstree: failed to create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	err = watcher.Add(fst.basePath)
	if err != nil {
		return fmt.Errorf("fstree: failed to watch %s: %w", fst.basePath, err)
	}

	// watch existing collections
	entries, err := os.ReadDir(fst.basePath)
	if err != nil {
		return fmt.Errorf("fstree: failed to read %s: %w", fst.basePath, err)
	}
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			fst.watchCollection(watcher, filepath.Join(fst.basePath, entry.Name()))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			fst.handleEvent(watcher, event, changed)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warningf("fstree: watcher error: %s", err)
		}
	}
}

func (fst *FSTree) watchCollection(watcher *fsnotify.Watcher, dirPath string) {
	if err := watcher.Add(dirPath); err != nil {
		log.Warningf("fstree: failed to watch collection %s: %s", dirPath, err)
	}
}

func (fst *FSTree) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event, changed func(collection, key string)) {
	rel, err := filepath.Rel(fst.basePath, event.Name)
	if err != nil {
		return
	}
	parts := strings.Split(rel, string(filepath.Separator))
	for _, part := range parts {
		if strings.HasPrefix(part, ".") {
			return
		}
	}

	switch len(parts) {
	case 1:
		// collection directory
		if event.Has(fsnotify.Create) {
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				fst.watchCollection(watcher, event.Name)
			}
		}
		if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
			changed(parts[0], "")
		}

	case 2:
		// record file
		suffix := "." + fst.extension
		if !strings.HasSuffix(parts[1], suffix) {
			return
		}
		if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
			event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
			changed(parts[0], strings.TrimSuffix(parts[1], suffix))
		}
	}
}
