package fstree

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/hashicorp/go-multierror"

	"github.com/safing/recordstore/database/storage"
	"github.com/safing/recordstore/log"
)

type stagedOp struct {
	op      storage.Op
	dstPath string
	pending *renameio.PendingFile
}

// Apply applies the operations in two phases.
// First, all data is written to temporary files in a staging directory. If
// this fails, nothing is applied. Then, the staged files are moved into place
// and deletions are executed, in order. Every single step is atomic, but the
// second phase as a whole is not: if it fails midway, the error wraps
// storage.ErrPartialApply and the remaining operations are still attempted.
func (fst *FSTree) Apply(ops []storage.Op) error {
	if len(ops) == 0 {
		return nil
	}

	staged, err := fst.stage(ops)
	defer func() {
		for _, s := range staged {
			if s.pending != nil {
				_ = s.pending.Cleanup()
			}
		}
	}()
	if err != nil {
		return err
	}

	var result *multierror.Error
	for _, s := range staged {
		if err := fst.applyStaged(s); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if result.ErrorOrNil() != nil {
		return fmt.Errorf("fstree: %w: %w", storage.ErrPartialApply, result)
	}
	return nil
}

func (fst *FSTree) stage(ops []storage.Op) ([]*stagedOp, error) {
	stagingPath := filepath.Join(fst.basePath, stagingDir)
	if err := os.MkdirAll(stagingPath, defaultDirMode); err != nil {
		return nil, fmt.Errorf("fstree: failed to create staging directory: %w", err)
	}

	staged := make([]*stagedOp, 0, len(ops))
	for _, op := range ops {
		s := &stagedOp{op: op}
		staged = append(staged, s)

		// check paths of all operations before touching anything
		var err error
		if op.IsCollectionDelete() {
			s.dstPath, err = fst.buildDirPath(op.Collection)
		} else {
			s.dstPath, err = fst.buildFilePath(op.Collection, op.Key)
		}
		if err != nil {
			return staged, err
		}
		if op.Delete {
			continue
		}

		s.pending, err = renameio.TempFile(stagingPath, s.dstPath)
		if err != nil {
			return staged, fmt.Errorf("fstree: failed to stage %s: %w", s.dstPath, err)
		}
		if _, err = s.pending.Write(op.Data); err != nil {
			return staged, fmt.Errorf("fstree: failed to stage %s: %w", s.dstPath, err)
		}
		if err = s.pending.Chmod(defaultFileMode); err != nil {
			return staged, fmt.Errorf("fstree: failed to stage %s: %w", s.dstPath, err)
		}
	}

	return staged, nil
}

func (fst *FSTree) applyStaged(s *stagedOp) error {
	switch {
	case s.op.IsCollectionDelete():
		if err := os.RemoveAll(s.dstPath); err != nil {
			return fmt.Errorf("could not delete collection %s: %w", s.dstPath, err)
		}

	case s.op.Delete:
		if err := os.Remove(s.dstPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("could not delete %s: %w", s.dstPath, err)
		}

	default:
		if err := os.MkdirAll(filepath.Dir(s.dstPath), defaultDirMode); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(s.dstPath), err)
		}
		if err := s.pending.CloseAtomicallyReplace(); err != nil {
			return fmt.Errorf("could not move %s into place: %w", s.dstPath, err)
		}
		log.Tracef("fstree: applied staged write to %s", s.dstPath)
	}

	return nil
}
