package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
)

// ErrNotADirectory is returned when a directory is expected, but a file was found.
var ErrNotADirectory = errors.New("path exists, but is not a directory")

// EnsureDirectory ensures that the given directory exists and that is has the given permissions set.
// If a directory is created, also all missing directories up to the required one are created with the given permissions.
// Contrary to a plain os.MkdirAll, an existing file is never removed to make room for the directory.
func EnsureDirectory(path string, perm os.FileMode) error {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		err = os.MkdirAll(path, perm)
		if err != nil {
			return fmt.Errorf("could not create dir %s: %w", path, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to access %s: %w", path, err)
	case !info.IsDir():
		return fmt.Errorf("%w: %s", ErrNotADirectory, path)
	}

	if info.Mode().Perm() != perm {
		if runtime.GOOS == "windows" {
			return nil
		}
		return os.Chmod(path, perm)
	}
	return nil
}

// DirExists returns whether the given path exists and is a directory.
func DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to access %s: %w", path, err)
	default:
		return info.IsDir(), nil
	}
}
