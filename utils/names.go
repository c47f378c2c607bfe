package utils

import (
	"errors"
	"strings"
)

// Name errors.
var (
	ErrEmptyName   = errors.New("name is empty")
	ErrUnsafeName  = errors.New("name contains path separators or relative path elements")
	ErrControlChar = errors.New("name contains control characters")
	ErrHiddenName  = errors.New("name starts with a dot")
)

// CheckName checks if the given name can be safely used as a single path
// element, e.g. a directory or file name below a known root.
// Names starting with a dot are reserved for hidden and temporary files.
func CheckName(name string) error {
	switch {
	case name == "":
		return ErrEmptyName
	case name == "." || name == "..":
		return ErrUnsafeName
	case strings.ContainsAny(name, `/\`):
		return ErrUnsafeName
	case strings.HasPrefix(name, "."):
		return ErrHiddenName
	}

	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return ErrControlChar
		}
	}
	return nil
}
