package storage

import "errors"

// Errors for storages.
var (
	ErrNotFound       = errors.New("storage entry not found")
	ErrInvalidKey     = errors.New("invalid key")
	ErrPartialApply   = errors.New("batch was only partially applied")
	ErrUnknownStorage = errors.New("unknown storage type")
)
