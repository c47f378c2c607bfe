package database

import (
	"errors"
)

// Errors.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrTxnClosed       = errors.New("transaction is closed")
	ErrPartialCommit   = errors.New("transaction was only partially committed")
	ErrShuttingDown    = errors.New("database is shutting down")
)
