package database

import (
	"fmt"
	"time"
)

// Operation names a store operation.
type Operation string

// Operations.
const (
	OpPut              Operation = "put"
	OpGet              Operation = "get"
	OpList             Operation = "list"
	OpDelete           Operation = "delete"
	OpDeleteCollection Operation = "delete-collection"
	OpCommit           Operation = "commit"
	OpRollback         Operation = "rollback"
)

// Event describes a completed operation.
type Event struct {
	Op         Operation
	Collection string
	Key        string
	// TxnID is set for operations applied by a transaction commit.
	TxnID    string
	Err      error
	Time     time.Time
	Duration time.Duration
}

// Failed returns whether the operation failed.
func (e *Event) Failed() bool {
	return e.Err != nil
}

func (e *Event) String() string {
	target := e.Collection
	if e.Key != "" {
		target += "/" + e.Key
	}

	outcome := "ok"
	if e.Err != nil {
		outcome = "failed: " + e.Err.Error()
	}

	if e.TxnID != "" {
		return fmt.Sprintf("%s %s (txn %s): %s", e.Op, target, e.TxnID, outcome)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, target, outcome)
}
