package executor

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Errors.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrStopped         = errors.New("executor is stopped")
)

// PanicError wraps a panic of a task.
type PanicError struct {
	Message string

	TaskName   string
	Collection string

	PanicValue interface{}
	StackTrace string
}

func newPanicError(taskName, collection string, panicValue interface{}) *PanicError {
	pe := &PanicError{
		TaskName:   taskName,
		Collection: collection,
		PanicValue: panicValue,
		StackTrace: string(debug.Stack()),
	}
	pe.Message = fmt.Sprintf("task %s on %s panicked: %v", taskName, collection, panicValue)
	return pe
}

// Error returns the string representation of the error.
func (pe *PanicError) Error() string {
	return pe.Message
}

// IsPanic returns whether the given error is a recovered panic and additionally returns it, if true.
func IsPanic(err error) (bool, *PanicError) {
	var pe *PanicError
	if errors.As(err, &pe) {
		return true, pe
	}
	return false, nil
}
