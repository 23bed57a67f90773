package utils

import (
	"errors"
	"fmt"
)

// StoreError records which storage operation failed and what it was doing.
type StoreError struct {
	Op     string
	Detail string
	Err    error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Detail
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Detail, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// StoreErr builds a StoreError.
func StoreErr(op, detail string, err error) error {
	return &StoreError{Op: op, Detail: detail, Err: err}
}

// FailedOp returns the Op of the outermost StoreError in err's chain, or
// "unknown".
func FailedOp(err error) string {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Op
	}
	return "unknown"
}
