package backend

import (
	"errors"
	"fmt"
)

const (
	CodeUniqueViolation = "23505"
	CodeNotFound        = "PGRST116"
	CodeUnknown         = "unknown"
)

var (
	ErrMissingIdentifier = errors.New("missing identifier")
	ErrNotFound          = errors.New("row not found")
)

// RemoteError is a failed remote call, labelled with the call site that
// issued it.
type RemoteError struct {
	Op      string
	Code    string
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s(%s): %s", e.Op, e.Code, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// UniqueViolation builds the error drivers return when an insert collides
// with a unique constraint named after the table and its columns.
func UniqueViolation(constraint string, err error) *RemoteError {
	return &RemoteError{
		Code:    CodeUniqueViolation,
		Message: fmt.Sprintf("duplicate key value violates unique constraint %q", constraint),
		Err:     err,
	}
}

// ConstraintName follows the postgres naming of implicit unique indexes.
func ConstraintName(table string, fields ...string) string {
	name := table
	for _, f := range fields {
		name += "_" + f
	}
	return name + "_key"
}

// Label wraps err with the name of the operation that failed. Errors that
// already carry a code keep it.
func Label(op string, err error) error {
	if err == nil {
		return nil
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return &RemoteError{Op: op, Code: remote.Code, Message: remote.Message, Err: err}
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return &RemoteError{Op: op, Code: CodeNotFound, Message: err.Error(), Err: err}
	case errors.Is(err, ErrMissingIdentifier):
		return &RemoteError{Op: op, Code: "precondition", Message: err.Error(), Err: err}
	}
	return &RemoteError{Op: op, Code: CodeUnknown, Message: err.Error(), Err: err}
}

func IsUniqueViolation(err error) bool {
	var remote *RemoteError
	return errors.As(err, &remote) && remote.Code == CodeUniqueViolation
}
