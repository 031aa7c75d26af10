package core

// errors.go defines the failure taxonomy shared by every layer.
//
//   - DecodeError: the input stream could not be read. Aborts the whole ingestion.
//   - ValidationError: one field violates a constraint. Aborts one row in a
//     per-record import and the whole import in a bulk import.
//   - NotFoundError: the aggregate does not exist or is not owned by the caller.
//   - ConflictError: a uniqueness or optimistic-concurrency violation.
//   - StorageError: I/O failure against the durable store. Never retried here.
//
// Match on the types with errors.As, or on ErrNotFound / ErrConflict with
// errors.Is.

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound matches any NotFoundError.
	ErrNotFound = errors.New("not found")

	// ErrConflict matches any ConflictError.
	ErrConflict = errors.New("conflict")
)

// DecodeError reports unreadable tabular input.
type DecodeError struct {
	Row int // source line being read, 0 if unknown
	Err error
}

func (e *DecodeError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("invalid csv: decode row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("invalid csv: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Field   string // Field/column name
	Value   string // The invalid value
	Message string // Human-readable error message
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ValidationErrors collects every violation found in one input.
type ValidationErrors []*ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// OrNil returns nil when no violation was collected.
func (errs ValidationErrors) OrNil() error {
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// As lets errors.As find the first collected violation.
func (errs ValidationErrors) As(target any) bool {
	if len(errs) == 0 {
		return false
	}
	if t, ok := target.(**ValidationError); ok {
		*t = errs[0]
		return true
	}
	return false
}

// NotFoundError reports a missing or foreign-owned aggregate.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError reports a uniqueness violation or a lost conditional update.
type ConflictError struct {
	Resource string
	Field    string
	Value    string
	Err      error
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("%s conflict", e.Resource)
	if e.Field != "" {
		msg += fmt.Sprintf(" on %s=%q", e.Field, e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

func (e *ConflictError) Unwrap() error { return e.Err }

// StorageError wraps a failure of the durable store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsRowRecoverable reports whether a per-record import may record err against
// the current row and continue with the next one.
func IsRowRecoverable(err error) bool {
	var (
		ve *ValidationError
		ce *ConflictError
		se *StorageError
	)
	return errors.As(err, &ve) || errors.As(err, &ce) || errors.As(err, &se)
}
