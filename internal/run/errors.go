package run

import (
	"errors"
	"fmt"
)

// ErrAlreadyCompleted is returned when a run stored as completed is
// resubmitted as not completed.
var ErrAlreadyCompleted = errors.New("run already stored as completed")

// ErrInvalidRun is returned for runs missing the fields needed to store them.
var ErrInvalidRun = errors.New("invalid run")

// WriteErrorCode categorizes per-run storage failures.
type WriteErrorCode string

const (
	// ErrCodeWriteRejected indicates the store refused the run on its merits.
	ErrCodeWriteRejected WriteErrorCode = "WRITE_REJECTED"

	// ErrCodeWriteFailed indicates the store could not persist the run.
	ErrCodeWriteFailed WriteErrorCode = "WRITE_FAILED"
)

// WriteError reports why one run of a batch was not persisted.
// It never aborts sibling runs of the same batch.
type WriteError struct {
	Code  WriteErrorCode
	RunID ID
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s: run %s: %v", e.Code, e.RunID, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// NewRejectedError creates a WriteError for a run the store refused.
func NewRejectedError(id ID, err error) *WriteError {
	return &WriteError{Code: ErrCodeWriteRejected, RunID: id, Err: err}
}

// NewFailedError creates a WriteError for a run the store could not persist.
func NewFailedError(id ID, err error) *WriteError {
	return &WriteError{Code: ErrCodeWriteFailed, RunID: id, Err: err}
}

// IsRejected returns true if err is a WriteError with ErrCodeWriteRejected.
// Uses errors.As to handle wrapped errors.
func IsRejected(err error) bool {
	var we *WriteError
	if errors.As(err, &we) {
		return we.Code == ErrCodeWriteRejected
	}
	return false
}
