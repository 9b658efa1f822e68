package cache

import (
	"errors"
	"fmt"

	"github.com/roach88/runcache/internal/run"
)

// ErrorCode categorizes coordinator errors.
type ErrorCode string

const (
	// ErrCodeBackendUnavailable indicates the run store could not answer a read.
	ErrCodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"

	// ErrCodeResolverUnavailable indicates the config resolver failed a batch.
	ErrCodeResolverUnavailable ErrorCode = "RESOLVER_UNAVAILABLE"
)

var (
	// ErrIncompleteResponse is wrapped when the run store omits a requested node.
	ErrIncompleteResponse = errors.New("run store omitted a requested node")

	// ErrResultCountMismatch is wrapped when the run store returns a result
	// slice whose length differs from the submitted batch.
	ErrResultCountMismatch = errors.New("run store returned wrong number of results")
)

// BackendUnavailableError is returned by GetLastRuns when the run store read
// fails. The cache is left untouched.
type BackendUnavailableError struct {
	// Op is the store operation that failed.
	Op string

	// NodeIDs are the nodes that had to be fetched.
	NodeIDs []run.NodeID

	Err error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("%s: %s for %d node(s): %v", ErrCodeBackendUnavailable, e.Op, len(e.NodeIDs), e.Err)
}

func (e *BackendUnavailableError) Unwrap() error {
	return e.Err
}

// ResolverUnavailableError describes a failed resolver batch. It is logged,
// never returned: affected runs are cached as unresolved.
type ResolverUnavailableError struct {
	Keys []run.ResolveKey
	Err  error
}

func (e *ResolverUnavailableError) Error() string {
	return fmt.Sprintf("%s: resolving %d key(s): %v", ErrCodeResolverUnavailable, len(e.Keys), e.Err)
}

func (e *ResolverUnavailableError) Unwrap() error {
	return e.Err
}

// IsBackendUnavailable returns true if err is a BackendUnavailableError.
// Uses errors.As to handle wrapped errors.
func IsBackendUnavailable(err error) bool {
	var be *BackendUnavailableError
	return errors.As(err, &be)
}

// IsResolverUnavailable returns true if err is a ResolverUnavailableError.
func IsResolverUnavailable(err error) bool {
	var re *ResolverUnavailableError
	return errors.As(err, &re)
}
