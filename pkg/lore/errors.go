package lore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady matches every error returned because the repository has
	// not finished initializing.
	ErrNotReady = errors.New("lore repository not ready")

	ErrNotInitialized = fmt.Errorf("%w: not initialized", ErrNotReady)
	ErrInitializing   = fmt.Errorf("%w: initialization in progress", ErrNotReady)

	// ErrUpstreamUnavailable matches failures of the embedding provider or
	// the vector index.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// UpstreamError records which external call failed. It matches
// ErrUpstreamUnavailable and unwraps to the provider's own error.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

func upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Op: op, Err: err}
}
