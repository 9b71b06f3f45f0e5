package ratelimit

import (
	"errors"
	"fmt"
)

// Sentinel validation errors. Both are local to a call: they are returned
// before any store access and leave no partial effects.
var (
	// ErrInvalidBucketName is returned when a bucket name contains characters
	// outside [A-Za-z0-9-]. The empty name is not an error; it normalizes to
	// DefaultBucket.
	ErrInvalidBucketName = errors.New("invalid bucket name")

	// ErrInvalidLimitSpec is returned when the limit list is empty with no
	// configured default, or contains a non-positive requests or seconds
	// value, or a window longer than the configured retention.
	ErrInvalidLimitSpec = errors.New("invalid limit spec")
)

// StoreUnavailableError wraps a failure of the underlying event store.
//
// The engine never retries store operations and never interprets a store
// failure as an admit or a deny. The integrating caller decides whether to
// fail open (treat as admitted) or fail closed (treat as denied); see the
// HTTP middleware's FailOpen option.
type StoreUnavailableError struct {
	// Op names the store operation that failed, e.g. "record_event".
	Op string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("event store unavailable during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

// IsStoreUnavailable reports whether err is (or wraps) a store-unavailability
// failure.
func IsStoreUnavailable(err error) bool {
	var storeErr *StoreUnavailableError
	return errors.As(err, &storeErr)
}
