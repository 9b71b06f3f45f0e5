// Package ratelimit implements shared sliding-window admission control.
//
// The engine decides, per incoming request, whether a client identity has
// exceeded one or more configured limits for a named bucket, and records
// admitted requests as timestamped events. State lives in a pluggable event
// store so that many stateless application processes can share one set of
// counters. The package is framework-agnostic; HTTP integration lives in a
// thin adapter layer.
package ratelimit

import (
	"context"
	"time"
)

// WindowCheck describes one trailing window to evaluate against the event
// stream of a key: at most Limit events within the last Window.
type WindowCheck struct {
	// Window is the trailing window length.
	Window time.Duration

	// Limit is the maximum number of events allowed inside the window.
	Limit int
}

// WindowUsage reports the observed state of one trailing window.
type WindowUsage struct {
	// Count is the number of events inside the window.
	Count int

	// Oldest is the timestamp of the earliest event inside the window.
	// It is the zero time when Count is 0.
	Oldest time.Time
}

// EventStore is the contract over the external shared store holding admission
// events.
//
// Implementations can use Redis sorted sets, in-memory maps, or other
// backends. All methods must be safe for concurrent use. Store failures must
// surface as *StoreUnavailableError and must never be swallowed or converted
// into an implicit admit or deny.
type EventStore interface {
	// RecordEvent durably stores one admission event for the given key,
	// auto-expiring it after ttl.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - key: Composite event key (see EventKey)
	//   - ts: Time of the admitted request, sub-second precision
	//   - ttl: Retention lifetime; must exceed the longest window that will
	//     ever query this key
	RecordEvent(ctx context.Context, key string, ts time.Time, ttl time.Duration) error

	// CountEvents returns the number of events for key with a timestamp
	// strictly greater than since, and the earliest qualifying timestamp.
	//
	// The returned oldest is the zero time when count is 0. The count must be
	// exact: an implementation may pre-filter coarsely for efficiency but must
	// never exclude a qualifying event.
	CountEvents(ctx context.Context, key string, since time.Time) (count int, oldest time.Time, err error)
}

// AtomicEventStore extends EventStore with an atomic check-and-record
// primitive.
//
// The check of every window and the conditional write must happen as a single
// atomic store operation, closing the check-then-record race that the
// two-call protocol leaves open. Stores that can express this (e.g. a Redis
// Lua script, or an in-memory store under one lock) should implement it; the
// engine prefers it automatically.
type AtomicEventStore interface {
	EventStore

	// RecordIfUnderLimit counts every window in checks, and records the event
	// at ts only if all of them are under their limit.
	//
	// The returned usages correspond to checks by index and report the state
	// BEFORE the event was recorded, whether or not it was.
	//
	// Returns:
	//   - allowed: true if every window was under its limit and the event was
	//     recorded
	//   - usages: per-window counts and oldest timestamps, pre-record
	//   - err: store failure; no decision can be derived from it
	RecordIfUnderLimit(ctx context.Context, key string, ts time.Time, checks []WindowCheck, ttl time.Duration) (allowed bool, usages []WindowUsage, err error)
}

// Metrics is the interface for recording admission-control metrics.
//
// Implementations can use Prometheus or custom metrics systems. A NoopMetrics
// implementation is provided for callers that do not collect metrics.
type Metrics interface {
	// RecordAllowed records an admitted request for a bucket.
	RecordAllowed(bucket string)

	// RecordDenied records a denied request for a bucket.
	RecordDenied(bucket string)

	// RecordCheckDuration records how long one CheckAndRecord call took,
	// including store round trips.
	RecordCheckDuration(bucket string, d time.Duration)

	// RecordStoreError records a store failure for the given operation name.
	RecordStoreError(op string)
}

// Clock provides an abstraction for time operations to enable testing.
//
// Production code uses SystemClock; tests inject controllable clocks.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// SystemClock is a Clock implementation that uses the system time.
type SystemClock struct{}

// Now returns the current system time.
func (c *SystemClock) Now() time.Time {
	return time.Now()
}
