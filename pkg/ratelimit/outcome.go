package ratelimit

import (
	"fmt"
	"strconv"
)

// Quota is the user-facing metadata derived for one configured limit:
// the limit value, how many requests remain in its window, and how many
// seconds until the window frees one unit of capacity.
//
// Quotas are pure presentation, recomputed per call from store state; they
// are never persisted.
type Quota struct {
	// Label numbers the limit within its bucket: empty for a single-limit
	// bucket, "1", "2", ... in configured order otherwise.
	Label string

	// Limit is the limit's Requests value.
	Limit int

	// Remaining is the number of requests left in the window, floored at 0.
	Remaining int

	// Reset is the number of whole seconds until the oldest event in the
	// window ages out. 0 when the window holds no events.
	Reset int
}

// Outcome is the result of one CheckAndRecord call.
//
// An Exceeded outcome is a normal decision, not an error: store and
// validation failures are returned as errors instead.
type Outcome struct {
	// Allowed indicates whether the request was admitted. Admitted requests
	// have been recorded as an event; denied requests have not.
	Allowed bool

	// Bypassed is true when the engine is disabled (master switch or
	// environment gating) and the request passed through without any store
	// access. Bypassed outcomes carry no quota table.
	Bypassed bool

	// Bucket is the normalized bucket name the decision applies to.
	Bucket string

	// Identity is the client identity the decision applies to.
	Identity string

	// Violated is the limit selected to report on denial: among all violated
	// limits, the one with the largest Seconds (slowest to recover). nil when
	// the request was admitted.
	Violated *Limit

	// RetryAfter is the number of whole seconds until the violated limit
	// frees one unit of capacity. 0 when the request was admitted.
	RetryAfter int

	// Quotas holds one entry per evaluated limit, in configured order. For
	// admitted requests the values already reflect the just-recorded event.
	Quotas []Quota
}

// IsAllowed reports whether the request was admitted.
func (o *Outcome) IsAllowed() bool {
	return o.Allowed
}

// IsDenied reports whether the request was denied.
func (o *Outcome) IsDenied() bool {
	return !o.Allowed
}

// String returns a human-readable representation of the outcome.
func (o *Outcome) String() string {
	if o.Bypassed {
		return fmt.Sprintf("Outcome{Bypassed, Bucket: %s, Identity: %s}", o.Bucket, o.Identity)
	}
	if o.Allowed {
		return fmt.Sprintf("Outcome{Allowed, Bucket: %s, Identity: %s, Quotas: %d}",
			o.Bucket, o.Identity, len(o.Quotas))
	}
	return fmt.Sprintf("Outcome{Exceeded, Bucket: %s, Identity: %s, Violated: %s, RetryAfter: %ds}",
		o.Bucket, o.Identity, o.Violated, o.RetryAfter)
}

// ErrorMessage renders the plain-text denial message:
//
//	Rate limit exceeded (<requests> requests in <seconds> seconds). Try again in <try_again> seconds.
//
// It returns the empty string for admitted or bypassed outcomes.
func (o *Outcome) ErrorMessage() string {
	if o.Allowed || o.Violated == nil {
		return ""
	}
	return "Rate limit exceeded (" + strconv.Itoa(o.Violated.Requests) + " requests in " +
		strconv.Itoa(o.Violated.Seconds) + " seconds). Try again in " +
		strconv.Itoa(o.RetryAfter) + " seconds."
}
