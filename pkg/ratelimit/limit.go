package ratelimit

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultBucket is the reserved bucket name substituted for an empty or
// absent bucket name.
const DefaultBucket = "default"

// bucketNameRe is the allowed character set for bucket names.
var bucketNameRe = regexp.MustCompile(`^[A-Za-z0-9-]*$`)

// Limit is a single rate threshold: at most Requests events within a trailing
// window of Seconds seconds. Limits are immutable values; a bucket carries an
// ordered slice of them, all evaluated against the same event stream.
type Limit struct {
	// Requests is the maximum number of admitted requests inside the window.
	Requests int

	// Seconds is the trailing window length in seconds.
	Seconds int
}

// Window returns the limit's trailing window as a time.Duration.
func (l Limit) Window() time.Duration {
	return time.Duration(l.Seconds) * time.Second
}

// String returns a compact "requests/seconds" representation, e.g. "100/60".
func (l Limit) String() string {
	return fmt.Sprintf("%d/%d", l.Requests, l.Seconds)
}

// ParseLimit parses the compact "requests/seconds" form produced by
// Limit.String, e.g. "100/60" for 100 requests per 60 seconds.
//
// Returns ErrInvalidLimitSpec (wrapped) on malformed input or non-positive
// values.
func ParseLimit(s string) (Limit, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 {
		return Limit{}, fmt.Errorf("%w: %q is not in requests/seconds form", ErrInvalidLimitSpec, s)
	}

	requests, err := strconv.Atoi(parts[0])
	if err != nil {
		return Limit{}, fmt.Errorf("%w: requests %q is not an integer", ErrInvalidLimitSpec, parts[0])
	}

	seconds, err := strconv.Atoi(parts[1])
	if err != nil {
		return Limit{}, fmt.Errorf("%w: seconds %q is not an integer", ErrInvalidLimitSpec, parts[1])
	}

	limit := Limit{Requests: requests, Seconds: seconds}
	if err := limit.validate(); err != nil {
		return Limit{}, err
	}

	return limit, nil
}

// LimitsFromPairs converts a flat list of numeric pairs into an ordered Limit
// slice: LimitsFromPairs(10, 60, 1000, 3600) yields 10 req/60s and
// 1000 req/3600s. This is a convenience adapter for call sites migrating from
// positional argument lists; the engine itself only accepts []Limit.
func LimitsFromPairs(values ...int) ([]Limit, error) {
	if len(values) == 0 || len(values)%2 != 0 {
		return nil, fmt.Errorf("%w: need a non-empty, even number of values, got %d", ErrInvalidLimitSpec, len(values))
	}

	limits := make([]Limit, 0, len(values)/2)
	for i := 0; i < len(values); i += 2 {
		limit := Limit{Requests: values[i], Seconds: values[i+1]}
		if err := limit.validate(); err != nil {
			return nil, err
		}
		limits = append(limits, limit)
	}

	return limits, nil
}

// validate checks that both fields are positive.
func (l Limit) validate() error {
	if l.Requests <= 0 {
		return fmt.Errorf("%w: requests must be positive, got %d", ErrInvalidLimitSpec, l.Requests)
	}
	if l.Seconds <= 0 {
		return fmt.Errorf("%w: seconds must be positive, got %d", ErrInvalidLimitSpec, l.Seconds)
	}
	return nil
}

// NormalizeBucket applies the default-name substitution and validates the
// bucket character set.
//
// An empty name normalizes to DefaultBucket. Any other name must match
// [A-Za-z0-9-]*; otherwise ErrInvalidBucketName is returned (wrapped with the
// offending name).
func NormalizeBucket(name string) (string, error) {
	if name == "" {
		return DefaultBucket, nil
	}
	if !bucketNameRe.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidBucketName, name)
	}
	return name, nil
}

// EventKey composes the store key scoping one event stream:
// namespace, client identity and bucket, colon-separated.
//
// All limits of a bucket share this key; different identities and different
// buckets never share one.
func EventKey(namespace, identity, bucket string) string {
	return namespace + ":" + identity + ":" + bucket
}
