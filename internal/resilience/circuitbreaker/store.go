package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"rate-gate/pkg/ratelimit"
)

// storeBreaker wraps an EventStore so repeated backend failures trip the
// circuit and subsequent calls fail fast instead of piling up on a dead
// store. Rejections surface as StoreUnavailableError, so the integrator's
// fail-open/fail-closed policy applies unchanged.
type storeBreaker struct {
	cb    *CircuitBreaker
	inner ratelimit.EventStore
}

// atomicStoreBreaker additionally forwards the atomic check-and-record
// primitive, so wrapping does not demote an atomic store to the two-call
// protocol.
type atomicStoreBreaker struct {
	storeBreaker
	innerAtomic ratelimit.AtomicEventStore
}

// WrapStore wraps an event store with circuit breaker protection.
// When the inner store supports atomic check-and-record, the returned store
// does too.
func WrapStore(store ratelimit.EventStore, cfg Config) ratelimit.EventStore {
	sb := storeBreaker{
		cb:    New(cfg),
		inner: store,
	}

	if atomic, ok := store.(ratelimit.AtomicEventStore); ok {
		return &atomicStoreBreaker{
			storeBreaker: sb,
			innerAtomic:  atomic,
		}
	}

	return &sb
}

func (s *storeBreaker) RecordEvent(ctx context.Context, key string, ts time.Time, ttl time.Duration) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.inner.RecordEvent(ctx, key, ts, ttl)
	})
	return translateBreakerErr("record_event", err)
}

type countResult struct {
	count  int
	oldest time.Time
}

func (s *storeBreaker) CountEvents(ctx context.Context, key string, since time.Time) (int, time.Time, error) {
	result, err := s.cb.Execute(func() (interface{}, error) {
		count, oldest, err := s.inner.CountEvents(ctx, key, since)
		if err != nil {
			return nil, err
		}
		return countResult{count: count, oldest: oldest}, nil
	})
	if err != nil {
		return 0, time.Time{}, translateBreakerErr("count_events", err)
	}

	r := result.(countResult)
	return r.count, r.oldest, nil
}

type recordResult struct {
	allowed bool
	usages  []ratelimit.WindowUsage
}

func (s *atomicStoreBreaker) RecordIfUnderLimit(ctx context.Context, key string, ts time.Time, checks []ratelimit.WindowCheck, ttl time.Duration) (bool, []ratelimit.WindowUsage, error) {
	result, err := s.cb.Execute(func() (interface{}, error) {
		allowed, usages, err := s.innerAtomic.RecordIfUnderLimit(ctx, key, ts, checks, ttl)
		if err != nil {
			return nil, err
		}
		return recordResult{allowed: allowed, usages: usages}, nil
	})
	if err != nil {
		return false, nil, translateBreakerErr("record_if_under_limit", err)
	}

	r := result.(recordResult)
	return r.allowed, r.usages, nil
}

// translateBreakerErr maps breaker rejections onto the store's
// unavailability error so callers need only one failure taxonomy. Inner
// store errors pass through unchanged.
func translateBreakerErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &ratelimit.StoreUnavailableError{Op: op, Err: err}
	}
	return err
}
