package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rate-gate/pkg/ratelimit"
)

// tracedStore decorates an EventStore so every store operation produces a
// client span carrying the event key and result. Store latency dominates
// rate limit checks, so these spans are the first place to look when
// admission slows down.
type tracedStore struct {
	inner ratelimit.EventStore
}

// tracedAtomicStore additionally forwards the atomic check-and-record
// primitive, so tracing does not demote an atomic store to the two-call
// protocol.
type tracedAtomicStore struct {
	tracedStore
	innerAtomic ratelimit.AtomicEventStore
}

// WrapStore wraps an event store with per-operation tracing.
// When the inner store supports atomic check-and-record, the returned store
// does too.
func WrapStore(store ratelimit.EventStore) ratelimit.EventStore {
	ts := tracedStore{inner: store}

	if atomic, ok := store.(ratelimit.AtomicEventStore); ok {
		return &tracedAtomicStore{
			tracedStore: ts,
			innerAtomic: atomic,
		}
	}

	return &ts
}

func (s *tracedStore) RecordEvent(ctx context.Context, key string, ts time.Time, ttl time.Duration) error {
	ctx, span := GetTracer().Start(ctx, "store.RecordEvent",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("ratelimit.key", key),
			attribute.Int64("ratelimit.ttl_ms", ttl.Milliseconds()),
		),
	)
	defer span.End()

	err := s.inner.RecordEvent(ctx, key, ts, ttl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *tracedStore) CountEvents(ctx context.Context, key string, since time.Time) (int, time.Time, error) {
	ctx, span := GetTracer().Start(ctx, "store.CountEvents",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("ratelimit.key", key),
		),
	)
	defer span.End()

	count, oldest, err := s.inner.CountEvents(ctx, key, since)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return count, oldest, err
	}

	span.SetAttributes(attribute.Int("ratelimit.count", count))
	return count, oldest, nil
}

func (s *tracedAtomicStore) RecordIfUnderLimit(ctx context.Context, key string, ts time.Time, checks []ratelimit.WindowCheck, ttl time.Duration) (bool, []ratelimit.WindowUsage, error) {
	ctx, span := GetTracer().Start(ctx, "store.RecordIfUnderLimit",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("ratelimit.key", key),
			attribute.Int("ratelimit.windows", len(checks)),
		),
	)
	defer span.End()

	allowed, usages, err := s.innerAtomic.RecordIfUnderLimit(ctx, key, ts, checks, ttl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return allowed, usages, err
	}

	span.SetAttributes(attribute.Bool("ratelimit.allowed", allowed))
	return allowed, usages, nil
}
