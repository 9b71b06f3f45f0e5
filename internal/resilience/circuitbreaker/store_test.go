package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"rate-gate/pkg/ratelimit"
)

// brokenStore fails every operation, implementing only the basic interface.
type brokenStore struct {
	err error
}

func (s *brokenStore) RecordEvent(ctx context.Context, key string, ts time.Time, ttl time.Duration) error {
	return s.err
}

func (s *brokenStore) CountEvents(ctx context.Context, key string, since time.Time) (int, time.Time, error) {
	return 0, time.Time{}, s.err
}

func TestWrapStore_PreservesAtomicCapability(t *testing.T) {
	atomic := ratelimit.NewInMemoryEventStore(ratelimit.InMemoryStoreConfig{})
	wrapped := WrapStore(atomic, StoreConfig())
	if _, ok := wrapped.(ratelimit.AtomicEventStore); !ok {
		t.Error("wrapping an atomic store should preserve RecordIfUnderLimit")
	}

	basic := &brokenStore{err: errors.New("down")}
	wrapped = WrapStore(basic, StoreConfig())
	if _, ok := wrapped.(ratelimit.AtomicEventStore); ok {
		t.Error("wrapping a basic store must not fabricate atomic capability")
	}
}

func TestStoreBreaker_PassesThroughHealthyStore(t *testing.T) {
	ctx := context.Background()
	inner := ratelimit.NewInMemoryEventStore(ratelimit.InMemoryStoreConfig{})
	store := WrapStore(inner, StoreConfig())
	now := time.Now()

	if err := store.RecordEvent(ctx, "k", now, time.Hour); err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}

	count, oldest, err := store.CountEvents(ctx, "k", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountEvents() error = %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if !oldest.Equal(now) {
		t.Errorf("oldest = %v, want %v", oldest, now)
	}

	atomic := store.(ratelimit.AtomicEventStore)
	allowed, usages, err := atomic.RecordIfUnderLimit(ctx, "k", now.Add(time.Second),
		[]ratelimit.WindowCheck{{Window: time.Minute, Limit: 5}}, time.Hour)
	if err != nil {
		t.Fatalf("RecordIfUnderLimit() error = %v", err)
	}
	if !allowed {
		t.Error("record should be allowed under the limit")
	}
	if len(usages) != 1 || usages[0].Count != 1 {
		t.Errorf("usages = %v, want one window with pre-record count 1", usages)
	}
}

func TestStoreBreaker_InnerErrorsPassThrough(t *testing.T) {
	innerErr := &ratelimit.StoreUnavailableError{Op: "record_event", Err: errors.New("connection refused")}
	store := WrapStore(&brokenStore{err: innerErr}, StoreConfig())

	err := store.RecordEvent(context.Background(), "k", time.Now(), time.Hour)
	if !errors.Is(err, innerErr.Err) {
		t.Errorf("error = %v, want the inner store error", err)
	}
}

func TestStoreBreaker_FailsFastWhenOpen(t *testing.T) {
	ctx := context.Background()
	cfg := StoreConfig()
	store := WrapStore(&brokenStore{err: errors.New("down")}, cfg)

	// Drive the breaker open.
	for i := uint32(0); i < cfg.MinRequests; i++ {
		_ = store.RecordEvent(ctx, "k", time.Now(), time.Hour)
	}

	err := store.RecordEvent(ctx, "k", time.Now(), time.Hour)
	if !ratelimit.IsStoreUnavailable(err) {
		t.Errorf("open-circuit rejection = %v, want StoreUnavailableError", err)
	}

	_, _, err = store.CountEvents(ctx, "k", time.Now())
	if !ratelimit.IsStoreUnavailable(err) {
		t.Errorf("open-circuit rejection = %v, want StoreUnavailableError", err)
	}
}
