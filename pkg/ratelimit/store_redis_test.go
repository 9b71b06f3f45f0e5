package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupRedisStore(t *testing.T) *RedisEventStore {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewRedisEventStore(context.Background(), client)
	if err != nil {
		t.Fatalf("NewRedisEventStore() error = %v", err)
	}
	return store
}

func TestRedisEventStore_RecordAndCount(t *testing.T) {
	ctx := context.Background()
	store := setupRedisStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ttl := time.Hour

	for _, offset := range []time.Duration{0, 10 * time.Second, 20 * time.Second} {
		if err := store.RecordEvent(ctx, "ns:client:api", base.Add(offset), ttl); err != nil {
			t.Fatalf("RecordEvent() error = %v", err)
		}
	}

	count, oldest, err := store.CountEvents(ctx, "ns:client:api", base.Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountEvents() error = %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	if !oldest.Equal(base) {
		t.Errorf("oldest = %v, want %v", oldest, base)
	}

	// The since bound is exclusive: an event exactly at since does not count.
	count, oldest, err = store.CountEvents(ctx, "ns:client:api", base)
	if err != nil {
		t.Fatalf("CountEvents() error = %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if !oldest.Equal(base.Add(10 * time.Second)) {
		t.Errorf("oldest = %v, want %v", oldest, base.Add(10*time.Second))
	}
}

func TestRedisEventStore_CountEvents_KeyIsolation(t *testing.T) {
	ctx := context.Background()
	store := setupRedisStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	if err := store.RecordEvent(ctx, "ns:alice:api", base, time.Hour); err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}

	count, _, err := store.CountEvents(ctx, "ns:bob:api", base.Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountEvents() error = %v", err)
	}
	if count != 0 {
		t.Errorf("count for untouched key = %d, want 0", count)
	}
}

func TestRedisEventStore_RecordEventTrimsExpired(t *testing.T) {
	ctx := context.Background()
	store := setupRedisStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ttl := time.Hour

	// A key that stays active has its TTL refreshed on every write, so
	// retention must be enforced per event on the write path.
	if err := store.RecordEvent(ctx, "ns:client:api", base, ttl); err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}
	if err := store.RecordEvent(ctx, "ns:client:api", base.Add(2*time.Hour), ttl); err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}

	count, oldest, err := store.CountEvents(ctx, "ns:client:api", time.Time{})
	if err != nil {
		t.Fatalf("CountEvents() error = %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 (event past retention should be trimmed)", count)
	}
	if !oldest.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("oldest = %v, want %v", oldest, base.Add(2*time.Hour))
	}
}

func TestRedisEventStore_RecordIfUnderLimit(t *testing.T) {
	ctx := context.Background()
	store := setupRedisStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ttl := time.Hour
	checks := []WindowCheck{{Window: time.Minute, Limit: 2}}

	for i := 0; i < 2; i++ {
		allowed, usages, err := store.RecordIfUnderLimit(ctx, "ns:client:api", base.Add(time.Duration(i)*time.Second), checks, ttl)
		if err != nil {
			t.Fatalf("RecordIfUnderLimit() error = %v", err)
		}
		if !allowed {
			t.Fatalf("request %d should be admitted", i+1)
		}
		if usages[0].Count != i {
			t.Errorf("request %d pre-record count = %d, want %d", i+1, usages[0].Count, i)
		}
	}

	allowed, usages, err := store.RecordIfUnderLimit(ctx, "ns:client:api", base.Add(2*time.Second), checks, ttl)
	if err != nil {
		t.Fatalf("RecordIfUnderLimit() error = %v", err)
	}
	if allowed {
		t.Error("third request should be denied")
	}
	if usages[0].Count != 2 {
		t.Errorf("pre-record count = %d, want 2", usages[0].Count)
	}
	if !usages[0].Oldest.Equal(base) {
		t.Errorf("oldest = %v, want %v", usages[0].Oldest, base)
	}

	// Denied requests record nothing.
	count, _, err := store.CountEvents(ctx, "ns:client:api", base.Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountEvents() error = %v", err)
	}
	if count != 2 {
		t.Errorf("count after denial = %d, want 2", count)
	}
}

func TestRedisEventStore_RecordIfUnderLimitTrimsExpired(t *testing.T) {
	ctx := context.Background()
	store := setupRedisStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ttl := time.Hour
	checks := []WindowCheck{{Window: time.Minute, Limit: 1}}

	if err := store.RecordEvent(ctx, "ns:client:api", base, ttl); err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}

	// Two hours later the seeded event is past retention: the script trims
	// it before counting, so the set holds only the new event afterwards.
	allowed, _, err := store.RecordIfUnderLimit(ctx, "ns:client:api", base.Add(2*time.Hour), checks, ttl)
	if err != nil {
		t.Fatalf("RecordIfUnderLimit() error = %v", err)
	}
	if !allowed {
		t.Error("request after retention should be admitted")
	}

	count, _, err := store.CountEvents(ctx, "ns:client:api", time.Time{})
	if err != nil {
		t.Fatalf("CountEvents() error = %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 (event past retention should be trimmed)", count)
	}
}

func TestRedisEventStore_MultiWindowDeny(t *testing.T) {
	ctx := context.Background()
	store := setupRedisStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ttl := 2 * time.Hour
	checks := []WindowCheck{
		{Window: 10 * time.Second, Limit: 5},
		{Window: time.Hour, Limit: 2},
	}

	// Two old events violate only the hour window.
	for _, offset := range []time.Duration{-30 * time.Minute, -20 * time.Minute} {
		if err := store.RecordEvent(ctx, "ns:client:api", base.Add(offset), ttl); err != nil {
			t.Fatalf("RecordEvent() error = %v", err)
		}
	}

	allowed, usages, err := store.RecordIfUnderLimit(ctx, "ns:client:api", base, checks, ttl)
	if err != nil {
		t.Fatalf("RecordIfUnderLimit() error = %v", err)
	}
	if allowed {
		t.Error("request should be denied by the hour window")
	}
	if usages[0].Count != 0 {
		t.Errorf("short window count = %d, want 0", usages[0].Count)
	}
	if usages[1].Count != 2 {
		t.Errorf("hour window count = %d, want 2", usages[1].Count)
	}
	if !usages[1].Oldest.Equal(base.Add(-30 * time.Minute)) {
		t.Errorf("hour window oldest = %v, want %v", usages[1].Oldest, base.Add(-30*time.Minute))
	}
}
