package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// Limiter is the single entry point of the admission-control engine.
//
// It combines bucket normalization, limit validation, window accounting
// against the event store, the admit/deny decision, event recording, and the
// quota table derivation. A Limiter holds no mutable shared state beyond its
// store reference; it is safe for concurrent use from any number of request
// contexts without internal locking, because all coordination is delegated to
// the store.
//
// When the store implements AtomicEventStore, check and record happen as one
// atomic store operation. Otherwise the engine falls back to a check-then-
// record protocol: between the read and the write, concurrent requests for
// the same identity and bucket can over-admit by up to the number of in-flight
// requests minus one. That soft bound is inherent to the two-call protocol;
// prefer an atomic store where exact enforcement matters.
type Limiter struct {
	cfg     Config
	store   EventStore
	atomic  AtomicEventStore // nil when the store has no atomic primitive
	metrics Metrics
	clock   Clock
}

// NewLimiter creates a Limiter from a configuration and an event store.
//
// Parameters:
//   - cfg: Engine configuration; defaults are applied and the result is
//     validated
//   - store: Event store backend; required
//   - metrics: Metrics collector; nil defaults to NoopMetrics
//   - clock: Time source; nil defaults to SystemClock
//
// Returns an error when the store is missing or the configuration is invalid.
func NewLimiter(cfg Config, store EventStore, metrics Metrics, clock Clock) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("event store is required")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid limiter config: %w", err)
	}

	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	if clock == nil {
		clock = &SystemClock{}
	}

	atomicStore, _ := store.(AtomicEventStore)
	if atomicStore == nil {
		slog.Warn("event store has no atomic check-and-record primitive, enforcement is best-effort under concurrency",
			slog.String("namespace", cfg.Namespace))
	}

	return &Limiter{
		cfg:     cfg,
		store:   store,
		atomic:  atomicStore,
		metrics: metrics,
		clock:   clock,
	}, nil
}

// CheckAndRecord performs one admission decision for (bucket, identity).
//
// Protocol:
//  1. Normalize the bucket name; fail with ErrInvalidBucketName otherwise.
//  2. Resolve limits: an empty slice falls back to the configured defaults;
//     still-empty or malformed limits fail with ErrInvalidLimitSpec. All
//     validation happens before any store access.
//  3. If the engine is disabled for this environment, return a bypassed
//     admit without touching the store.
//  4. Evaluate every limit against the event stream, never counting the
//     current request against its own check. Denied requests record nothing.
//  5. Admitted requests are recorded with ttl = configured retention, and the
//     returned quota table already reflects the new event (derived from the
//     counts read in this same call; no second store read).
//
// A denial is a normal *Outcome, not an error. Store failures are returned as
// *StoreUnavailableError and must not be interpreted as a decision.
func (l *Limiter) CheckAndRecord(ctx context.Context, bucket, identity string, limits []Limit) (*Outcome, error) {
	start := time.Now()

	bucket, err := NormalizeBucket(bucket)
	if err != nil {
		return nil, err
	}

	if len(limits) == 0 {
		limits = l.cfg.DefaultLimits
	}
	if len(limits) == 0 {
		return nil, fmt.Errorf("%w: no limits supplied and no default limits configured", ErrInvalidLimitSpec)
	}
	for i, limit := range limits {
		if err := limit.validate(); err != nil {
			return nil, fmt.Errorf("limits[%d]: %w", i, err)
		}
		if limit.Seconds > l.cfg.RetentionSeconds {
			return nil, fmt.Errorf("%w: limits[%d] window %ds exceeds retention %ds",
				ErrInvalidLimitSpec, i, limit.Seconds, l.cfg.RetentionSeconds)
		}
	}

	if !l.cfg.active() {
		return &Outcome{Allowed: true, Bypassed: true, Bucket: bucket, Identity: identity}, nil
	}

	defer func() {
		l.metrics.RecordCheckDuration(bucket, time.Since(start))
	}()

	key := EventKey(l.cfg.Namespace, identity, bucket)
	now := l.clock.Now()
	ttl := time.Duration(l.cfg.RetentionSeconds) * time.Second

	var (
		allowed bool
		usages  []WindowUsage
	)
	if l.atomic != nil {
		allowed, usages, err = l.checkAtomic(ctx, key, now, limits, ttl)
	} else {
		allowed, usages, err = l.checkAndRecordRacy(ctx, key, now, limits, ttl)
	}
	if err != nil {
		return nil, err
	}

	if !allowed {
		violated, retryAfter := selectViolated(limits, usages, now)
		l.metrics.RecordDenied(bucket)
		return &Outcome{
			Allowed:    false,
			Bucket:     bucket,
			Identity:   identity,
			Violated:   &violated,
			RetryAfter: retryAfter,
			Quotas:     denyQuotas(limits, usages, now),
		}, nil
	}

	l.metrics.RecordAllowed(bucket)
	return &Outcome{
		Allowed:  true,
		Bucket:   bucket,
		Identity: identity,
		Quotas:   admitQuotas(limits, usages, now),
	}, nil
}

// checkAtomic evaluates and conditionally records in a single store call.
func (l *Limiter) checkAtomic(ctx context.Context, key string, now time.Time, limits []Limit, ttl time.Duration) (bool, []WindowUsage, error) {
	checks := make([]WindowCheck, len(limits))
	for i, limit := range limits {
		checks[i] = WindowCheck{Window: limit.Window(), Limit: limit.Requests}
	}

	allowed, usages, err := l.atomic.RecordIfUnderLimit(ctx, key, now, checks, ttl)
	if err != nil {
		l.metrics.RecordStoreError("record_if_under_limit")
		return false, nil, err
	}
	return allowed, usages, nil
}

// checkAndRecordRacy is the two-call fallback: one count per limit, then a
// write when every limit admits. The window between read and write is the
// documented soft-limit race.
func (l *Limiter) checkAndRecordRacy(ctx context.Context, key string, now time.Time, limits []Limit, ttl time.Duration) (bool, []WindowUsage, error) {
	usages := make([]WindowUsage, len(limits))
	allowed := true
	for i, limit := range limits {
		count, oldest, err := l.store.CountEvents(ctx, key, now.Add(-limit.Window()))
		if err != nil {
			l.metrics.RecordStoreError("count_events")
			return false, nil, err
		}
		usages[i] = WindowUsage{Count: count, Oldest: oldest}
		if count >= limit.Requests {
			allowed = false
		}
	}

	if allowed {
		if err := l.store.RecordEvent(ctx, key, now, ttl); err != nil {
			l.metrics.RecordStoreError("record_event")
			return false, nil, err
		}
	}
	return allowed, usages, nil
}

// selectViolated picks the limit to report on denial: among all violated
// limits, the one with the largest window, since it is the slowest to
// recover. Ties on window length keep the earliest in configured order. The
// second return value is that limit's retry-after in whole seconds.
func selectViolated(limits []Limit, usages []WindowUsage, now time.Time) (Limit, int) {
	var (
		violated Limit
		oldest   time.Time
		found    bool
	)
	for i, limit := range limits {
		if usages[i].Count < limit.Requests {
			continue
		}
		if !found || limit.Seconds > violated.Seconds {
			violated = limit
			oldest = usages[i].Oldest
			found = true
		}
	}
	return violated, resetSeconds(violated, oldest, now)
}

// resetSeconds computes limit.Seconds - (now - oldest), rounded down to whole
// seconds and clamped to [0, limit.Seconds]. A window with no qualifying
// events (zero oldest) is fully available: reset is 0.
func resetSeconds(limit Limit, oldest time.Time, now time.Time) int {
	if oldest.IsZero() {
		return 0
	}

	elapsed := now.Sub(oldest)
	if elapsed < 0 {
		elapsed = 0
	}
	// floor(Seconds - elapsed) for integer Seconds is Seconds - ceil(elapsed).
	elapsedCeil := int((elapsed + time.Second - 1) / time.Second)

	reset := limit.Seconds - elapsedCeil
	if reset < 0 {
		return 0
	}
	return reset
}

// quotaLabel numbers limits within a bucket: no label for a single-limit
// bucket, 1-based positions otherwise.
func quotaLabel(index, total int) string {
	if total == 1 {
		return ""
	}
	return strconv.Itoa(index + 1)
}

// admitQuotas derives the per-limit quota table for an admitted request. The
// usages hold pre-record counts, so the just-recorded event is folded in
// here: count+1, and for a previously empty window the new event itself
// becomes the oldest.
func admitQuotas(limits []Limit, usages []WindowUsage, now time.Time) []Quota {
	quotas := make([]Quota, len(limits))
	for i, limit := range limits {
		remaining := limit.Requests - usages[i].Count - 1
		if remaining < 0 {
			remaining = 0
		}
		oldest := usages[i].Oldest
		if usages[i].Count == 0 {
			oldest = now
		}
		quotas[i] = Quota{
			Label:     quotaLabel(i, len(limits)),
			Limit:     limit.Requests,
			Remaining: remaining,
			Reset:     resetSeconds(limit, oldest, now),
		}
	}
	return quotas
}

// denyQuotas derives the per-limit quota table for a denied request. No event
// was recorded, so the observed usages stand as-is.
func denyQuotas(limits []Limit, usages []WindowUsage, now time.Time) []Quota {
	quotas := make([]Quota, len(limits))
	for i, limit := range limits {
		remaining := limit.Requests - usages[i].Count
		if remaining < 0 {
			remaining = 0
		}
		quotas[i] = Quota{
			Label:     quotaLabel(i, len(limits)),
			Limit:     limit.Requests,
			Remaining: remaining,
			Reset:     resetSeconds(limit, usages[i].Oldest, now),
		}
	}
	return quotas
}
