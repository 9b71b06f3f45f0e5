package ratelimit

import "time"

// NoopMetrics is a Metrics implementation that discards all measurements.
//
// It is the default when NewLimiter receives a nil metrics collector, and is
// useful in tests and in callers that do not run a metrics pipeline.
type NoopMetrics struct{}

// RecordAllowed does nothing.
func (m *NoopMetrics) RecordAllowed(bucket string) {}

// RecordDenied does nothing.
func (m *NoopMetrics) RecordDenied(bucket string) {}

// RecordCheckDuration does nothing.
func (m *NoopMetrics) RecordCheckDuration(bucket string, d time.Duration) {}

// RecordStoreError does nothing.
func (m *NoopMetrics) RecordStoreError(op string) {}
