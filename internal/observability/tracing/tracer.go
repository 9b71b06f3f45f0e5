// Package tracing provides OpenTelemetry tracing integration for the rate
// limiter: a process-wide tracer and an event store decorator that records
// one span per store operation.
package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName identifies this module's spans.
const instrumentationName = "rate-gate"

// GetTracer returns the module's tracer for creating spans.
//
// The tracer is resolved from the global provider on every call rather than
// held in a package variable: a package-level tracer would bind permanently
// to whichever provider was installed first, ignoring later
// otel.SetTracerProvider calls.
//
// Example usage:
//
//	ctx, span := tracing.GetTracer().Start(ctx, "operation-name")
//	defer span.End()
func GetTracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}
