// Package observability provides production-grade observability infrastructure
// including structured logging and OpenTelemetry tracing.
//
// This package centralizes observability concerns to enable:
//   - Tracing of event store operations across backends
//   - Structured logging with context propagation
//   - Request ID correlation across log entries
//
// Subpackages:
//   - logging: Structured logging utilities with slog
//   - tracing: OpenTelemetry tracing decorators for event stores
//
// Example usage:
//
//	import (
//	    "rate-gate/internal/observability/logging"
//	    "rate-gate/internal/observability/tracing"
//	)
//
//	func main() {
//	    logger := logging.NewLogger()
//	    logger.Info("application started")
//
//	    store := tracing.WrapStore(ratelimit.NewInMemoryEventStore(ratelimit.InMemoryStoreConfig{}))
//	    _ = store
//	}
package observability
