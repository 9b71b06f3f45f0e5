// Package resilience provides reliability and fault tolerance patterns for the
// application. It includes a circuit breaker implementation used to shield the
// admission engine from a failing event store backend.
//
// The package supports:
//   - Circuit breakers for event store backends (Redis, in-memory)
//   - Store decorators that translate breaker state into store errors
//
// Usage Example:
//
//	cb := circuitbreaker.New(circuitbreaker.DefaultConfig("event-store"))
//	result, err := cb.Execute(func() (interface{}, error) {
//	    return nil, store.RecordEvent(ctx, key, ttl)
//	})
package resilience
