package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"rate-gate/internal/observability/logging"
	"rate-gate/pkg/ratelimit"
)

// RateLimitConfig holds configuration for the rate limit middleware.
type RateLimitConfig struct {
	// Bucket is the logical operation class this middleware instance guards.
	// Empty maps to the engine's default bucket.
	Bucket string

	// Limits is the ordered limit list enforced for this route. Empty falls
	// back to the engine's configured default limits.
	Limits []ratelimit.Limit

	// Resolver extracts the client identity. Defaults to RemoteAddrResolver.
	Resolver IdentifierResolver

	// HeaderPrefix is the prefix for quota metadata headers.
	// Default: "Rate-Limit"
	HeaderPrefix string

	// DisableQuotaHeaders suppresses the quota metadata headers that are
	// otherwise emitted on every enforced response. The zero value keeps
	// them on.
	DisableQuotaHeaders bool

	// ErrorStatusCode is the status returned on denial.
	// Default: 429 Too Many Requests
	ErrorStatusCode int

	// ErrorBody renders the denial response body. Defaults to the outcome's
	// plain-text message.
	ErrorBody func(o *ratelimit.Outcome) string

	// FailOpen admits requests when the event store is unavailable. When
	// false, store outages produce 503 Service Unavailable.
	// Default: false
	FailOpen bool
}

// DefaultRateLimitConfig returns the default middleware configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		HeaderPrefix:    "Rate-Limit",
		ErrorStatusCode: http.StatusTooManyRequests,
	}
}

// RateLimiter implements HTTP middleware for shared sliding window rate
// limiting.
//
// This middleware is a thin adapter over the core pkg/ratelimit engine:
//   - Resolves client identity using an IdentifierResolver
//   - Calls CheckAndRecord with the route's bucket and limits
//   - Sets quota metadata headers per evaluated limit
//   - Returns the configured error status with Retry-After when denied
//   - Surfaces store outages per the FailOpen policy, never silently
type RateLimiter struct {
	config  RateLimitConfig
	limiter *ratelimit.Limiter
}

// NewRateLimiter creates a rate limit middleware around the given engine.
//
// Parameters:
//   - config: Middleware configuration; zero-value fields get defaults
//   - limiter: The core admission engine
//
// Returns a new RateLimiter instance.
func NewRateLimiter(config RateLimitConfig, limiter *ratelimit.Limiter) *RateLimiter {
	if config.Resolver == nil {
		config.Resolver = RemoteAddrResolver{}
	}
	if config.HeaderPrefix == "" {
		config.HeaderPrefix = "Rate-Limit"
	}
	if config.ErrorStatusCode == 0 {
		config.ErrorStatusCode = http.StatusTooManyRequests
	}
	if config.ErrorBody == nil {
		config.ErrorBody = func(o *ratelimit.Outcome) string {
			return o.ErrorMessage()
		}
	}

	return &RateLimiter{
		config:  config,
		limiter: limiter,
	}
}

// Middleware returns an HTTP middleware function that enforces the
// configured limits.
//
// Request flow:
//  1. Resolve client identity (fall back to RemoteAddr on resolver failure)
//  2. Check and record against the engine
//  3. Emit quota headers (unless disabled or the engine is bypassed)
//  4. If denied, return the error status with Retry-After and a plain body
//  5. If the store is unavailable, admit (FailOpen) or return 503
//
// HTTP response headers, one set per evaluated limit:
//   - <prefix>[-<bucket>][-<n>]-Limit: The limit's request count
//   - <prefix>[-<bucket>][-<n>]-Remaining: Requests left in the window
//   - <prefix>[-<bucket>][-<n>]-Reset: Seconds until capacity frees
//   - Retry-After: Seconds to wait before retrying (only when denied)
//
// The bucket segment is omitted for the default bucket; the numeric segment
// is omitted when a single limit is configured.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := rl.resolveIdentity(r)
			if err != nil {
				slog.Error("rate limit middleware: identity resolution failed",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
					slog.String("path", r.URL.Path),
				)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			outcome, err := rl.limiter.CheckAndRecord(r.Context(), rl.config.Bucket, identity, rl.config.Limits)
			if err != nil {
				rl.handleCheckError(w, r, identity, err, next)
				return
			}

			if outcome.Bypassed {
				next.ServeHTTP(w, r)
				return
			}

			if !rl.config.DisableQuotaHeaders {
				rl.setQuotaHeaders(w.Header(), outcome)
			}

			if outcome.IsDenied() {
				log := logging.WithRequestID(r.Context(), slog.Default())
				log.Warn("rate limit exceeded",
					slog.String("bucket", outcome.Bucket),
					slog.String("identity", identity),
					slog.String("path", r.URL.Path),
					slog.String("violated", outcome.Violated.String()),
					slog.Int("retry_after", outcome.RetryAfter),
				)
				rl.writeDenial(w, outcome)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// resolveIdentity runs the configured resolver, falling back to RemoteAddr
// when it fails. An error is returned only when the fallback fails as well.
func (rl *RateLimiter) resolveIdentity(r *http.Request) (string, error) {
	identity, err := rl.config.Resolver.Resolve(r)
	if err == nil {
		return identity, nil
	}

	slog.Warn("rate limit middleware: resolver failed, using RemoteAddr fallback",
		slog.String("error", err.Error()),
		slog.String("remote_addr", r.RemoteAddr),
	)
	return hostFromAddr(r.RemoteAddr)
}

// handleCheckError applies the FailOpen policy to validation and store
// failures. Validation errors are a deployment bug and always fail closed.
func (rl *RateLimiter) handleCheckError(w http.ResponseWriter, r *http.Request, identity string, err error, next http.Handler) {
	if ratelimit.IsStoreUnavailable(err) {
		slog.Error("rate limit middleware: event store unavailable",
			slog.String("error", err.Error()),
			slog.String("identity", identity),
			slog.String("path", r.URL.Path),
			slog.Bool("fail_open", rl.config.FailOpen),
		)
		if rl.config.FailOpen {
			next.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	slog.Error("rate limit middleware: check failed",
		slog.String("error", err.Error()),
		slog.String("identity", identity),
		slog.String("path", r.URL.Path),
	)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

// setQuotaHeaders emits one Limit/Remaining/Reset header triple per
// evaluated limit.
func (rl *RateLimiter) setQuotaHeaders(h http.Header, outcome *ratelimit.Outcome) {
	for _, q := range outcome.Quotas {
		base := rl.config.HeaderPrefix
		if outcome.Bucket != ratelimit.DefaultBucket {
			base += "-" + outcome.Bucket
		}
		if q.Label != "" {
			base += "-" + q.Label
		}

		h.Set(base+"-Limit", strconv.Itoa(q.Limit))
		h.Set(base+"-Remaining", strconv.Itoa(q.Remaining))
		h.Set(base+"-Reset", strconv.Itoa(q.Reset))
	}
}

// writeDenial writes the denial response with Retry-After and the
// configured status code and body.
func (rl *RateLimiter) writeDenial(w http.ResponseWriter, outcome *ratelimit.Outcome) {
	w.Header().Set("Retry-After", strconv.Itoa(outcome.RetryAfter))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(rl.config.ErrorStatusCode)

	if _, err := w.Write([]byte(rl.config.ErrorBody(outcome))); err != nil {
		slog.Error("rate limit middleware: failed to write denial body",
			slog.String("error", err.Error()),
		)
	}
}
