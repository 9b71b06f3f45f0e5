package config

import (
	"log/slog"
	"net/http"
	"time"

	"rate-gate/pkg/ratelimit"
)

// HTTPSettings configures the HTTP-layer behavior around the rate limit
// engine: the denial status code, quota header emission, and the policy for
// store outages.
type HTTPSettings struct {
	// ErrorStatusCode is the status returned on denial. Defaults to 429.
	ErrorStatusCode int

	// HeaderPrefix is the prefix for quota headers (e.g. "Rate-Limit").
	HeaderPrefix string

	// SendQuotaHeaders controls whether quota metadata headers are emitted.
	SendQuotaHeaders bool

	// FailOpen admits requests when the event store is unavailable. When
	// false, store outages surface as 503 responses.
	FailOpen bool
}

// StoreSettings configures the event store backing the limiter.
type StoreSettings struct {
	// RedisAddr selects the Redis-backed store when non-empty; otherwise
	// the in-memory store is used.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// MaxKeys bounds the in-memory store's tracked key count.
	MaxKeys int

	// CleanupInterval is how often expired in-memory events are swept.
	CleanupInterval time.Duration

	// BreakerEnabled wraps the store in a circuit breaker.
	BreakerEnabled          bool
	BreakerFailureThreshold int
	BreakerRecoveryTimeout  time.Duration
}

// LoadRateLimitConfig loads the engine configuration from environment
// variables.
//
// If any value is invalid, it logs a warning and uses a safe default instead
// of failing.
//
// Environment variables:
//   - RATELIMIT_ENABLED: Master on/off switch (default: true)
//   - RATELIMIT_ENVIRONMENT: Current environment name (default: "")
//   - RATELIMIT_ENABLED_ENVIRONMENTS: Comma-separated environments where
//     enforcement is active; empty means all (default: empty)
//   - RATELIMIT_DEFAULT_LIMITS: Comma-separated "requests/seconds" pairs
//     applied when a call supplies no limits, e.g. "100/60,1000/3600"
//     (default: empty)
//   - RATELIMIT_NAMESPACE: Store key prefix (default: "rate_limit")
//   - RATELIMIT_RETENTION_SECONDS: Event TTL in seconds (default: 86400)
//
// Returns:
//   - ratelimit.Config: Validated configuration with defaults applied
//   - error: Always nil (validation failures result in warnings and defaults)
func LoadRateLimitConfig() (ratelimit.Config, error) {
	cfg := ratelimit.Config{
		Enabled:             GetEnvBool("RATELIMIT_ENABLED", true),
		Environment:         GetEnvString("RATELIMIT_ENVIRONMENT", ""),
		EnabledEnvironments: GetEnvStringList("RATELIMIT_ENABLED_ENVIRONMENTS", nil),
		Namespace:           GetEnvString("RATELIMIT_NAMESPACE", ratelimit.DefaultNamespace),
	}

	retention := GetEnvInt("RATELIMIT_RETENTION_SECONDS", ratelimit.DefaultRetentionSeconds)
	if retention <= 0 {
		slog.Warn("invalid RATELIMIT_RETENTION_SECONDS, using default",
			slog.Int("value", retention),
			slog.Int("default", ratelimit.DefaultRetentionSeconds))
		retention = ratelimit.DefaultRetentionSeconds
	}
	cfg.RetentionSeconds = retention

	for _, spec := range GetEnvStringList("RATELIMIT_DEFAULT_LIMITS", nil) {
		limit, err := ratelimit.ParseLimit(spec)
		if err != nil {
			slog.Warn("invalid limit in RATELIMIT_DEFAULT_LIMITS, skipping",
				slog.String("value", spec),
				slog.String("error", err.Error()))
			continue
		}
		cfg.DefaultLimits = append(cfg.DefaultLimits, limit)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		slog.Warn("rate limit configuration validation failed, applying defaults",
			slog.String("error", err.Error()))
		cfg = ratelimit.DefaultConfig()
	}

	return cfg, nil
}

// LoadHTTPSettings loads HTTP-layer settings from environment variables.
//
// Environment variables:
//   - RATELIMIT_STATUS_CODE: Denial status code (default: 429)
//   - RATELIMIT_HEADER_PREFIX: Quota header prefix (default: "Rate-Limit")
//   - RATELIMIT_QUOTA_HEADERS: Emit quota headers (default: true)
//   - RATELIMIT_FAIL_OPEN: Admit on store failure (default: false)
func LoadHTTPSettings() HTTPSettings {
	statusCode := GetEnvInt("RATELIMIT_STATUS_CODE", http.StatusTooManyRequests)
	if statusCode < 400 || statusCode > 599 {
		slog.Warn("invalid RATELIMIT_STATUS_CODE, using default",
			slog.Int("value", statusCode),
			slog.Int("default", http.StatusTooManyRequests))
		statusCode = http.StatusTooManyRequests
	}

	return HTTPSettings{
		ErrorStatusCode:  statusCode,
		HeaderPrefix:     GetEnvString("RATELIMIT_HEADER_PREFIX", "Rate-Limit"),
		SendQuotaHeaders: GetEnvBool("RATELIMIT_QUOTA_HEADERS", true),
		FailOpen:         GetEnvBool("RATELIMIT_FAIL_OPEN", false),
	}
}

// LoadStoreSettings loads event store settings from environment variables.
//
// Environment variables:
//   - REDIS_ADDR: Redis address; empty selects the in-memory store
//   - REDIS_PASSWORD: Redis password (default: empty)
//   - REDIS_DB: Redis database number (default: 0)
//   - RATELIMIT_MAX_KEYS: In-memory key bound (default: 10000)
//   - RATELIMIT_CLEANUP_INTERVAL: In-memory sweep interval, between 1s and
//     1h (default: 5m)
//   - RATELIMIT_CB_ENABLED: Wrap the store in a circuit breaker (default: true)
//   - RATELIMIT_CB_FAILURE_THRESHOLD: Consecutive failures to open (default: 10)
//   - RATELIMIT_CB_RECOVERY_TIMEOUT: Open-state duration (default: 30s)
func LoadStoreSettings() StoreSettings {
	maxKeys := GetEnvInt("RATELIMIT_MAX_KEYS", 10000)
	if maxKeys <= 0 {
		slog.Warn("invalid RATELIMIT_MAX_KEYS, using default",
			slog.Int("value", maxKeys),
			slog.Int("default", 10000))
		maxKeys = 10000
	}

	// Sub-second sweeps burn CPU for nothing; beyond an hour the in-memory
	// store holds expired events far past their retention.
	cleanupInterval := GetEnvDuration("RATELIMIT_CLEANUP_INTERVAL", 5*time.Minute)
	if err := ValidateDurationRange(cleanupInterval, time.Second, time.Hour); err != nil {
		slog.Warn("invalid RATELIMIT_CLEANUP_INTERVAL, using default",
			slog.String("value", cleanupInterval.String()),
			slog.String("default", "5m"),
			slog.String("error", err.Error()))
		cleanupInterval = 5 * time.Minute
	}

	failureThreshold := GetEnvInt("RATELIMIT_CB_FAILURE_THRESHOLD", 10)
	if failureThreshold <= 0 {
		slog.Warn("invalid RATELIMIT_CB_FAILURE_THRESHOLD, using default",
			slog.Int("value", failureThreshold),
			slog.Int("default", 10))
		failureThreshold = 10
	}

	recoveryTimeout := GetEnvDuration("RATELIMIT_CB_RECOVERY_TIMEOUT", 30*time.Second)
	if err := ValidatePositiveDuration(recoveryTimeout); err != nil {
		slog.Warn("invalid RATELIMIT_CB_RECOVERY_TIMEOUT, using default",
			slog.String("value", recoveryTimeout.String()),
			slog.String("default", "30s"),
			slog.String("error", err.Error()))
		recoveryTimeout = 30 * time.Second
	}

	return StoreSettings{
		RedisAddr:               GetEnvString("REDIS_ADDR", ""),
		RedisPassword:           GetEnvString("REDIS_PASSWORD", ""),
		RedisDB:                 GetEnvInt("REDIS_DB", 0),
		MaxKeys:                 maxKeys,
		CleanupInterval:         cleanupInterval,
		BreakerEnabled:          GetEnvBool("RATELIMIT_CB_ENABLED", true),
		BreakerFailureThreshold: failureThreshold,
		BreakerRecoveryTimeout:  recoveryTimeout,
	}
}
