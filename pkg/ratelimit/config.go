package ratelimit

import (
	"fmt"
	"slices"
)

// Config contains the engine-level configuration for admission control.
//
// The configuration is constructed once and passed to NewLimiter; the engine
// never reads process-global or environment state on the hot path.
type Config struct {
	// Enabled is the master on/off switch. When false every call bypasses
	// the store and admits the request.
	Enabled bool

	// Environment names the current runtime environment ("production",
	// "staging", ...). Used only for the EnabledEnvironments gate.
	Environment string

	// EnabledEnvironments lists the environments in which enforcement is
	// active. Empty means all environments.
	EnabledEnvironments []string

	// DefaultLimits is the ordered limit list applied when a call supplies
	// none. May be empty, in which case calls without explicit limits fail
	// with ErrInvalidLimitSpec.
	DefaultLimits []Limit

	// Namespace prefixes every store key, isolating this limiter's events
	// from unrelated data sharing the store.
	Namespace string

	// RetentionSeconds is the store-level TTL applied to recorded events.
	// It must exceed the longest Seconds of any limit that will query the
	// event stream; otherwise windows silently lose data and limits become
	// unenforceable.
	RetentionSeconds int
}

// Defaults for optional configuration values.
const (
	DefaultNamespace        = "rate_limit"
	DefaultRetentionSeconds = 86400
)

// ApplyDefaults sets safe default values for any missing configuration
// values. Enabled is intentionally not touched: a zero-value Config is a
// disabled limiter.
func (c *Config) ApplyDefaults() {
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	if c.RetentionSeconds == 0 {
		c.RetentionSeconds = DefaultRetentionSeconds
	}
}

// Validate checks the configuration for internal consistency.
//
// Returns an error when the retention is non-positive, a default limit is
// malformed, or a default limit's window exceeds the retention (the
// configuration invariant the operator must uphold).
func (c *Config) Validate() error {
	if c.Namespace == "" {
		return fmt.Errorf("Namespace must not be empty")
	}
	if c.RetentionSeconds <= 0 {
		return fmt.Errorf("RetentionSeconds must be positive, got %d", c.RetentionSeconds)
	}

	for i, limit := range c.DefaultLimits {
		if err := limit.validate(); err != nil {
			return fmt.Errorf("DefaultLimits[%d]: %w", i, err)
		}
		if limit.Seconds > c.RetentionSeconds {
			return fmt.Errorf("DefaultLimits[%d]: window %ds exceeds retention %ds",
				i, limit.Seconds, c.RetentionSeconds)
		}
	}

	return nil
}

// DefaultConfig returns an enabled Config with default namespace and
// retention and no default limits.
func DefaultConfig() Config {
	cfg := Config{Enabled: true}
	cfg.ApplyDefaults()
	return cfg
}

// active reports whether enforcement is on for the configured environment.
func (c *Config) active() bool {
	if !c.Enabled {
		return false
	}
	if len(c.EnabledEnvironments) == 0 {
		return true
	}
	return slices.Contains(c.EnabledEnvironments, c.Environment)
}
