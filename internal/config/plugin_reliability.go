package config

import "time"

// ReliabilityConfig holds the resilience settings for out-of-process
// reader/writer plugins hosted over go-plugin: request timeouts,
// retry/backoff, a circuit breaker, health-check cadence, and rate- and
// resource-limit fields. internal/reader/external reads only what ForPlugin
// returns (retries, backoff, FailureThreshold, HealthCheckInterval,
// RequestTimeout); the rate-limit, resource-limit and auto-restart fields
// are carried here but not enforced. One instance applies process-wide;
// PluginOverrides lets a specific plugin ID override RequestTimeout,
// MaxRetries, RateLimit, FailureThreshold and HealthCheckInterval.
type ReliabilityConfig struct {
	// Timeout settings
	RequestTimeout     time.Duration `json:"request_timeout" default:"60s"`
	HealthCheckTimeout time.Duration `json:"health_check_timeout" default:"10s"`
	StartupTimeout     time.Duration `json:"startup_timeout" default:"30s"`
	ShutdownTimeout    time.Duration `json:"shutdown_timeout" default:"10s"`

	// Retry configuration
	MaxRetries        int           `json:"max_retries" default:"3"`
	InitialRetryDelay time.Duration `json:"initial_retry_delay" default:"1s"`
	MaxRetryDelay     time.Duration `json:"max_retry_delay" default:"30s"`
	BackoffMultiplier float64       `json:"backoff_multiplier" default:"2.0"`

	// Circuit breaker settings
	CircuitBreakerEnabled bool          `json:"circuit_breaker_enabled" default:"true"`
	FailureThreshold      int           `json:"failure_threshold" default:"5"`
	CircuitResetTimeout   time.Duration `json:"circuit_reset_timeout" default:"60s"`
	HalfOpenMaxCalls      int           `json:"half_open_max_calls" default:"3"`

	// Health monitoring
	HealthCheckInterval    time.Duration `json:"health_check_interval" default:"30s"`
	DegradedErrorRate      float64       `json:"degraded_error_rate" default:"0.1"`
	UnhealthyErrorRate     float64       `json:"unhealthy_error_rate" default:"0.25"`
	MaxConsecutiveFailures int           `json:"max_consecutive_failures" default:"5"`

	// Rate limiting, applied per decode/read request
	GlobalRateLimit    float64 `json:"global_rate_limit" default:"0"` // 0 = unlimited
	PerPluginRateLimit float64 `json:"per_plugin_rate_limit" default:"0"`
	BurstSize          int     `json:"burst_size" default:"8"`

	// Resource limits applied to the hosted plugin process
	MaxMemoryUsage int64   `json:"max_memory_usage" default:"1073741824"` // 1GB
	MaxCPUPercent  float64 `json:"max_cpu_percent" default:"75.0"`

	// Auto-recovery
	AutoRestartEnabled    bool          `json:"auto_restart_enabled" default:"true"`
	MaxRestartAttempts    int           `json:"max_restart_attempts" default:"3"`
	RestartCooldownPeriod time.Duration `json:"restart_cooldown_period" default:"5m"`

	// Per-plugin overrides, keyed by plugin ID (e.g. "ffmpeg", "ndi").
	PluginOverrides map[string]PluginOverride `json:"plugin_overrides"`
}

// PluginOverride lets one plugin ID deviate from the process-wide
// ReliabilityConfig for the fields that matter most in practice.
type PluginOverride struct {
	RequestTimeout      *time.Duration `json:"request_timeout,omitempty"`
	MaxRetries          *int           `json:"max_retries,omitempty"`
	RateLimit           *float64       `json:"rate_limit,omitempty"`
	FailureThreshold    *int           `json:"failure_threshold,omitempty"`
	HealthCheckInterval *time.Duration `json:"health_check_interval,omitempty"`
}

// EffectiveConfig is the per-plugin configuration after overrides apply.
type EffectiveConfig struct {
	RequestTimeout      time.Duration
	MaxRetries          int
	InitialRetryDelay   time.Duration
	MaxRetryDelay       time.Duration
	BackoffMultiplier   float64
	RateLimit           float64
	FailureThreshold    int
	HealthCheckInterval time.Duration
}

// ForPlugin returns the effective configuration for pluginID, applying
// any matching PluginOverride on top of the base settings.
func (c *ReliabilityConfig) ForPlugin(pluginID string) EffectiveConfig {
	base := EffectiveConfig{
		RequestTimeout:      c.RequestTimeout,
		MaxRetries:          c.MaxRetries,
		InitialRetryDelay:   c.InitialRetryDelay,
		MaxRetryDelay:       c.MaxRetryDelay,
		BackoffMultiplier:   c.BackoffMultiplier,
		RateLimit:           c.PerPluginRateLimit,
		FailureThreshold:    c.FailureThreshold,
		HealthCheckInterval: c.HealthCheckInterval,
	}

	override, ok := c.PluginOverrides[pluginID]
	if !ok {
		return base
	}
	if override.RequestTimeout != nil {
		base.RequestTimeout = *override.RequestTimeout
	}
	if override.MaxRetries != nil {
		base.MaxRetries = *override.MaxRetries
	}
	if override.RateLimit != nil {
		base.RateLimit = *override.RateLimit
	}
	if override.FailureThreshold != nil {
		base.FailureThreshold = *override.FailureThreshold
	}
	if override.HealthCheckInterval != nil {
		base.HealthCheckInterval = *override.HealthCheckInterval
	}
	return base
}

// DefaultReliabilityConfig returns the default resilience settings.
func DefaultReliabilityConfig() ReliabilityConfig {
	return ReliabilityConfig{
		RequestTimeout:         60 * time.Second,
		HealthCheckTimeout:     10 * time.Second,
		StartupTimeout:         30 * time.Second,
		ShutdownTimeout:        10 * time.Second,
		MaxRetries:             3,
		InitialRetryDelay:      1 * time.Second,
		MaxRetryDelay:          30 * time.Second,
		BackoffMultiplier:      2.0,
		CircuitBreakerEnabled:  true,
		FailureThreshold:       5,
		CircuitResetTimeout:    60 * time.Second,
		HalfOpenMaxCalls:       3,
		HealthCheckInterval:    30 * time.Second,
		DegradedErrorRate:      0.1,
		UnhealthyErrorRate:     0.25,
		MaxConsecutiveFailures: 5,
		BurstSize:              8,
		MaxMemoryUsage:         1024 * 1024 * 1024,
		MaxCPUPercent:          75.0,
		AutoRestartEnabled:     true,
		MaxRestartAttempts:     3,
		RestartCooldownPeriod:  5 * time.Minute,
		PluginOverrides:        make(map[string]PluginOverride),
	}
}
