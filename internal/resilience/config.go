package resilience

import (
	"time"
)

// FromRetryConfig converts config values to a RetryConfig. Zero values keep the defaults.
func FromRetryConfig(maxAttempts, initialBackoffMs, maxBackoffMs int) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	return cfg
}

// FromBreakerConfig converts config values to a BreakerConfig.
func FromBreakerConfig(failureThreshold, cooldownSecs int) BreakerConfig {
	return BreakerConfig{
		FailureThreshold: failureThreshold,
		Cooldown:         time.Duration(cooldownSecs) * time.Second,
	}
}

// NewGuard builds the guard for one service, sharing its breaker through reg.
func NewGuard(reg *Breakers, service string, retry RetryConfig, timeout time.Duration) *Guard {
	retry.OnRetry = RetryLogger(service, "call")
	g := &Guard{Retry: retry, Timeout: timeout}
	if reg != nil {
		g.Breaker = reg.Get(service)
	}
	return g
}
