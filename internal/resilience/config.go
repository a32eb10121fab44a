package resilience

import (
	"time"
)

// FromRetryConfig converts configured millisecond delays to a RetryConfig,
// falling back to def when no delays are configured.
func FromRetryConfig(delaysMs []int, def Schedule) RetryConfig {
	if len(delaysMs) == 0 {
		return RetryConfig{Schedule: def}
	}
	return RetryConfig{Schedule: ScheduleFromMillis(delaysMs)}
}

// FromCircuitConfig converts config values to a CircuitBreakerConfig.
func FromCircuitConfig(failureThreshold, resetTimeoutSecs int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg
}
