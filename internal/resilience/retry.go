package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Schedule is a fixed list of delays, one per attempt. The delay at index i
// is slept before attempt i, so a schedule of {0, 500ms, 1s} makes three
// attempts: immediately, after half a second, then after a further second.
type Schedule []time.Duration

// Attempts returns the number of attempts the schedule allows (at least one).
func (s Schedule) Attempts() int {
	if len(s) == 0 {
		return 1
	}
	return len(s)
}

// Total returns the sum of all delays, the worst-case time spent sleeping.
func (s Schedule) Total() time.Duration {
	var total time.Duration
	for _, d := range s {
		total += d
	}
	return total
}

// delay returns the sleep before the given zero-based attempt.
func (s Schedule) delay(attempt int) time.Duration {
	if attempt < 0 || attempt >= len(s) {
		return 0
	}
	return s[attempt]
}

// ScheduleFromMillis builds a Schedule from millisecond values. Negative
// values are clamped to zero.
func ScheduleFromMillis(ms []int) Schedule {
	s := make(Schedule, len(ms))
	for i, v := range ms {
		if v < 0 {
			v = 0
		}
		s[i] = time.Duration(v) * time.Millisecond
	}
	return s
}

// DoublingSchedule returns a schedule with an immediate first attempt
// followed by delays starting at initial and doubling on every retry.
// DoublingSchedule(5, 500*time.Millisecond) is {0, 0.5s, 1s, 2s, 4s}.
func DoublingSchedule(attempts int, initial time.Duration) Schedule {
	if attempts <= 0 {
		attempts = 1
	}
	s := make(Schedule, attempts)
	d := initial
	for i := 1; i < attempts; i++ {
		s[i] = d
		d *= 2
	}
	return s
}

// RetryConfig controls retries over a fixed delay schedule.
type RetryConfig struct {
	// Schedule holds the per-attempt delays. An empty schedule means a
	// single attempt with no retries.
	Schedule Schedule

	// ShouldRetry optionally overrides the default transient-error check.
	// If nil, IsTransient is used.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry sleep with attempt number and error.
	OnRetry func(attempt int, err error)
}

// Do executes fn with retry logic according to cfg. It retries only on
// errors deemed transient (via ShouldRetry or the default IsTransient check).
// Context cancellation stops retries immediately.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal executes fn returning a value with retry logic. Same semantics as Do
// but preserves the return value from the successful call.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var zero T
	var lastErr error
	attempts := cfg.Schedule.Attempts()
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr)
		}
		if d := cfg.Schedule.delay(attempt); d > 0 {
			if err := sleep(ctx, d); err != nil {
				if lastErr == nil {
					lastErr = err
				}
				return zero, lastErr
			}
		}

		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
		if !shouldRetry(lastErr) {
			return zero, lastErr
		}
	}

	return zero, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
