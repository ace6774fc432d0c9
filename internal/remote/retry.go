package remote

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"strings"
	"time"
)

// RetryConfig controls the exponential backoff of RetryWithBackoff.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter spreads delays by ±25%.
	Jitter bool
	// DefaultRetryAfter is used when a 429 carries no usable Retry-After.
	DefaultRetryAfter time.Duration
	// MaxRateLimitWaits caps consecutive 429 waits, which do not consume
	// attempts.
	MaxRateLimitWaits int
}

// DefaultRetryConfig returns 3 attempts waiting 1s then 2s, and 60s on 429.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		MaxDelay:          30 * time.Second,
		Multiplier:        2.0,
		DefaultRetryAfter: 60 * time.Second,
		MaxRateLimitWaits: 10,
	}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryWithBackoff retries fn while it returns transient errors. A
// RateLimitedError sleeps for the server-provided delay and retries without
// counting an attempt. It returns the last error when attempts run out.
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, sleep SleepFunc, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	delay := cfg.InitialDelay
	rateLimitWaits := 0

	for attempt := 0; attempt < cfg.MaxAttempts; {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var limited *RateLimitedError
		if errors.As(lastErr, &limited) {
			rateLimitWaits++
			if cfg.MaxRateLimitWaits > 0 && rateLimitWaits > cfg.MaxRateLimitWaits {
				return lastErr
			}
			wait := limited.RetryAfter
			if wait <= 0 {
				wait = cfg.DefaultRetryAfter
			}
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		if !isTransientError(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		wait := delay
		if cfg.Jitter {
			wait = applyJitter(wait)
		}
		if cfg.MaxDelay > 0 && wait > cfg.MaxDelay {
			wait = cfg.MaxDelay
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
		attempt++
	}
	return lastErr
}

func applyJitter(d time.Duration) time.Duration {
	factor := 0.75 + rand.Float64()*0.5
	return time.Duration(float64(d) * factor)
}

// isTransientError reports network-level failures and responses classified
// as ErrRemoteTransient.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRemoteFatal) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrRemoteTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "deadline exceeded") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "tls") ||
		strings.Contains(lower, "eof")
}
