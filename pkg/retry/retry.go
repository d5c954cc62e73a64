package retry

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Config defines exponential backoff behavior.
type Config struct {
	MaxRetries       int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	JitterFactor     float64 // 0..1 fraction of the delay randomized each way
	MaxSameErrorType int     // consecutive same-type failures before giving up early
}

// DefaultConfig suits the embedding and catalog calls made during
// ingestion: 3 retries from 100ms doubling to a 5s cap, 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       3,
		InitialDelay:     100 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.1,
		MaxSameErrorType: 5,
	}
}

// wait sleeps for the current delay (with jitter) or aborts when ctx ends.
// It returns the next delay in the schedule.
func (c *Config) wait(ctx context.Context, delay time.Duration) (time.Duration, error) {
	jittered := delay
	if c.JitterFactor > 0 {
		jittered += time.Duration(float64(delay) * c.JitterFactor * (rand.Float64()*2 - 1))
	}
	select {
	case <-time.After(jittered):
	case <-ctx.Done():
		return delay, ctx.Err()
	}
	next := time.Duration(float64(delay) * c.Multiplier)
	if next > c.MaxDelay {
		next = c.MaxDelay
	}
	return next, nil
}

// Do runs fn with backoff until it succeeds or the budget is spent.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult is Do for functions that return a value, e.g. an embedding
// vector or a new connection pool.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var result T
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}
		result, lastErr = r, err

		if attempt < cfg.MaxRetries {
			delay, err = cfg.wait(ctx, delay)
			if err != nil {
				return result, err
			}
		}
	}
	return result, lastErr
}

// RetryableError lets an error declare its own transience. The LLM client
// errors implement it; everything else falls back to pattern matching.
type RetryableError interface {
	error
	IsRetryable() bool
}

// retryablePatterns covers the transient failures seen from Postgres and
// LLM endpoints that don't implement RetryableError themselves.
var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"timed out",
	"temporary failure",
	"too many connections",
	"deadlock",
	"network is unreachable",
	"429",
	"500",
	"502",
	"503",
	"504",
	"rate limit",
	"service busy",
	"service unavailable",
	"too many requests",
	"cuda error",
	"out of memory",
}

// IsRetryable reports whether err is worth another attempt. Permanent
// failures (auth, malformed SQL) must not burn the retry budget.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if r, ok := err.(RetryableError); ok {
		return r.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// classifyErrorType buckets an error so repeated identical failures can be
// detected. A model endpoint returning 503 on every attempt is down, not
// flapping.
func classifyErrorType(err error) string {
	if err == nil {
		return "nil"
	}
	errStr := strings.ToLower(err.Error())

	for _, code := range []string{"503", "502", "504", "500", "429", "404", "403", "401", "400"} {
		if strings.Contains(errStr, code) {
			return code
		}
	}
	switch {
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "connection reset"):
		return "connection"
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out"):
		return "timeout"
	case strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "too many requests"):
		return "rate_limit"
	case strings.Contains(errStr, "cuda error") || strings.Contains(errStr, "out of memory"):
		return "gpu"
	}
	return "unknown"
}

// DoIfRetryable retries only transient errors and escalates to a permanent
// failure after MaxSameErrorType consecutive failures of the same bucket.
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var lastErr error
	delay := cfg.InitialDelay
	sameErrorCount := 0
	var lastErrorType string

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}

		currentErrorType := classifyErrorType(err)
		if currentErrorType == lastErrorType {
			sameErrorCount++
			if cfg.MaxSameErrorType > 0 && sameErrorCount >= cfg.MaxSameErrorType {
				return fmt.Errorf("repeated error (%d times, type=%s): %w", sameErrorCount, currentErrorType, err)
			}
		} else {
			sameErrorCount = 1
			lastErrorType = currentErrorType
		}

		if attempt < cfg.MaxRetries {
			delay, err = cfg.wait(ctx, delay)
			if err != nil {
				return err
			}
		}
	}
	return lastErr
}
