package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Config tunes the exponential backoff schedule.
type Config struct {
	MaxRetries       int // retries after the first attempt
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	JitterFactor     float64 // 0.0-1.0 fraction applied to each delay
	MaxSameErrorType int     // consecutive same-class failures before giving up early
}

// DefaultConfig returns the schedule used for database calls: three retries
// starting at 100ms, doubling up to 5s, with 10% jitter.
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

// Do runs fn until it succeeds or the retry budget is spent, sleeping with
// backoff between attempts. The context cancels waits, not fn itself.
// Returns the last error when every attempt fails.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult is Do for functions that produce a value, like pgxpool.New.
// On failure the last result is returned alongside the last error.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var (
		result  T
		lastErr error
	)
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, lastErr = fn()
		if lastErr == nil {
			return result, nil
		}
		if attempt == cfg.MaxRetries {
			break
		}

		next, err := sleep(ctx, delay, cfg)
		if err != nil {
			return result, err
		}
		delay = next
	}

	return result, lastErr
}

// sleep waits for the jittered delay or until ctx is done, then hands back
// the delay for the following attempt.
func sleep(ctx context.Context, delay time.Duration, cfg *Config) (time.Duration, error) {
	wait := delay
	if cfg.JitterFactor > 0 {
		wait += time.Duration(float64(delay) * cfg.JitterFactor * (rand.Float64()*2 - 1))
	}

	select {
	case <-time.After(wait):
	case <-ctx.Done():
		return delay, ctx.Err()
	}

	next := time.Duration(float64(delay) * cfg.Multiplier)
	if next > cfg.MaxDelay {
		next = cfg.MaxDelay
	}
	return next, nil
}

// RetryableError lets an error declare its own transience. The forecaster's
// endpoint errors implement it so classification doesn't depend on message
// text.
type RetryableError interface {
	error
	IsRetryable() bool
}

// transientNeedles are message fragments that mark an error as worth
// retrying when it doesn't implement RetryableError. Matching is
// case-insensitive.
var transientNeedles = []string{
	// network
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"timed out",
	"temporary failure",
	"too many connections",
	"deadlock",
	"i/o timeout",
	"network is unreachable",
	"connection timed out",
	// HTTP status codes and their usual phrasings
	"429",
	"500",
	"502",
	"503",
	"504",
	"rate limit",
	"service busy",
	"service unavailable",
	"too many requests",
	// inference endpoint warm-up
	"model is loading",
	"endpoint is scaling",
}

// IsRetryable reports whether err is transient. Errors implementing
// RetryableError anywhere in the unwrap chain decide for themselves;
// everything else is matched against transientNeedles.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var re RetryableError
	if errors.As(err, &re) {
		return re.IsRetryable()
	}

	msg := strings.ToLower(err.Error())
	for _, needle := range transientNeedles {
		if strings.Contains(msg, needle) {
			return true
		}
	}

	return false
}

// errorClasses buckets failures so DoIfRetryable can notice when the same
// one keeps coming back. Earlier entries win when a message matches several.
var errorClasses = []struct {
	name    string
	needles []string
}{
	{"503", []string{"503"}},
	{"502", []string{"502"}},
	{"504", []string{"504"}},
	{"500", []string{"500"}},
	{"429", []string{"429"}},
	{"404", []string{"404"}},
	{"403", []string{"403"}},
	{"401", []string{"401"}},
	{"400", []string{"400"}},
	{"connection", []string{"connection refused", "connection reset"}},
	{"timeout", []string{"timeout", "timed out"}},
	{"broken_pipe", []string{"broken pipe"}},
	{"rate_limit", []string{"rate limit", "too many requests"}},
}

func classifyError(err error) string {
	if err == nil {
		return "nil"
	}

	msg := strings.ToLower(err.Error())
	for _, class := range errorClasses {
		for _, needle := range class.needles {
			if strings.Contains(msg, needle) {
				return class.name
			}
		}
	}

	return "unknown"
}

// DoIfRetryable retries only transient errors. Permanent failures (bad
// credentials, malformed payloads) return immediately, and a streak of
// MaxSameErrorType same-class failures stops early with a wrapped error.
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var (
		lastErr     error
		streak      int
		streakClass string
	)
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}

		if class := classifyError(lastErr); class == streakClass {
			streak++
			if cfg.MaxSameErrorType > 0 && streak >= cfg.MaxSameErrorType {
				return fmt.Errorf("repeated error (%d times, type=%s): %w", streak, class, lastErr)
			}
		} else {
			streak = 1
			streakClass = class
		}

		if attempt == cfg.MaxRetries {
			break
		}

		next, err := sleep(ctx, delay, cfg)
		if err != nil {
			return err
		}
		delay = next
	}

	return lastErr
}
