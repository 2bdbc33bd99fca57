package core

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig configures exponential backoff for mailbox calls
type RetryConfig struct {
	// MaxAttempts includes the first attempt
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	// JitterFactor is the maximum jitter as a fraction of the backoff (0-1)
	JitterFactor float64
	// Timeout bounds each individual attempt
	Timeout time.Duration
}

// DefaultRetryConfig returns the stock retry settings
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    4,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		JitterFactor:   0.2,
		Timeout:        20 * time.Second,
	}
}

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retrier runs an operation until it succeeds, fails permanently, or
// runs out of attempts. It returns the number of attempts made.
type retrier struct {
	cfg   RetryConfig
	sleep sleepFunc
}

func newRetrier(cfg RetryConfig) *retrier {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = 1
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	return &retrier{cfg: cfg, sleep: sleepContext}
}

func (r *retrier) do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	backoff := r.cfg.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		lastErr = r.attempt(ctx, fn)
		if lastErr == nil {
			return attempt, nil
		}
		if !IsTransient(lastErr) || ctx.Err() != nil {
			return attempt, lastErr
		}
		if attempt == r.cfg.MaxAttempts {
			break
		}

		if err := r.sleep(ctx, withJitter(backoff, r.cfg.JitterFactor)); err != nil {
			return attempt, err
		}
		backoff = nextBackoff(backoff, r.cfg.BackoffFactor, r.cfg.MaxBackoff)
	}

	return r.cfg.MaxAttempts, lastErr
}

func (r *retrier) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.cfg.Timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	return fn(callCtx)
}

// withJitter spreads base over [base*(1-j), base*(1+j)]
func withJitter(base time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 || base <= 0 {
		return base
	}
	jitter := (rand.Float64()*2 - 1) * jitterFactor
	return time.Duration(float64(base) * (1.0 + jitter))
}

func nextBackoff(current time.Duration, factor float64, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		return max
	}
	return next
}
