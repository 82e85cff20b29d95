package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codeGROOVE-dev/retry"

	errs "instabridge/pkg/errors"
	"instabridge/pkg/logger"
)

// Operation is a function that performs an operation that might need retrying
type Operation func() error

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int
	// BaseDelay is the first backoff delay; it doubles per attempt
	BaseDelay time.Duration
	// MaxDelay caps a single backoff delay
	MaxDelay time.Duration
	// MaxJitter adds up to this much random delay per attempt
	MaxJitter time.Duration
	// MaxRateLimitWait is the longest RetryAfter hint honoured in-line.
	// Longer hints end the retries and surface the rate_limit error.
	MaxRateLimitWait time.Duration
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error)
	// Logger for retry attempts
	Logger logger.Logger
}

// DefaultConfig returns a retry configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:      3,
		BaseDelay:        time.Second,
		MaxDelay:         30 * time.Second,
		MaxJitter:        time.Second,
		MaxRateLimitWait: 2 * time.Minute,
		RetryIf:          DefaultRetryIf,
		Logger:           logger.GetLogger(),
	}
}

// DefaultRetryIf retries transient typed errors and gives up on everything else
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errs.IsTransient(err)
}

// Do executes op until it succeeds, returns a non-retryable error, or the
// attempts run out. A rate_limit error waits out its RetryAfter hint first.
func Do(ctx context.Context, op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryIf(err) {
			return retry.Unrecoverable(err)
		}

		if errs.Is(err, errs.ErrorTypeRateLimit) {
			wait := errs.RetryAfter(err)
			if wait > cfg.MaxRateLimitWait {
				return retry.Unrecoverable(err)
			}
			if cfg.Logger != nil {
				logger.LogRateLimit(cfg.Logger, "retry", wait)
			}
			if werr := Wait(ctx, wait); werr != nil {
				return retry.Unrecoverable(werr)
			}
		}
		return err
	}

	opts := []retry.Option{
		retry.Attempts(uint(attempts)),
		retry.Delay(cfg.BaseDelay),
		retry.MaxDelay(cfg.MaxDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			if cfg.Logger != nil {
				cfg.Logger.WarnWithFields("retrying operation", map[string]interface{}{
					"attempt":      int(n) + 1,
					"error":        err.Error(),
					"max_attempts": attempts,
				})
			}
			if cfg.OnRetry != nil {
				cfg.OnRetry(int(n)+1, err)
			}
		}),
	}
	// The random jitter cannot take a zero bound
	if cfg.MaxJitter > 0 {
		opts = append(opts, retry.MaxJitter(cfg.MaxJitter))
	}

	err := retry.Do(wrapped, opts...)
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("retry cancelled: %w", ctxErr)
	}
	// Surface the operation's own last error so callers can branch on its type
	if lastErr != nil {
		return lastErr
	}
	return err
}

// DoWithResult executes an operation that returns a result with retry logic
func DoWithResult[T any](ctx context.Context, op func() (T, error), cfg *Config) (T, error) {
	var result T
	err := Do(ctx, func() error {
		var opErr error
		result, opErr = op()
		return opErr
	}, cfg)
	return result, err
}

// Wait sleeps for d or until ctx is done
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
