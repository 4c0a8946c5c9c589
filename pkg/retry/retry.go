package retry

import (
	"context"
	"errors"
	"fmt"

	"postgrab/pkg/logger"
)

// ErrExhausted is wrapped by the error returned when every attempt failed.
var ErrExhausted = errors.New("retry budget exhausted")

// Config holds retry configuration
type Config struct {
	// Retries is the number of retries after the first attempt.
	Retries int
	Backoff BackoffStrategy
	// RetryIf decides if an error should be retried; nil retries everything
	// except context cancellation.
	RetryIf func(error) bool
	Logger  logger.Logger
}

func retryAny(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Do runs op until it succeeds, the error is not retryable, the retry budget
// is spent or ctx is done.
func Do(ctx context.Context, cfg Config, op func() error) error {
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = retryAny
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = ConstantBackoff{}
	}

	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !retryIf(err) {
			return err
		}
		if attempt >= cfg.Retries {
			if cfg.Logger != nil {
				cfg.Logger.WithError(err).WarnWithFields("retries exhausted", map[string]interface{}{
					"attempts": attempt + 1,
				})
			}
			return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt+1, err)
		}

		delay := backoff.NextDelay(attempt + 1)
		if cfg.Logger != nil {
			cfg.Logger.WithError(err).DebugWithFields("retrying", map[string]interface{}{
				"attempt":  attempt + 1,
				"delay_ms": delay.Milliseconds(),
			})
		}
		if werr := Wait(ctx, delay); werr != nil {
			return fmt.Errorf("retry cancelled: %w", werr)
		}
	}
}

// DoWithResult is Do for operations returning a value.
func DoWithResult[T any](ctx context.Context, cfg Config, op func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var opErr error
		result, opErr = op()
		return opErr
	})
	return result, err
}
