package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "postgrab/pkg/errors"
	"postgrab/pkg/logger"
)

var noDelay = ConstantBackoff{Delay: time.Millisecond}

func TestConstantBackoff(t *testing.T) {
	b := ConstantBackoff{Delay: 2 * time.Second}
	assert.Equal(t, time.Duration(0), b.NextDelay(0))
	assert.Equal(t, 2*time.Second, b.NextDelay(1))
	assert.Equal(t, 2*time.Second, b.NextDelay(7))
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{
		Retries: 3,
		Backoff: noDelay,
		Logger:  logger.NewTestLogger(),
	}, func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsBudget(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{Retries: 2, Backoff: noDelay}, func() error {
		calls++
		return errs.New(errs.ErrorTypeParsing, "bad json")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.True(t, errs.Is(err, errs.ErrorTypeParsing))
	assert.Equal(t, 3, calls, "one attempt plus two retries")
}

func TestDoZeroRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{Backoff: noDelay}, func() error {
		calls++
		return errors.New("nope")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	cfg := Config{
		Retries: 5,
		Backoff: noDelay,
		RetryIf: func(err error) bool { return errs.Is(err, errs.ErrorTypeParsing) },
	}
	err := Do(context.Background(), cfg, func() error {
		calls++
		return errs.WithCode(errs.ErrorTypeNotFound, 404, "gone")
	})
	assert.True(t, errs.Is(err, errs.ErrorTypeNotFound))
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, calls)
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Config{Retries: 10, Backoff: ConstantBackoff{Delay: time.Hour}}, func() error {
		calls++
		cancel()
		return errors.New("retry me")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDoDefaultStopsOnDeadline(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{Retries: 5}, func() error {
		calls++
		return context.DeadlineExceeded
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, calls)
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), Config{Retries: 1, Backoff: noDelay}, func() ([]string, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("first")
		}
		return []string{"a", "b"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestWait(t *testing.T) {
	require.NoError(t, Wait(context.Background(), 0))
	require.NoError(t, Wait(context.Background(), 5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, Wait(ctx, 0), context.Canceled)
}
