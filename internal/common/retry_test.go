package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetry(t *testing.T) {
	ctx := context.Background()
	fast := RetryOptions{InitialDelay: time.Millisecond, MaxAttempts: 3}

	t.Run("succeeds first try", func(t *testing.T) {
		calls := 0
		err := WithRetry(ctx, func() error {
			calls++
			return nil
		}, fast)
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries until success", func(t *testing.T) {
		calls := 0
		err := WithRetry(ctx, func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		}, fast)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("exhaustion wraps ErrMaxRetries", func(t *testing.T) {
		calls := 0
		err := WithRetry(ctx, func() error {
			calls++
			return errors.New("persistent")
		}, fast)
		assert.ErrorIs(t, err, ErrMaxRetries)
		assert.Equal(t, 3, calls)
	})

	t.Run("non-retryable error stops immediately", func(t *testing.T) {
		calls := 0
		err := WithRetry(ctx, func() error {
			calls++
			return &RetryableError{Err: errors.New("fatal"), Retryable: false}
		}, fast)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrMaxRetries)
		assert.Equal(t, 1, calls)
	})

	t.Run("fixed schedule sets delays and attempt count", func(t *testing.T) {
		calls := 0
		start := time.Now()
		err := WithRetry(ctx, func() error {
			calls++
			return errors.New("busy")
		}, RetryOptions{Schedule: []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}})

		assert.ErrorIs(t, err, ErrMaxRetries)
		assert.Equal(t, 3, calls) // len(schedule)+1 attempts
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	})

	t.Run("cancellation interrupts the wait", func(t *testing.T) {
		cancelCtx, cancel := context.WithCancel(ctx)
		calls := 0
		go func() {
			time.Sleep(5 * time.Millisecond)
			cancel()
		}()
		err := WithRetry(cancelCtx, func() error {
			calls++
			return errors.New("transient")
		}, RetryOptions{InitialDelay: time.Minute, MaxAttempts: 5})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrRateLimit))
	assert.True(t, IsRetryable(ErrServerBusy))
	assert.True(t, IsRetryable(&RetryableError{Err: errors.New("x"), Retryable: true}))
	assert.False(t, IsRetryable(&RetryableError{Err: errors.New("x"), Retryable: false}))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestIsValidation(t *testing.T) {
	assert.True(t, IsValidation(ErrMissingHypothesis))
	assert.True(t, IsValidation(ErrMissingJobID))
	assert.True(t, IsValidation(ErrNoCommunities))
	assert.True(t, IsValidation(ErrNotEntitled))
	assert.False(t, IsValidation(ErrServerBusy))
}
