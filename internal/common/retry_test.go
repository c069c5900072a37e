package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryOptions {
	return RetryOptions{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithRetry(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return &RetryableError{Err: errors.New("busy"), Retryable: true}
			}
			return nil
		}, fastRetry(3))

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return ErrNoObservation
		}, fastRetry(5))

		require.ErrorIs(t, err, ErrNoObservation)
		assert.Equal(t, 1, calls)
	})

	t.Run("reports exhausted attempts", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return context.DeadlineExceeded
		}, fastRetry(2))

		require.ErrorIs(t, err, ErrMaxRetries)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 2, calls)
	})

	t.Run("single attempt returns the original error", func(t *testing.T) {
		err := WithRetry(context.Background(), func() error {
			return context.DeadlineExceeded
		}, fastRetry(1))

		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, ErrMaxRetries)
	})

	t.Run("stops when context is canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := WithRetry(ctx, func() error {
			calls++
			cancel()
			return &RetryableError{Err: errors.New("busy"), Retryable: true}
		}, RetryOptions{MaxAttempts: 5, InitialDelay: time.Second})

		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestUserError(t *testing.T) {
	cause := errors.New("permission denied")
	err := NewUserError("failed to delete a.png", cause)

	assert.Equal(t, "failed to delete a.png: permission denied", err.Error())
	assert.ErrorIs(t, err, cause)

	var userErr *UserError
	require.ErrorAs(t, err, &userErr)
	assert.Equal(t, "failed to delete a.png", userErr.UserMessage)

	assert.Equal(t, "plain", NewUserError("plain", nil).Error())
}
