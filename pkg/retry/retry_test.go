package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsAfterRetries(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return Retryable(errors.New("transient"))
		}
		return nil
	}, WithMaxAttempts(5), WithInitialDelay(time.Millisecond))

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	base := errors.New("still failing")
	attempts := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return Retryable(base)
	}, WithMaxAttempts(3), WithInitialDelay(time.Millisecond))

	assert.ErrorIs(t, err, base)
	assert.Equal(t, 3, attempts)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	base := errors.New("bad input")
	attempts := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return Permanent(base)
	}, WithMaxAttempts(5), WithInitialDelay(time.Millisecond))

	assert.ErrorIs(t, err, base)
	assert.Equal(t, 1, attempts)
}

func TestDo_UnmarkedErrorNotRetried(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("plain")
	}, WithMaxAttempts(5), WithInitialDelay(time.Millisecond))

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_RetryIfPredicate(t *testing.T) {
	target := errors.New("conflict")
	attempts := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return target
		}
		return nil
	},
		WithMaxAttempts(3),
		WithInitialDelay(time.Millisecond),
		WithRetryIf(func(err error) bool { return errors.Is(err, target) }),
	)

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, func(ctx context.Context) error {
		attempts++
		return Retryable(errors.New("transient"))
	}, WithMaxAttempts(100), WithInitialDelay(50*time.Millisecond))

	require.Error(t, err)
	assert.Less(t, attempts, 100)
}

func TestDoWithData(t *testing.T) {
	attempts := 0
	got, err := DoWithData(context.Background(), func(ctx context.Context) (int, error) {
		attempts++
		if attempts == 1 {
			return 0, Retryable(errors.New("transient"))
		}
		return 42, nil
	}, WithInitialDelay(time.Millisecond))

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestDelayBackoffIsBounded(t *testing.T) {
	r := New(WithInitialDelay(10*time.Millisecond), WithMaxDelay(40*time.Millisecond), WithJitter(0))
	assert.Equal(t, 10*time.Millisecond, r.delay(1))
	assert.Equal(t, 20*time.Millisecond, r.delay(2))
	assert.Equal(t, 40*time.Millisecond, r.delay(3))
	assert.Equal(t, 40*time.Millisecond, r.delay(10))
}

func TestStorageRetrierRetriesRetryable(t *testing.T) {
	attempts := 0
	err := StorageRetrier().Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return Retryable(errors.New("optimistic lock"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}
