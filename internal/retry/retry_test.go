package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wyenfos-bills/wyenfos-bills/internal/shared"
)

func TestExhaustionAttemptsAndBackoff(t *testing.T) {
	attempts := 0
	start := time.Now()
	err := Do(context.Background(), Policy{MaxAttempts: 3, BaseBackoff: 300 * time.Millisecond}, func(context.Context) error {
		attempts++
		return errors.New("smtp down")
	})
	elapsed := time.Since(start)

	require.ErrorIs(t, err, shared.ErrTransient)
	require.Contains(t, err.Error(), "3 attempts")
	require.Contains(t, err.Error(), "smtp down")
	require.Equal(t, 3, attempts)
	// Waits 300ms then 600ms between the three attempts.
	require.GreaterOrEqual(t, elapsed, 900*time.Millisecond)
}

func TestSucceedsWithoutWaitingAfterRecovery(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Policy{MaxAttempts: 5, BaseBackoff: time.Millisecond}, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestContextCancelAbortsBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	attempts := 0
	err := Do(ctx, Policy{MaxAttempts: 10, BaseBackoff: time.Second}, func(context.Context) error {
		attempts++
		return errors.New("down")
	})
	require.ErrorIs(t, err, shared.ErrTransient)
	require.Equal(t, 1, attempts)
}
