package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/errclass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsAfterRetryableFailures(t *testing.T) {
	attempts := 0
	cfg := Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}

	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("wrap: %w", errclass.ErrTransportRetryable)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_StopsOnFatalError(t *testing.T) {
	attempts := 0
	cfg := Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}

	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		return errclass.ErrTransportFatal
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrTransportFatal))
	assert.Equal(t, 1, attempts)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	cfg := Config{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}

	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		return errclass.ErrTransportRetryable
	})

	require.Error(t, err)
	assert.Equal(t, 2, attempts)
}
