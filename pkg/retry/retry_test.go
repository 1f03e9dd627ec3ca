package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDoSucceedsImmediately(t *testing.T) {
	calls := 0
	res := Do(context.Background(), Policy{Attempts: 5, Backoff: time.Hour}, func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.True(t, res.OK)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, calls)
	assert.NoError(t, res.Err())
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	res := Do(context.Background(), Policy{Attempts: 5, Backoff: time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	assert.True(t, res.OK)
	assert.Equal(t, 3, res.Attempts)
}

func TestDoExhaustsAttempts(t *testing.T) {
	boom := errors.New("connection refused")
	res := Do(context.Background(), Policy{Attempts: 3, Backoff: time.Millisecond}, func(ctx context.Context) error {
		return boom
	})

	assert.False(t, res.OK)
	assert.Equal(t, 3, res.Attempts)
	assert.ErrorIs(t, res.Err(), ErrTimeout)
	assert.Contains(t, res.Err().Error(), "connection refused")
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	res := Do(ctx, Policy{Attempts: 100, Backoff: 10 * time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("not yet")
	})

	assert.False(t, res.OK)
	assert.Equal(t, 2, res.Attempts)
	assert.ErrorIs(t, res.LastErr, context.Canceled)
}

func TestForTimeout(t *testing.T) {
	p := ForTimeout(10*time.Second, 500*time.Millisecond)
	assert.Equal(t, 20, p.Attempts)
	assert.Equal(t, 500*time.Millisecond, p.Backoff)

	p = ForTimeout(100*time.Millisecond, time.Second)
	assert.Equal(t, 1, p.Attempts)

	p = ForTimeout(3*time.Second, 0)
	assert.Equal(t, 3, p.Attempts)
	assert.Equal(t, time.Second, p.Backoff)
}
