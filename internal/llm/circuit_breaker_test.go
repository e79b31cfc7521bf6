package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreakerWithConfig("test", CircuitBreakerConfig{
		MaxFailures: 2,
		Timeout:     time.Minute,
	})

	ctx := context.Background()
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		_, err := cb.Execute(ctx, func() (interface{}, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
	}

	assert.Equal(t, "open", cb.State())

	called := false
	_, err := cb.Execute(ctx, func() (interface{}, error) {
		called = true
		return "ok", nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreakerSuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreakerWithConfig("test", CircuitBreakerConfig{
		MaxFailures: 2,
		Timeout:     time.Minute,
	})

	ctx := context.Background()
	boom := errors.New("boom")

	_, err := cb.Execute(ctx, func() (interface{}, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	result, err := cb.Execute(ctx, func() (interface{}, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", result)

	_, err = cb.Execute(ctx, func() (interface{}, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "closed", cb.State())
}

func TestCircuitBreakerRespectsCancelledContext(t *testing.T) {
	cb := NewCircuitBreaker("test")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cb.Execute(ctx, func() (interface{}, error) { return "ok", nil })
	assert.ErrorIs(t, err, context.Canceled)
}
