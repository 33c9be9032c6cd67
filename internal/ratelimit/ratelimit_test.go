package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"yfengine/internal/ratelimit"
)

func TestMinInterval_SpacesCalls(t *testing.T) {
	t.Parallel()

	// Arrange
	g := &ratelimit.MinInterval{Interval: 30 * time.Millisecond}
	start := time.Now()

	// Act
	for i := 0; i < 3; i++ {
		require.NoError(t, g.Wait(t.Context()))
	}

	// Assert: the third call starts two intervals after the first
	require.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestMinInterval_Canceled(t *testing.T) {
	t.Parallel()

	// Arrange
	g := &ratelimit.MinInterval{Interval: time.Hour}
	require.NoError(t, g.Wait(t.Context()))
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	// Act
	err := g.Wait(ctx)

	// Assert
	require.ErrorIs(t, err, context.Canceled)
}

func TestTokenBucket_Burst(t *testing.T) {
	t.Parallel()

	// Arrange: one token per hour, burst of two
	tb := ratelimit.NewTokenBucket(1.0/3600, 2)

	// Act + Assert: the burst is available immediately, the third call must wait
	require.NoError(t, tb.Wait(t.Context()))
	require.NoError(t, tb.Wait(t.Context()))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, tb.Wait(ctx))
}

func TestNew_DisabledIsNoop(t *testing.T) {
	t.Parallel()

	g := ratelimit.New(0, 0, 0)
	for i := 0; i < 100; i++ {
		require.NoError(t, g.Wait(t.Context()))
	}
}
