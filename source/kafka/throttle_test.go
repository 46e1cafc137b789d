package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestThrottle_RefillsTokens(t *testing.T) {
	th := NewThrottle(1, 5*time.Millisecond)
	defer th.Close()
	ctx := context.Background()

	require.NoError(t, th.Acquire(ctx))

	// The bucket is empty now; a refill tick must unblock the next Acquire.
	done := make(chan error, 1)
	go func() { done <- th.Acquire(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Acquire never unblocked after refill")
	}
}

func TestThrottle_AcquireHonorsContext(t *testing.T) {
	th := NewThrottle(1, time.Hour)
	defer th.Close()

	require.NoError(t, th.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := th.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestThrottle_CloseUnblocks(t *testing.T) {
	th := NewThrottle(1, time.Hour)
	require.NoError(t, th.Acquire(context.Background()))

	done := make(chan error, 1)
	go func() { done <- th.Acquire(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	th.Close()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Acquire never unblocked after Close")
	}
}
