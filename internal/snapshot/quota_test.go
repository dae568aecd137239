package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pagekeep/pagekeep/internal/cache"
)

func TestQuotaGateCountsDownToZero(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gate := NewQuotaGate(cache.NewMemory(), 3, time.Hour)

	for want := 2; want >= 0; want-- {
		decision, err := gate.Allow(ctx, "user-1")
		require.NoError(t, err)
		require.True(t, decision.Allowed)
		require.Equal(t, want, decision.Remaining)
	}

	decision, err := gate.Allow(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Zero(t, decision.Remaining)
}

func TestQuotaGateUsersAreIndependent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gate := NewQuotaGate(cache.NewMemory(), 1, time.Hour)

	first, err := gate.Allow(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, first.Allowed)

	blocked, err := gate.Allow(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, blocked.Allowed)

	other, err := gate.Allow(ctx, "user-2")
	require.NoError(t, err)
	require.True(t, other.Allowed)
}

func TestQuotaGateWindowExpiryResets(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0).UTC()}
	mem := cache.NewMemory()
	mem.SetNowFunc(clock.Now)
	gate := NewQuotaGate(mem, 2, time.Hour)

	for range 2 {
		decision, err := gate.Allow(ctx, "user-1")
		require.NoError(t, err)
		require.True(t, decision.Allowed)
	}
	decision, err := gate.Allow(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	clock.Advance(61 * time.Minute)
	decision, err = gate.Allow(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, decision.Allowed, "new window should reset the counter")
	require.Equal(t, 1, decision.Remaining)
}
