package lease

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arrowhq/scheduler-core/internal/kv/memkv"
)

func TestNew_RequiresStoreAndProcessID(t *testing.T) {
	_, err := New(Options{ProcessID: "p1"})
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = New(Options{Store: memkv.New()})
	assert.ErrorIs(t, err, ErrProcessIDRequired)
}

func TestLease_Acquire_ContentionExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	p1, err := New(Options{Store: store, ProcessID: "p1"})
	require.NoError(t, err)
	p2, err := New(Options{Store: store, ProcessID: "p2"})
	require.NoError(t, err)

	ok1, err := p1.Acquire(ctx, now)
	require.NoError(t, err)
	ok2, err := p2.Acquire(ctx, now.Add(time.Millisecond))
	require.NoError(t, err)

	assert.True(t, ok1)
	assert.False(t, ok2)

	holder, found, err := p1.GetCurrentHolder(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "p1", holder.ProcessID)
}

func TestLease_Acquire_StaleLeaseCanBeStolen(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	p1, err := New(Options{Store: store, ProcessID: "p1", StaleAfter: 60 * time.Second})
	require.NoError(t, err)
	p2, err := New(Options{Store: store, ProcessID: "p2", StaleAfter: 60 * time.Second})
	require.NoError(t, err)

	ok1, err := p1.Acquire(ctx, now)
	require.NoError(t, err)
	require.True(t, ok1)

	later := now.Add(61 * time.Second)
	ok2, err := p2.Acquire(ctx, later)
	require.NoError(t, err)
	assert.True(t, ok2)

	holder, _, err := p2.GetCurrentHolder(ctx)
	require.NoError(t, err)
	assert.Equal(t, "p2", holder.ProcessID)
}

func TestLease_Refresh_ExtendsOnlyIfHeld(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	l, err := New(Options{Store: store, ProcessID: "p1"})
	require.NoError(t, err)

	ok, err := l.Refresh(ctx, now)
	require.NoError(t, err)
	assert.False(t, ok, "refresh before acquire is a no-op")

	_, err = l.Acquire(ctx, now)
	require.NoError(t, err)

	ok, err = l.Refresh(ctx, now.Add(30*time.Second))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, l.Acquired())
}

func TestLease_Refresh_LosesLeaseWhenStolen(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	p1, err := New(Options{Store: store, ProcessID: "p1", StaleAfter: time.Second})
	require.NoError(t, err)
	p2, err := New(Options{Store: store, ProcessID: "p2", StaleAfter: time.Second})
	require.NoError(t, err)

	_, err = p1.Acquire(ctx, now)
	require.NoError(t, err)

	stolen := now.Add(2 * time.Second)
	ok, err := p2.Acquire(ctx, stolen)
	require.NoError(t, err)
	require.True(t, ok)

	refreshed, err := p1.Refresh(ctx, stolen.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.False(t, p1.Acquired())
}

func TestLease_Release_SwallowsConditionFailed(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	p1, err := New(Options{Store: store, ProcessID: "p1", StaleAfter: time.Second})
	require.NoError(t, err)
	p2, err := New(Options{Store: store, ProcessID: "p2", StaleAfter: time.Second})
	require.NoError(t, err)

	_, err = p1.Acquire(ctx, now)
	require.NoError(t, err)
	_, err = p2.Acquire(ctx, now.Add(2*time.Second))
	require.NoError(t, err)

	require.NoError(t, p1.Release(ctx))
	assert.False(t, p1.Acquired())

	holder, _, err := p2.GetCurrentHolder(ctx)
	require.NoError(t, err)
	assert.Equal(t, "p2", holder.ProcessID, "release by the prior holder must not disturb the new holder")
}
