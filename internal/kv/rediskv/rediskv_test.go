package rediskv_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/arrowhq/scheduler-core/internal/errors"
	"github.com/arrowhq/scheduler-core/internal/kv"
	"github.com/arrowhq/scheduler-core/internal/kv/rediskv"
	"github.com/arrowhq/scheduler-core/internal/testutil"
)

func newStore(t *testing.T) *rediskv.Store {
	t.Helper()
	client := testutil.SetupTestRedis(t)
	t.Cleanup(func() { _ = client.Close() })
	return rediskv.New(client, "scheduler-test")
}

func TestStore_PutConditionalOnAbsence(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	key := kv.Key{PK: "job", SK: "scheduled#1"}

	require.NoError(t, store.Put(ctx, key, kv.Item{"status": "pending"}, kv.AttrNotExists("PK")))

	err := store.Put(ctx, key, kv.Item{"status": "pending"}, kv.AttrNotExists("PK"))
	require.Error(t, err)
	assert.True(t, appErrors.IsConditionFailed(err))
}

func TestStore_GetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	key := kv.Key{PK: "job", SK: "scheduled#1"}
	want := kv.Item{"status": "pending", "attempts": float64(0)}

	require.NoError(t, store.Put(ctx, key, want, kv.NoCondition()))

	got, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want["status"], got["status"])
}

func TestStore_UpdateConditionGatesTransition(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	key := kv.Key{PK: "job", SK: "scheduled#1"}
	require.NoError(t, store.Put(ctx, key, kv.Item{"status": "pending"}, kv.NoCondition()))

	require.NoError(t, store.Update(ctx, key, kv.Item{"status": "in_progress"}, kv.Equals("status", "pending")))

	err := store.Update(ctx, key, kv.Item{"status": "in_progress"}, kv.Equals("status", "pending"))
	require.Error(t, err)
	assert.True(t, appErrors.IsConditionFailed(err))
}

func TestStore_QueryRangeAndFilter(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	for i, sk := range []string{"scheduled#a", "scheduled#b", "scheduled#c"} {
		status := "pending"
		if i == 1 {
			status = "completed"
		}
		require.NoError(t, store.Put(ctx, kv.Key{PK: "job-query", SK: sk}, kv.Item{"status": status}, kv.NoCondition()))
	}

	out, err := store.Query(ctx, kv.QueryInput{
		PK:     "job-query",
		SK:     kv.Range{To: "scheduled#c"},
		Filter: kv.Equals("status", "pending"),
		Limit:  10,
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestStore_UpdateConditionOnStaleTimestamp(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	key := kv.Key{PK: "job", SK: "scheduled#1"}
	lockExpiresAt := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Put(ctx, key, kv.Item{"lock_expires_at": lockExpiresAt}, kv.NoCondition()))

	// Stored through Redis, lock_expires_at round-trips through JSON and
	// comes back out of Get/readItem as a string, not a time.Time; the
	// condition's right-hand side stays a native time.Time, as every real
	// caller (job.Table.Claim, lease.Lease.Acquire) supplies. A condition
	// evaluated against a deadline the clock hasn't reached yet must fail.
	before := lockExpiresAt.Add(-time.Minute)
	err := store.Update(ctx, key, kv.Item{"status": "reclaimed"}, kv.LessOrEqual("lock_expires_at", before))
	require.Error(t, err, "a not-yet-expired lock must not be reclaimable")
	assert.True(t, appErrors.IsConditionFailed(err))

	// ...and must succeed once the deadline has passed.
	after := lockExpiresAt.Add(time.Minute)
	require.NoError(t, store.Update(ctx, key, kv.Item{"status": "reclaimed"}, kv.LessOrEqual("lock_expires_at", after)))

	got, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "reclaimed", got["status"])
}

func TestStore_DeleteConditional(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	key := kv.Key{PK: "system#scheduler", SK: "lock#main"}
	require.NoError(t, store.Put(ctx, key, kv.Item{"process_id": "p1"}, kv.NoCondition()))

	err := store.Delete(ctx, key, kv.Equals("process_id", "p2"))
	require.Error(t, err)
	assert.True(t, appErrors.IsConditionFailed(err))

	require.NoError(t, store.Delete(ctx, key, kv.Equals("process_id", "p1")))
	_, ok, _ := store.Get(ctx, key)
	assert.False(t, ok)
}
