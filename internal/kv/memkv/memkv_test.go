package memkv_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/arrowhq/scheduler-core/internal/errors"
	"github.com/arrowhq/scheduler-core/internal/kv"
	"github.com/arrowhq/scheduler-core/internal/kv/memkv"
)

func TestPut_ConditionalOnAbsence(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	key := kv.Key{PK: "job", SK: "scheduled#1"}

	err := store.Put(ctx, key, kv.Item{"status": "pending"}, kv.AttrNotExists("PK"))
	require.NoError(t, err)

	err = store.Put(ctx, key, kv.Item{"status": "pending"}, kv.AttrNotExists("PK"))
	require.Error(t, err)
	assert.True(t, appErrors.IsConditionFailed(err))
}

func TestGet_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	key := kv.Key{PK: "job", SK: "scheduled#1"}
	want := kv.Item{"status": "pending", "attempts": 0}

	require.NoError(t, store.Put(ctx, key, want, kv.NoCondition()))

	got, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestGet_Missing(t *testing.T) {
	store := memkv.New()
	_, ok, err := store.Get(context.Background(), kv.Key{PK: "job", SK: "nope"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdate_ConditionGatesStatusTransition(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	key := kv.Key{PK: "job", SK: "scheduled#1"}
	require.NoError(t, store.Put(ctx, key, kv.Item{"status": "pending"}, kv.NoCondition()))

	err := store.Update(ctx, key, kv.Item{"status": "in_progress"}, kv.Equals("status", "pending"))
	require.NoError(t, err)

	err = store.Update(ctx, key, kv.Item{"status": "in_progress"}, kv.Equals("status", "pending"))
	require.Error(t, err)
	assert.True(t, appErrors.IsConditionFailed(err))

	got, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "in_progress", got["status"])
}

func TestUpdate_NilValueClearsAttribute(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	key := kv.Key{PK: "job", SK: "scheduled#1"}
	require.NoError(t, store.Put(ctx, key, kv.Item{"locked_by": "worker-1"}, kv.NoCondition()))

	require.NoError(t, store.Update(ctx, key, kv.Item{"locked_by": nil}, kv.NoCondition()))

	got, _, err := store.Get(ctx, key)
	require.NoError(t, err)
	_, present := got["locked_by"]
	assert.False(t, present)
}

func TestDelete_Conditional(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	key := kv.Key{PK: "system#scheduler", SK: "lock#main"}
	require.NoError(t, store.Put(ctx, key, kv.Item{"process_id": "p1"}, kv.NoCondition()))

	err := store.Delete(ctx, key, kv.Equals("process_id", "p2"))
	require.Error(t, err)
	assert.True(t, appErrors.IsConditionFailed(err))

	require.NoError(t, store.Delete(ctx, key, kv.Equals("process_id", "p1")))
	_, ok, _ := store.Get(ctx, key)
	assert.False(t, ok)
}

func TestQuery_RangeOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	for i, sk := range []string{"scheduled#a", "scheduled#b", "scheduled#c"} {
		status := "pending"
		if i == 1 {
			status = "completed"
		}
		require.NoError(t, store.Put(ctx, kv.Key{PK: "job", SK: sk}, kv.Item{"status": status}, kv.NoCondition()))
	}

	out, err := store.Query(ctx, kv.QueryInput{
		PK:     "job",
		SK:     kv.Range{To: "scheduled#c"},
		Filter: kv.Equals("status", "pending"),
		Limit:  10,
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "pending", out[0]["status"])
}

func TestQuery_Limit(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	for _, sk := range []string{"scheduled#a", "scheduled#b", "scheduled#c"} {
		require.NoError(t, store.Put(ctx, kv.Key{PK: "job", SK: sk}, kv.Item{"status": "pending"}, kv.NoCondition()))
	}

	out, err := store.Query(ctx, kv.QueryInput{PK: "job", Filter: kv.NoCondition(), Limit: 2})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}
