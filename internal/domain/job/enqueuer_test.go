package job

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arrowhq/scheduler-core/internal/domain/model"
	"github.com/arrowhq/scheduler-core/internal/kv/memkv"
)

func newEnqueuerFixture(t *testing.T) *Enqueuer {
	t.Helper()
	store := memkv.New()
	table, err := NewTable(store)
	require.NoError(t, err)
	dedup, err := NewDedupIndex(store)
	require.NoError(t, err)
	enq, err := NewEnqueuer(table, dedup)
	require.NoError(t, err)
	return enq
}

func TestEnqueuer_Enqueue_WithoutLogicalIDAlwaysCreates(t *testing.T) {
	enq := newEnqueuerFixture(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	scheduled, err := enq.Enqueue(context.Background(), now, model.JobTypeHeartbeat, nil, now, "", "")
	require.NoError(t, err)
	assert.True(t, scheduled)

	scheduled, err = enq.Enqueue(context.Background(), now, model.JobTypeHeartbeat, nil, now, "", "")
	require.NoError(t, err)
	assert.True(t, scheduled, "a second call without a logical id always creates another job")
}

func TestEnqueuer_Enqueue_WithLogicalIDDeduplicatesWithinBucket(t *testing.T) {
	enq := newEnqueuerFixture(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	scheduled, err := enq.Enqueue(context.Background(), now, model.JobTypeDailySummary, nil, now, "daily_summary#alice#2026-01-01", "2026-01-01")
	require.NoError(t, err)
	assert.True(t, scheduled)

	scheduled, err = enq.Enqueue(context.Background(), now, model.JobTypeDailySummary, nil, now, "daily_summary#alice#2026-01-01", "2026-01-01")
	require.NoError(t, err)
	assert.False(t, scheduled, "a repeat call for the same logical id and bucket is a no-op")
}

func TestEnqueuer_Enqueue_SameLogicalIDDifferentBucketBothSchedule(t *testing.T) {
	enq := newEnqueuerFixture(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	scheduled, err := enq.Enqueue(context.Background(), now, model.JobTypeDailySummary, nil, now, "daily_summary#alice", "2026-01-01")
	require.NoError(t, err)
	assert.True(t, scheduled)

	scheduled, err = enq.Enqueue(context.Background(), now, model.JobTypeDailySummary, nil, now, "daily_summary#alice", "2026-01-02")
	require.NoError(t, err)
	assert.True(t, scheduled, "a different bucket is a distinct reservation slot")
}
