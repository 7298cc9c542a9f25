package schedulerloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arrowhq/scheduler-core/internal/adapters/workerrunner"
	"github.com/arrowhq/scheduler-core/internal/domain/job"
	"github.com/arrowhq/scheduler-core/internal/domain/lease"
	"github.com/arrowhq/scheduler-core/internal/domain/worker"
	"github.com/arrowhq/scheduler-core/internal/kv/memkv"
	"github.com/arrowhq/scheduler-core/internal/ports"
)

type fakeSettingsStore struct {
	tz map[string]string
}

func (s fakeSettingsStore) GetUserSettings(ctx context.Context, user string) (ports.Settings, error) {
	return ports.Settings{Timezone: s.tz[user]}, nil
}

type fakeTimezoneResolver struct{}

func (fakeTimezoneResolver) Resolve(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

func newRunnerFixtureWithStore(t *testing.T, store *memkv.Store, processID string, users []string, promptsPerDay int) *Runner {
	t.Helper()
	table, err := job.NewTable(store)
	require.NoError(t, err)
	dedup, err := job.NewDedupIndex(store)
	require.NoError(t, err)
	enq, err := job.NewEnqueuer(table, dedup)
	require.NoError(t, err)
	ls, err := lease.New(lease.Options{Store: store, ProcessID: processID})
	require.NoError(t, err)
	retry, err := job.NewRetryPolicy(job.RetryPolicyOptions{})
	require.NoError(t, err)
	reg := worker.NewRegistry(worker.RegistryOptions{})
	wk, err := worker.New(worker.Options{WorkerID: "worker-1", Table: table, Registry: reg, RetryPolicy: retry})
	require.NoError(t, err)
	wr, err := workerrunner.New(workerrunner.Options{Worker: wk})
	require.NoError(t, err)

	r, err := New(Options{
		Lease:                     ls,
		Enqueuer:                  enq,
		Table:                     table,
		WorkerRunner:              wr,
		Settings:                  fakeSettingsStore{tz: map[string]string{"alice": "America/Chicago"}},
		Timezones:                 fakeTimezoneResolver{},
		DailySummaryUsers:         users,
		WorkSamplingPromptsPerDay: promptsPerDay,
	})
	require.NoError(t, err)
	return r
}

func newRunnerFixture(t *testing.T, users []string, promptsPerDay int) *Runner {
	t.Helper()
	return newRunnerFixtureWithStore(t, memkv.New(), "proc-1", users, promptsPerDay)
}

func TestNextLocalClock_SameDayBeforeTarget(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 3, 5, 6, 0, 0, 0, loc)
	next := nextLocalClock(now, loc, 7, 0)
	assert.Equal(t, time.Date(2026, 3, 5, 7, 0, 0, 0, loc), next)
}

func TestNextLocalClock_AfterTargetRollsToNextDay(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 3, 5, 8, 0, 0, 0, loc)
	next := nextLocalClock(now, loc, 7, 0)
	assert.Equal(t, time.Date(2026, 3, 6, 7, 0, 0, 0, loc), next)
}

func TestWorkSamplingOffset_DeterministicAndWithinBounds(t *testing.T) {
	slotDuration := 90 * time.Minute
	a := workSamplingOffset("alice", "2026-03-05", 2, slotDuration)
	b := workSamplingOffset("alice", "2026-03-05", 2, slotDuration)
	assert.Equal(t, a, b, "same inputs must yield the same offset")
	assert.True(t, a >= 0 && a < slotDuration)

	c := workSamplingOffset("alice", "2026-03-05", 3, slotDuration)
	assert.NotEqual(t, a, c, "distinct slots should (overwhelmingly likely) diverge")
}

func TestDelayUntilNextUTCHour(t *testing.T) {
	now := time.Date(2026, 3, 5, 1, 0, 0, 0, time.UTC)
	d := delayUntilNextUTCHour(now, 2)
	assert.Equal(t, time.Hour, d)

	now2 := time.Date(2026, 3, 5, 3, 0, 0, 0, time.UTC)
	d2 := delayUntilNextUTCHour(now2, 2)
	assert.Equal(t, 23*time.Hour, d2)
}

func TestRunner_TickDailySummaryEnqueue_DeduplicatesAcrossTicks(t *testing.T) {
	r := newRunnerFixture(t, []string{"alice"}, 1)
	now := time.Date(2026, 3, 5, 6, 0, 0, 0, time.UTC)

	r.tickDailySummaryEnqueue(context.Background(), now)
	jobs, err := r.table.GetDueJobs(context.Background(), now.Add(48*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "daily_summary", string(jobs[0].JobType))

	r.tickDailySummaryEnqueue(context.Background(), now.Add(time.Hour))
	jobsAfter, err := r.table.GetDueJobs(context.Background(), now.Add(48*time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, jobsAfter, 1, "a repeat tick for the same local date must not create a second job")
}

func TestRunner_TickWorkSamplingEnqueue_CreatesOneJobPerSlot(t *testing.T) {
	r := newRunnerFixture(t, []string{"alice"}, 4)
	now := time.Date(2026, 3, 5, 6, 0, 0, 0, time.UTC)

	r.tickWorkSamplingEnqueue(context.Background(), now)
	jobs, err := r.table.GetDueJobs(context.Background(), now.Add(48*time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 4)
}

func TestRunner_GetSchedulerStatus_ReflectsLeaseState(t *testing.T) {
	r := newRunnerFixture(t, nil, 1)
	now := time.Date(2026, 3, 5, 6, 0, 0, 0, time.UTC)

	status, err := r.GetSchedulerStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Acquired)
	assert.Nil(t, status.CurrentHolder)

	r.manageLease(context.Background(), now)

	status, err = r.GetSchedulerStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Acquired)
	require.NotNil(t, status.CurrentHolder)
	assert.Equal(t, "proc-1", status.CurrentHolder.ProcessID)
}

func TestRunner_ManageLease_LossStopsActiveJobs(t *testing.T) {
	store := memkv.New()
	r := newRunnerFixtureWithStore(t, store, "proc-1", nil, 1)
	now := time.Date(2026, 3, 5, 6, 0, 0, 0, time.UTC)

	r.manageLease(context.Background(), now)
	require.True(t, r.lease.Acquired())
	r.mu.Lock()
	running := r.activeCancel != nil
	r.mu.Unlock()
	require.True(t, running, "active jobs must start once the lease is acquired")

	competitor, err := lease.New(lease.Options{Store: store, ProcessID: "proc-2"})
	require.NoError(t, err)
	ok, err := competitor.Acquire(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	r.manageLease(context.Background(), now.Add(2*time.Minute))
	assert.False(t, r.lease.Acquired())
	r.mu.Lock()
	running = r.activeCancel != nil
	r.mu.Unlock()
	assert.False(t, running, "active jobs must stop once the lease is lost")
}
