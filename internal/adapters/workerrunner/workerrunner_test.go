package workerrunner

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arrowhq/scheduler-core/internal/domain/job"
	"github.com/arrowhq/scheduler-core/internal/domain/model"
	"github.com/arrowhq/scheduler-core/internal/domain/worker"
	"github.com/arrowhq/scheduler-core/internal/kv/memkv"
)

func newWorkerFixture(t *testing.T, handler worker.HandlerFunc) (*worker.Worker, *job.Table) {
	t.Helper()
	store := memkv.New()
	table, err := job.NewTable(store)
	require.NoError(t, err)
	retry, err := job.NewRetryPolicy(job.RetryPolicyOptions{})
	require.NoError(t, err)
	reg := worker.NewRegistry(worker.RegistryOptions{})
	require.NoError(t, reg.RegisterHandler(model.JobTypeHeartbeat, nil, handler))
	wk, err := worker.New(worker.Options{WorkerID: "w1", Table: table, Registry: reg, RetryPolicy: retry})
	require.NoError(t, err)
	return wk, table
}

func TestNew_RequiresWorker(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestRunner_Run_ProcessesDueJobsUntilCancelled(t *testing.T) {
	processed := make(chan struct{}, 1)
	wk, table := newWorkerFixture(t, func(ctx context.Context, j model.Job) error {
		select {
		case processed <- struct{}{}:
		default:
		}
		return nil
	})

	now := time.Date(2026, 3, 5, 6, 0, 0, 0, time.UTC)
	payload, err := json.Marshal(map[string]string{})
	require.NoError(t, err)
	require.NoError(t, table.PutJob(context.Background(), model.Job{
		JobID: "11111111-1111-1111-1111-111111111111", JobType: model.JobTypeHeartbeat,
		Payload: payload, ScheduledFor: now, Status: model.JobStatusPending, CreatedAt: now,
	}))

	runner, err := New(Options{Worker: wk, PollInterval: 5 * time.Millisecond, Clock: func() time.Time { return now }})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = runner.Run(ctx)
	assert.NoError(t, err)

	select {
	case <-processed:
	default:
		t.Fatal("expected the due job to be processed before the runner stopped")
	}
}

func TestRunner_Tick_EmitsNoErrorOnEmptyTable(t *testing.T) {
	wk, _ := newWorkerFixture(t, func(ctx context.Context, j model.Job) error { return nil })
	runner, err := New(Options{Worker: wk})
	require.NoError(t, err)

	runner.tick(context.Background(), time.Now())
}
