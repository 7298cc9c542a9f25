package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/arrowhq/scheduler-core/internal/domain/job"
	"github.com/arrowhq/scheduler-core/internal/domain/model"
	appErrors "github.com/arrowhq/scheduler-core/internal/errors"
	"github.com/arrowhq/scheduler-core/internal/observability/metrics"
	"github.com/arrowhq/scheduler-core/internal/observability/statsd"
	"github.com/arrowhq/scheduler-core/internal/ports"
)

// ErrWorkerIDRequired indicates a Worker was constructed without a worker id.
var ErrWorkerIDRequired = errors.New("worker requires a non-empty worker id")

// ErrTableRequired indicates a Worker was constructed without a job table.
var ErrTableRequired = errors.New("worker requires a non-nil job table")

// ErrRegistryRequired indicates a Worker was constructed without a handler registry.
var ErrRegistryRequired = errors.New("worker requires a non-nil handler registry")

// ErrRetryPolicyRequired indicates a Worker was constructed without a retry policy.
var ErrRetryPolicyRequired = errors.New("worker requires a non-nil retry policy")

// Options configures a Worker.
type Options struct {
	WorkerID     string
	Table        *job.Table
	Registry     *Registry
	RetryPolicy  *job.RetryPolicy
	Sink         ports.ObservabilitySink
	Metrics      statsd.Sink
	PollingLimit int           // default 25
	LockTimeout  time.Duration // default 10 minutes
}

// Worker polls the job table for due, unclaimed jobs, claims them via
// conditional update, dispatches through the handler registry, and resolves
// each attempt to completed, failed-with-retry, or dead-lettered.
type Worker struct {
	workerID     string
	table        *job.Table
	registry     *Registry
	retryPolicy  *job.RetryPolicy
	sink         ports.ObservabilitySink
	metricsSink  statsd.Sink
	pollingLimit int
	lockTimeout  time.Duration
}

// New constructs a Worker.
func New(opts Options) (*Worker, error) {
	if opts.WorkerID == "" {
		return nil, ErrWorkerIDRequired
	}
	if opts.Table == nil {
		return nil, ErrTableRequired
	}
	if opts.Registry == nil {
		return nil, ErrRegistryRequired
	}
	if opts.RetryPolicy == nil {
		return nil, ErrRetryPolicyRequired
	}

	pollingLimit := opts.PollingLimit
	if pollingLimit <= 0 {
		pollingLimit = 25
	}
	lockTimeout := opts.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = 10 * time.Minute
	}

	return &Worker{
		workerID:     opts.WorkerID,
		table:        opts.Table,
		registry:     opts.Registry,
		retryPolicy:  opts.RetryPolicy,
		sink:         opts.Sink,
		metricsSink:  opts.Metrics,
		pollingLimit: pollingLimit,
		lockTimeout:  lockTimeout,
	}, nil
}

func (w *Worker) emitTransition(j model.Job, transition string, result string, err error) {
	metrics.EmitJobLifecycle(w.metricsSink, metrics.JobMetric{
		JobType:    string(j.JobType),
		Transition: transition,
		Result:     result,
		Err:        err,
	})
}

func (w *Worker) reportFailure(ctx context.Context, j model.Job, err error) {
	if w.sink == nil {
		return
	}
	w.sink.SetContext("job", map[string]any{
		"job_id":        j.JobID,
		"job_type":      string(j.JobType),
		"attempts":      j.Attempts,
		"payload":       string(j.Payload),
		"scheduled_for": j.ScheduledFor,
	})
	w.sink.CaptureException(ctx, err)
}

// PollAndProcessJobs runs one tick: fetch due jobs, claim each, dispatch,
// and resolve to a terminal transition. It returns the number of jobs that
// completed any of the three terminal transitions (completed, failed,
// dead_letter) during this call. A job whose claim loses the race
// (ConditionFailed) is skipped, not counted, and not an error.
func (w *Worker) PollAndProcessJobs(ctx context.Context, now time.Time) (int, error) {
	dueJobs, err := w.table.GetDueJobs(ctx, now, w.pollingLimit)
	if err != nil {
		return 0, err
	}

	terminal := 0
	for _, j := range dueJobs {
		if !j.Claimable(now) {
			continue
		}

		id, parseErr := uuid.Parse(j.JobID)
		if parseErr != nil {
			w.reportFailure(ctx, j, parseErr)
			continue
		}

		claimErr := w.table.Claim(ctx, id, j.ScheduledFor, now, job.ClaimUpdate{
			LockedBy:      w.workerID,
			LockExpiresAt: now.Add(w.lockTimeout),
		})
		if claimErr != nil {
			if appErrors.IsConditionFailed(claimErr) {
				continue
			}
			w.reportFailure(ctx, j, claimErr)
			continue
		}

		if w.processClaimed(ctx, id, j, now) {
			terminal++
		}
	}

	return terminal, nil
}

// processClaimed dispatches a successfully claimed job and resolves it to a
// terminal transition, reporting true if that transition's write succeeded.
func (w *Worker) processClaimed(ctx context.Context, id uuid.UUID, j model.Job, now time.Time) bool {
	dispatchErr := w.registry.Dispatch(ctx, j)
	if dispatchErr == nil {
		if err := w.table.Complete(ctx, id, j.ScheduledFor, w.workerID, job.CompleteUpdate{CompletedAt: now}); err != nil {
			if !appErrors.IsConditionFailed(err) {
				w.reportFailure(ctx, j, err)
			}
			return false
		}
		w.emitTransition(j, "completed", metrics.ResultSuccess, nil)
		return true
	}

	attempts := j.Attempts + 1
	w.reportFailure(ctx, j, dispatchErr)

	if w.retryPolicy.ShouldRetry(attempts) {
		if err := w.table.Fail(ctx, id, j.ScheduledFor, w.workerID, job.FailUpdate{
			Attempts:  attempts,
			LastError: dispatchErr.Error(),
		}); err != nil {
			if !appErrors.IsConditionFailed(err) {
				w.reportFailure(ctx, j, err)
			}
			return false
		}

		retryJob := j
		retryJob.ScheduledFor = w.retryPolicy.NextRun(now, attempts)
		retryJob.Status = model.JobStatusPending
		retryJob.Attempts = attempts
		retryJob.LastError = dispatchErr.Error()
		retryJob.LockedBy = ""
		retryJob.LockExpiresAt = nil
		retryJob.CompletedAt = nil

		if err := w.table.PutJob(ctx, retryJob); err != nil {
			w.reportFailure(ctx, j, err)
			return false
		}
		w.emitTransition(j, "failed", metrics.ResultError, dispatchErr)
		return true
	}

	if err := w.table.DeadLetter(ctx, id, j.ScheduledFor, w.workerID, job.FailUpdate{
		Attempts:  attempts,
		LastError: dispatchErr.Error(),
	}); err != nil {
		if !appErrors.IsConditionFailed(err) {
			w.reportFailure(ctx, j, err)
		}
		return false
	}
	w.emitTransition(j, "dead_letter", metrics.ResultError, dispatchErr)
	return true
}
