// Package schedulerloop runs the leader-lease-gated periodic tasks: lease
// acquire/refresh, and, only while this process holds the lease, the
// "active jobs" (daily-summary enqueue, work-sampling enqueue, worker poll,
// retention cleanup). Grounded in the teacher's adapters/scheduler.Runner:
// one ticker per task, a single goroutine per ticker, serial tick handling
// so a slow tick never overlaps its successor.
package schedulerloop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/arrowhq/scheduler-core/internal/adapters/workerrunner"
	"github.com/arrowhq/scheduler-core/internal/domain/job"
	"github.com/arrowhq/scheduler-core/internal/domain/lease"
	"github.com/arrowhq/scheduler-core/internal/observability/statsd"
	"github.com/arrowhq/scheduler-core/internal/ports"
)

// ErrLeaseRequired indicates a Runner was constructed without a lease.
var ErrLeaseRequired = errors.New("scheduler loop requires a non-nil lease")

// ErrEnqueuerRequired indicates a Runner was constructed without an enqueuer.
var ErrEnqueuerRequired = errors.New("scheduler loop requires a non-nil enqueuer")

// ErrTableRequired indicates a Runner was constructed without a job table.
var ErrTableRequired = errors.New("scheduler loop requires a non-nil job table")

// ErrWorkerRunnerRequired indicates a Runner was constructed without a worker runner.
var ErrWorkerRunnerRequired = errors.New("scheduler loop requires a non-nil worker runner")

// Options configures a Runner.
type Options struct {
	Lease        *lease.Lease
	Enqueuer     *job.Enqueuer
	Table        *job.Table
	WorkerRunner *workerrunner.Runner

	Settings  ports.UserSettingsStore
	Timezones ports.TimezoneResolver

	Logger  *slog.Logger
	Metrics statsd.Sink

	// LockCheckInterval is how often this process refreshes or attempts to
	// acquire the lease. Default 30s (LOCK_CHECK_SECONDS).
	LockCheckInterval time.Duration
	// RetentionDays bounds how long terminal jobs are kept. Default 7.
	RetentionDays int
	// DailySummaryUsers is the configured set of users targeted by the
	// daily-summary and work-sampling enqueue tasks.
	DailySummaryUsers []string
	// WorkSamplingPromptsPerDay is the slot count for work-sampling enqueue.
	// Default 1.
	WorkSamplingPromptsPerDay int

	// Clock returns the current instant; overridable in tests. Defaults to
	// time.Now.
	Clock func() time.Time
}

// Runner manages the leader lease and, while held, the leader's active jobs.
type Runner struct {
	lease        *lease.Lease
	enqueuer     *job.Enqueuer
	table        *job.Table
	workerRunner *workerrunner.Runner

	settings  ports.UserSettingsStore
	timezones ports.TimezoneResolver

	logger  *slog.Logger
	metrics statsd.Sink

	lockCheckInterval time.Duration
	retention         time.Duration
	dailySummaryUsers []string
	promptsPerDay     int
	clock             func() time.Time

	mu           sync.Mutex
	activeCancel context.CancelFunc
	activeDone   chan struct{}
}

// New constructs a Runner.
func New(opts Options) (*Runner, error) {
	if opts.Lease == nil {
		return nil, ErrLeaseRequired
	}
	if opts.Enqueuer == nil {
		return nil, ErrEnqueuerRequired
	}
	if opts.Table == nil {
		return nil, ErrTableRequired
	}
	if opts.WorkerRunner == nil {
		return nil, ErrWorkerRunnerRequired
	}

	lockCheck := opts.LockCheckInterval
	if lockCheck <= 0 {
		lockCheck = 30 * time.Second
	}
	retentionDays := opts.RetentionDays
	if retentionDays <= 0 {
		retentionDays = 7
	}
	promptsPerDay := opts.WorkSamplingPromptsPerDay
	if promptsPerDay <= 0 {
		promptsPerDay = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Runner{
		lease:             opts.Lease,
		enqueuer:          opts.Enqueuer,
		table:             opts.Table,
		workerRunner:      opts.WorkerRunner,
		settings:          opts.Settings,
		timezones:         opts.Timezones,
		logger:            logger,
		metrics:           opts.Metrics,
		lockCheckInterval: lockCheck,
		retention:         time.Duration(retentionDays) * 24 * time.Hour,
		dailySummaryUsers: opts.DailySummaryUsers,
		promptsPerDay:     promptsPerDay,
		clock:             clock,
	}, nil
}

// Run manages the lease until ctx is cancelled, starting and stopping the
// active jobs as leadership is gained and lost. It returns nil on a clean
// shutdown (context cancellation).
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.lockCheckInterval)
	defer ticker.Stop()

	r.manageLease(ctx, r.clock())

	for {
		select {
		case <-ctx.Done():
			r.stopActiveJobs()
			if releaseErr := r.lease.Release(context.Background()); releaseErr != nil {
				r.logger.Error("lease release failed during shutdown", "error", releaseErr)
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case now := <-ticker.C:
			r.manageLease(ctx, now)
		}
	}
}

func (r *Runner) manageLease(ctx context.Context, now time.Time) {
	if r.lease.Acquired() {
		ok, err := r.lease.Refresh(ctx, now)
		if err != nil {
			r.logger.Error("lease refresh failed", "error", err)
			return
		}
		if !ok {
			r.logger.Info("lease lost, stopping active jobs", "process_id", r.lease.ProcessID())
			r.stopActiveJobs()
		}
		return
	}

	ok, err := r.lease.Acquire(ctx, now)
	if err != nil {
		r.logger.Error("lease acquire failed", "error", err)
		return
	}
	if ok {
		r.logger.Info("lease acquired, starting active jobs", "process_id", r.lease.ProcessID())
		r.startActiveJobs()
	}
}

// Status is the read-only scheduler status surface.
type Status struct {
	Acquired      bool
	ProcessID     string
	CurrentHolder *lease.Holder
	InstanceInfo  string
}

// GetSchedulerStatus reports this process's lease state and the current
// lease holder, if any.
func (r *Runner) GetSchedulerStatus(ctx context.Context) (Status, error) {
	status := Status{
		Acquired:  r.lease.Acquired(),
		ProcessID: r.lease.ProcessID(),
	}

	holder, ok, err := r.lease.GetCurrentHolder(ctx)
	if err != nil {
		return status, err
	}
	if ok {
		status.CurrentHolder = &holder
		status.InstanceInfo = holder.InstanceInfo
	}
	return status, nil
}
