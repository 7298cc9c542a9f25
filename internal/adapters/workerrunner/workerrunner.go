// Package workerrunner runs a Worker's poll/dispatch cycle across a
// configurable number of concurrent goroutines, grounded in the teacher's
// adapters/rulesrunner use of golang.org/x/sync/errgroup for a fan-out
// worker pool: N goroutines, each independently polling on its own ticker,
// first error cancels the group.
package workerrunner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arrowhq/scheduler-core/internal/domain/worker"
	"github.com/arrowhq/scheduler-core/internal/observability/metrics"
	"github.com/arrowhq/scheduler-core/internal/observability/statsd"
)

// ErrWorkerRequired indicates a Runner was constructed without a worker.
var ErrWorkerRequired = errors.New("worker runner requires a non-nil worker")

// Options configures a Runner.
type Options struct {
	Worker *worker.Worker

	// Concurrency is the number of independent poll/dispatch goroutines.
	// polling_limit bounds each individual call, not the aggregate across
	// goroutines. Default 1.
	Concurrency int
	// PollInterval is how often each goroutine polls for due jobs. Default 30s.
	PollInterval time.Duration

	Logger  *slog.Logger
	Metrics statsd.Sink

	// Clock returns the current instant; overridable in tests.
	Clock func() time.Time
}

// Runner drives Concurrency goroutines, each ticking PollAndProcessJobs.
type Runner struct {
	worker *worker.Worker

	concurrency  int
	pollInterval time.Duration
	logger       *slog.Logger
	metrics      statsd.Sink
	clock        func() time.Time
}

// New constructs a Runner.
func New(opts Options) (*Runner, error) {
	if opts.Worker == nil {
		return nil, ErrWorkerRequired
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
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
		worker:       opts.Worker,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		logger:       logger,
		metrics:      opts.Metrics,
		clock:        clock,
	}, nil
}

// Run starts Concurrency poll/dispatch goroutines and blocks until ctx is
// cancelled or one of them returns a non-nil error, in which case the
// others are cancelled too (errgroup's first-error-wins semantics).
func (r *Runner) Run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)
	for i := 0; i < r.concurrency; i++ {
		group.Go(func() error { return r.loop(gctx) })
	}
	return group.Wait()
}

func (r *Runner) loop(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx, r.clock())
		}
	}
}

func (r *Runner) tick(ctx context.Context, now time.Time) {
	start := time.Now()
	processed, err := r.worker.PollAndProcessJobs(ctx, now)
	if err != nil {
		r.logger.Error("worker poll failed", "error", err)
	}
	metrics.EmitSchedulerTick(r.metrics, metrics.SchedulerTick{
		Task: "worker_poll", Duration: time.Since(start), Err: err, Count: processed,
	})
}
