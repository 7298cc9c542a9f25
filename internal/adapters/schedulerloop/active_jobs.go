package schedulerloop

import (
	"context"
	"sync"
	"time"
)

// startActiveJobs installs the leader's periodic timers. It is a no-op if
// active jobs are already running (a spurious repeat Acquire success, which
// should not happen since Acquired() is checked first, but is guarded here
// defensively against concurrent manageLease calls).
func (r *Runner) startActiveJobs() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.activeCancel = cancel

	var wg sync.WaitGroup
	tasks := []struct {
		name     string
		interval time.Duration
		run      func(context.Context, time.Time)
	}{
		{"daily_summary_enqueue", time.Hour, r.tickDailySummaryEnqueue},
		{"work_sampling_enqueue", time.Hour, r.tickWorkSamplingEnqueue},
	}

	for _, task := range tasks {
		task := task
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.runActiveJob(ctx, task.name, task.interval, task.run)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.runCleanupJob(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := r.workerRunner.Run(ctx); err != nil {
			r.logger.Error("worker runner stopped", "error", err)
		}
	}()

	done := make(chan struct{})
	r.activeDone = done
	go func() {
		wg.Wait()
		close(done)
	}()
}

// runActiveJob runs one named task on its own ticker until ctx is
// cancelled. A time.Ticker's channel holds at most one pending tick, so a
// slow run never causes overlapping invocations (max_instances=1): the next
// tick is simply delayed until the current one returns.
func (r *Runner) runActiveJob(ctx context.Context, name string, interval time.Duration, run func(context.Context, time.Time)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.logger.Debug("active job tick", "task", name)
			run(ctx, now)
		}
	}
}

// runCleanupJob runs the retention sweep once daily at 02:00 UTC: it waits
// out the delay to the next occurrence, runs, then switches to a 24h
// ticker. The same single-goroutine, serial-tick discipline as
// runActiveJob applies.
func (r *Runner) runCleanupJob(ctx context.Context) {
	timer := time.NewTimer(delayUntilNextUTCHour(r.clock(), 2))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case now := <-timer.C:
		r.tickCleanup(ctx, now)
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.tickCleanup(ctx, now)
		}
	}
}

// stopActiveJobs cancels and waits for the leader's periodic timers, if
// running. Safe to call when no active jobs are running.
func (r *Runner) stopActiveJobs() {
	r.mu.Lock()
	cancel := r.activeCancel
	done := r.activeDone
	r.activeCancel = nil
	r.activeDone = nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}
