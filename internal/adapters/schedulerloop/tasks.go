package schedulerloop

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/arrowhq/scheduler-core/internal/domain/model"
	"github.com/arrowhq/scheduler-core/internal/observability/metrics"
)

const dateLayout = "2006-01-02"

// resolveLocation returns the user's IANA timezone as a *time.Location,
// falling back to UTC when no settings store/resolver is configured or the
// lookup fails, per the core's documented unknown-timezone fallback.
func (r *Runner) resolveLocation(ctx context.Context, user string) *time.Location {
	if r.settings == nil || r.timezones == nil {
		return time.UTC
	}
	settings, err := r.settings.GetUserSettings(ctx, user)
	if err != nil {
		return time.UTC
	}
	loc, err := r.timezones.Resolve(settings.Timezone)
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

// nextLocalClock returns the next instant, on or after now, at which the
// wall clock in loc reads hour:minute:00.
func nextLocalClock(now time.Time, loc *time.Location, hour, minute int) time.Time {
	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if candidate.Before(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// tickDailySummaryEnqueue schedules, for each configured user, a
// daily_summary job at that user's next local 07:00, deduplicated per
// (user, local-date) so repeated hourly ticks within the same target day
// are no-ops.
func (r *Runner) tickDailySummaryEnqueue(ctx context.Context, now time.Time) {
	start := time.Now()
	count := 0
	var lastErr error

	for _, user := range r.dailySummaryUsers {
		loc := r.resolveLocation(ctx, user)
		scheduledFor := nextLocalClock(now, loc, 7, 0)
		localDate := scheduledFor.In(loc).Format(dateLayout)
		logicalID := fmt.Sprintf("daily_summary#%s#%s", user, localDate)

		payload, err := json.Marshal(map[string]string{"user": user})
		if err != nil {
			lastErr = err
			continue
		}

		scheduled, err := r.enqueuer.Enqueue(ctx, now, model.JobTypeDailySummary, payload, scheduledFor, logicalID, localDate)
		if err != nil {
			lastErr = err
			r.logger.Error("daily summary enqueue failed", "user", user, "error", err)
			continue
		}
		if scheduled {
			count++
		}
	}

	metrics.EmitSchedulerTick(r.metrics, metrics.SchedulerTick{
		Task: "daily_summary_enqueue", Duration: time.Since(start), Err: lastErr, Count: count,
	})
}

// tickWorkSamplingEnqueue schedules, for each configured user, N
// work-sampling prompts across that user's local 08:00-17:00 day. Each
// slot's offset within its window is a deterministic function of
// sha256(user || local-date || slot-index), so repeated invocations across
// processes and ticks converge on the same schedule without coordination.
func (r *Runner) tickWorkSamplingEnqueue(ctx context.Context, now time.Time) {
	start := time.Now()
	count := 0
	var lastErr error

	const (
		windowStartHour = 8
		windowEndHour   = 17
	)
	window := time.Duration(windowEndHour-windowStartHour) * time.Hour
	slotDuration := window / time.Duration(r.promptsPerDay)

	for _, user := range r.dailySummaryUsers {
		loc := r.resolveLocation(ctx, user)
		windowStart := nextLocalClock(now, loc, windowStartHour, 0)
		localDate := windowStart.In(loc).Format(dateLayout)

		for slot := 0; slot < r.promptsPerDay; slot++ {
			slotStart := windowStart.Add(time.Duration(slot) * slotDuration)
			offset := workSamplingOffset(user, localDate, slot, slotDuration)
			scheduledFor := slotStart.Add(offset)

			logicalID := fmt.Sprintf("work_sampling_prompt:%s:%s:%d", user, localDate, slot)
			payload, err := json.Marshal(map[string]string{"user": user})
			if err != nil {
				lastErr = err
				continue
			}

			scheduled, err := r.enqueuer.Enqueue(ctx, now, model.JobTypeWorkSamplingPrompt, payload, scheduledFor, logicalID, localDate)
			if err != nil {
				lastErr = err
				r.logger.Error("work sampling enqueue failed", "user", user, "slot", slot, "error", err)
				continue
			}
			if scheduled {
				count++
			}
		}
	}

	metrics.EmitSchedulerTick(r.metrics, metrics.SchedulerTick{
		Task: "work_sampling_enqueue", Duration: time.Since(start), Err: lastErr, Count: count,
	})
}

// workSamplingOffset derives a deterministic pseudo-random duration within
// [0, slotDuration) from sha256(user || local-date || slot-index). Per the
// documented cross-implementation convention, only the first 4 bytes of the
// digest are used, big-endian, so any conformant reimplementation derives
// the same offset regardless of its own PRNG.
func workSamplingOffset(user, localDate string, slot int, slotDuration time.Duration) time.Duration {
	if slotDuration <= 0 {
		return 0
	}
	seed := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", user, localDate, slot)))
	n := binary.BigEndian.Uint32(seed[:4])
	return time.Duration(uint64(n) % uint64(slotDuration))
}

// tickCleanup sweeps terminal jobs older than the configured retention
// window.
func (r *Runner) tickCleanup(ctx context.Context, now time.Time) {
	start := time.Now()
	deleted, err := r.table.CleanupOldJobs(ctx, now, r.retention, func(j model.Job, itemErr error) {
		r.logger.Error("cleanup item failed", "job_id", j.JobID, "error", itemErr)
	})
	if err != nil {
		r.logger.Error("cleanup failed", "error", err)
	}
	metrics.EmitSchedulerTick(r.metrics, metrics.SchedulerTick{
		Task: "cleanup", Duration: time.Since(start), Err: err, Count: deleted,
	})
}

// delayUntilNextUTCHour returns the wait until the next instant at which
// the UTC wall clock reads hour:00:00 strictly after now; when now is
// exactly hour:00:00 the wait is a full day.
func delayUntilNextUTCHour(now time.Time, hour int) time.Duration {
	u := now.UTC()
	next := time.Date(u.Year(), u.Month(), u.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(u) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(u)
}
