package metrics

import (
	"time"

	obserrors "github.com/arrowhq/scheduler-core/internal/observability/errors"
	"github.com/arrowhq/scheduler-core/internal/observability/statsd"
)

// SchedulerTick captures details about one active-job tick for metric emission.
type SchedulerTick struct {
	Task     string
	Duration time.Duration
	Err      error
	Count    int
}

// EmitSchedulerTick emits standardised metrics for a single scheduler active
// job tick, mirroring EmitJobLifecycle's shape for the worker's own ticks.
func EmitSchedulerTick(sink statsd.Sink, in SchedulerTick) {
	if sink == nil {
		return
	}

	result := ResultSuccess
	if in.Err != nil {
		result = ResultError
	} else if in.Count == 0 {
		result = ResultNoop
	}

	tags := map[string]string{
		"task":   in.Task,
		"result": result,
	}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("scheduler.tick", 1, tags)
	if in.Count > 0 {
		sink.Count("scheduler.tasks_enqueued", int64(in.Count), CloneTags(tags))
	}
	if in.Duration > 0 {
		sink.Timing("scheduler.tick_duration", in.Duration, CloneTags(tags))
	}
}
