package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	obserrors "github.com/arrowhq/scheduler-core/internal/observability/errors"
	"github.com/arrowhq/scheduler-core/internal/ports"
)

var _ ports.ObservabilitySink = (*CompositeSink)(nil)

// CompositeSink implements ports.ObservabilitySink, fanning every captured
// exception out to a set of Sink destinations (Slack, PagerDuty, ...) and
// always to structured logging. SetContext accumulates fields under name,
// mirroring the teacher's scoped-context-then-capture idiom; the "job"
// context's job_id, job_type, attempts, payload and scheduled_for fields
// are copied into the matching job-failure payload fields, and other
// context is not forwarded.
type CompositeSink struct {
	destinations []Sink
	logger       *slog.Logger

	mu      sync.Mutex
	context map[string]map[string]any
}

// NewCompositeSink constructs a CompositeSink over destinations. logger
// defaults to slog.Default() when nil.
func NewCompositeSink(logger *slog.Logger, destinations ...Sink) *CompositeSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompositeSink{
		destinations: destinations,
		logger:       logger,
		context:      make(map[string]map[string]any),
	}
}

// SetContext stashes fields under name for inclusion in the next
// CaptureException call from this goroutine's perspective. Call sites
// (the worker) always call SetContext immediately before CaptureException
// for the same job, so there is no cross-job leakage in practice; this is
// not safe to call concurrently with CaptureException reporting a
// different job on the same sink without external sequencing.
func (s *CompositeSink) SetContext(name string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context[name] = fields
}

// CaptureException reports err to every destination and to structured
// logging. Destination errors are themselves logged, never propagated:
// an observability sink failing must never affect job processing.
func (s *CompositeSink) CaptureException(ctx context.Context, err error) {
	s.mu.Lock()
	jobFields := s.context["job"]
	s.mu.Unlock()

	payload := JobFailurePayload{
		Error:      err.Error(),
		ErrorClass: obserrors.Classify(err),
		Severity:   SeverityCritical,
		OccurredAt: time.Now(),
	}
	if jobFields != nil {
		if v, ok := jobFields["job_id"].(string); ok {
			payload.JobID = v
		}
		if v, ok := jobFields["job_type"].(string); ok {
			payload.JobType = v
		}
		if v, ok := jobFields["attempts"].(int); ok {
			payload.Attempts = v
		}
		if v, ok := jobFields["payload"].(string); ok {
			payload.Payload = v
		}
		if v, ok := jobFields["scheduled_for"].(time.Time); ok {
			payload.ScheduledFor = v
		}
	}

	s.logger.Error("job failure",
		"job_id", payload.JobID,
		"job_type", payload.JobType,
		"attempts", payload.Attempts,
		"error", payload.Error,
		"error_class", payload.ErrorClass,
	)

	for _, dest := range s.destinations {
		if dest == nil {
			continue
		}
		if sendErr := dest.SendJobFailure(ctx, payload); sendErr != nil {
			s.logger.Error("observability sink delivery failed", "error", sendErr)
		}
	}
}
