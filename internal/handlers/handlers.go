// Package handlers implements the job type handlers registered with the
// worker's handler registry: heartbeat_event, work_sampling_prompt,
// generate_summary, send_message, and daily_summary. Registration happens
// explicitly at startup (see RegisterAll), never via import-time side
// effects, matching the registry's documented contract.
//
// Business logic inside each handler is intentionally thin: the data these
// handlers summarize or log (a user's activity history) is owned by a
// separate system this core does not model. What is implemented and tested
// here is the wiring each handler performs against the core's own ports and
// domain types: payload decoding, chat delivery, completion requests, and
// follow-up enqueues.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/arrowhq/scheduler-core/internal/domain/job"
	"github.com/arrowhq/scheduler-core/internal/domain/model"
	"github.com/arrowhq/scheduler-core/internal/domain/worker"
	"github.com/arrowhq/scheduler-core/internal/ports"
)

// promptVariations mirrors the original work-sampling prompt set: a short,
// varied nudge rather than the same line every time.
var promptVariations = []string{
	"What are you working on right now?",
	"Got a minute? Log what you're doing.",
	"Quick check-in: what's your focus at the moment?",
	"Still on track? Drop a note on what you're doing.",
	"Pause and reflect: what are you doing right now?",
}

// Deps bundles the ports and domain components the handlers dispatch
// through.
type Deps struct {
	Chat     ports.ChatClient
	LLM      ports.LLMClient
	Enqueuer *job.Enqueuer
	Logger   *slog.Logger
	Clock    func() time.Time

	// HeartbeatInterval is the gap between a processed heartbeat_event job
	// and the follow-up heartbeat_event job it schedules. Default 60s.
	HeartbeatInterval time.Duration
}

func (d Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}

func (d Deps) heartbeatInterval() time.Duration {
	if d.HeartbeatInterval > 0 {
		return d.HeartbeatInterval
	}
	return 60 * time.Second
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// RegisterAll registers every handler this package implements on reg. Call
// this once at process startup.
func RegisterAll(reg *worker.Registry, deps Deps) error {
	registrations := []struct {
		jobType model.JobType
		schema  []string
		fn      worker.HandlerFunc
	}{
		{model.JobTypeHeartbeat, nil, deps.handleHeartbeat},
		{model.JobTypeWorkSamplingPrompt, []string{"user"}, deps.handleWorkSamplingPrompt},
		{model.JobTypeGenerateSummary, []string{"user", "range"}, deps.handleGenerateSummary},
		{model.JobTypeSendMessage, []string{"user", "message"}, deps.handleSendMessage},
		{model.JobTypeDailySummary, []string{"user"}, deps.handleDailySummary},
	}

	for _, r := range registrations {
		if err := reg.RegisterHandler(r.jobType, r.schema, r.fn); err != nil {
			return fmt.Errorf("register handler %q: %w", r.jobType, err)
		}
	}
	return nil
}

type userPayload struct {
	User string `json:"user"`
}

// handleHeartbeat logs a correlation id and perpetuates the heartbeat by
// scheduling its own successor. The correlation id is derived from the
// triggering job's own id (falling back to a fresh uuid only when that id
// is empty, as in a directly-invoked test), so a retried invocation of the
// same job reserves the same dedup slot instead of scheduling a second,
// faster-ticking chain.
func (d Deps) handleHeartbeat(ctx context.Context, j model.Job) error {
	correlationID := j.JobID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	d.logger().Info("heartbeat", "job_id", j.JobID, "correlation_id", correlationID)

	now := d.now()
	scheduledFor := now.Add(d.heartbeatInterval())
	date := scheduledFor.UTC().Format("2006-01-02")
	logicalID := fmt.Sprintf("heartbeat#%s_%s", correlationID, date)

	_, err := d.Enqueuer.Enqueue(ctx, now, model.JobTypeHeartbeat, nil, scheduledFor, logicalID, date)
	return err
}

func (d Deps) handleWorkSamplingPrompt(ctx context.Context, j model.Job) error {
	var p userPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return fmt.Errorf("decode work sampling payload: %w", err)
	}

	prompt := promptVariations[rand.IntN(len(promptVariations))]
	return d.Chat.PostDirectMessage(ctx, p.User, prompt)
}

type summaryPayload struct {
	User  string `json:"user"`
	Range string `json:"range"`
}

func (d Deps) handleGenerateSummary(ctx context.Context, j model.Job) error {
	var p summaryPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return fmt.Errorf("decode summary payload: %w", err)
	}
	if p.Range == "" {
		p.Range = "today"
	}

	prompt := fmt.Sprintf("Summarize %s's logged activity for %s in a few friendly sentences.", p.User, p.Range)
	summary, err := d.LLM.Complete(ctx, prompt)
	if err != nil {
		return fmt.Errorf("generate summary: %w", err)
	}

	payload, err := json.Marshal(map[string]string{"user": p.User, "message": summary})
	if err != nil {
		return fmt.Errorf("encode send message payload: %w", err)
	}

	now := d.now()
	_, err = d.Enqueuer.Enqueue(ctx, now, model.JobTypeSendMessage, payload, now, "", "")
	return err
}

type sendMessagePayload struct {
	User    string `json:"user"`
	Message string `json:"message"`
}

func (d Deps) handleSendMessage(ctx context.Context, j model.Job) error {
	var p sendMessagePayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return fmt.Errorf("decode send message payload: %w", err)
	}
	return d.Chat.PostDirectMessage(ctx, p.User, p.Message)
}

func (d Deps) handleDailySummary(ctx context.Context, j model.Job) error {
	var p userPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return fmt.Errorf("decode daily summary payload: %w", err)
	}

	payload, err := json.Marshal(map[string]string{"user": p.User, "range": "yesterday"})
	if err != nil {
		return fmt.Errorf("encode generate summary payload: %w", err)
	}

	now := d.now()
	_, err = d.Enqueuer.Enqueue(ctx, now, model.JobTypeGenerateSummary, payload, now, "", "")
	return err
}
