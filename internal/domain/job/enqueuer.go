package job

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/arrowhq/scheduler-core/internal/domain/model"
)

// ErrEnqueuerRequiresTable indicates an Enqueuer was constructed without a job table.
var ErrEnqueuerRequiresTable = errors.New("enqueuer requires a non-nil job table")

// ErrEnqueuerRequiresDedup indicates an Enqueuer was constructed without a deduplication index.
var ErrEnqueuerRequiresDedup = errors.New("enqueuer requires a non-nil deduplication index")

// Enqueuer is the core's exposed job-creation surface, composing Table and
// DedupIndex behind the single Enqueue operation collaborators call.
type Enqueuer struct {
	table *Table
	dedup *DedupIndex
}

// NewEnqueuer constructs an Enqueuer over table and dedup.
func NewEnqueuer(table *Table, dedup *DedupIndex) (*Enqueuer, error) {
	if table == nil {
		return nil, ErrEnqueuerRequiresTable
	}
	if dedup == nil {
		return nil, ErrEnqueuerRequiresDedup
	}
	return &Enqueuer{table: table, dedup: dedup}, nil
}

// Enqueue creates a new pending job of jobType, due at scheduledFor. When
// logicalID is empty the job is always created. When logicalID is non-empty
// the job is created at most once per (logicalID, bucket) pair via the
// deduplication index; a repeat call for a pair already reserved is a no-op
// and reports scheduled=false rather than an error. now stamps the job's
// created_at and is supplied by the caller rather than read from the wall
// clock, keeping every core operation driven by an explicit instant.
func (e *Enqueuer) Enqueue(
	ctx context.Context,
	now time.Time,
	jobType model.JobType,
	payload json.RawMessage,
	scheduledFor time.Time,
	logicalID, bucket string,
) (scheduled bool, err error) {
	j := model.Job{
		JobID:        uuid.NewString(),
		JobType:      jobType,
		Payload:      payload,
		ScheduledFor: scheduledFor,
		Status:       model.JobStatusPending,
		CreatedAt:    now,
	}

	if logicalID == "" {
		if err := e.table.PutJob(ctx, j); err != nil {
			return false, err
		}
		return true, nil
	}

	return e.dedup.ScheduleIfNeeded(ctx, e.table, j, logicalID, bucket)
}
