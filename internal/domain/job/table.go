package job

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/arrowhq/scheduler-core/internal/errors"
	"github.com/arrowhq/scheduler-core/internal/domain/model"
	"github.com/arrowhq/scheduler-core/internal/kv"
)

// pkJob is the fixed partition key every scheduled job lives under.
const pkJob = "job"

// ErrTableNameRequired indicates a Table was constructed without a KV store.
var ErrTableNameRequired = errors.New("job table requires a non-nil kv store")

// Table is CRUD over ScheduledJob records plus the due-jobs range query,
// backed by a kv.Store.
type Table struct {
	store kv.Store
}

// NewTable constructs a Table over store.
func NewTable(store kv.Store) (*Table, error) {
	if store == nil {
		return nil, ErrTableNameRequired
	}
	return &Table{store: store}, nil
}

func toItem(j model.Job) kv.Item {
	item := kv.Item{
		"job_id":        j.JobID,
		"job_type":      string(j.JobType),
		"payload":       json.RawMessage(append([]byte(nil), j.Payload...)),
		"scheduled_for": j.ScheduledFor.UTC(),
		"status":        string(j.Status),
		"attempts":      j.Attempts,
		"created_at":    j.CreatedAt.UTC(),
	}
	if j.LockedBy != "" {
		item["locked_by"] = j.LockedBy
	}
	if j.LockExpiresAt != nil {
		item["lock_expires_at"] = j.LockExpiresAt.UTC()
	}
	if j.LastError != "" {
		item["last_error"] = j.LastError
	}
	if j.CompletedAt != nil {
		item["completed_at"] = j.CompletedAt.UTC()
	}
	return item
}

func fromItem(item kv.Item) (model.Job, error) {
	j := model.Job{}

	jobID, _ := item["job_id"].(string)
	j.JobID = jobID

	jobType, _ := item["job_type"].(string)
	j.JobType = model.JobType(jobType)

	if raw, ok := item["payload"]; ok {
		switch v := raw.(type) {
		case json.RawMessage:
			j.Payload = v
		case []byte:
			j.Payload = v
		case string:
			j.Payload = json.RawMessage(v)
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return model.Job{}, appErrors.Wrap(err, appErrors.ErrCodeInvalidKey, "decode payload")
			}
			j.Payload = encoded
		}
	}

	if t, ok := item["scheduled_for"].(time.Time); ok {
		j.ScheduledFor = t
	} else if s, ok := item["scheduled_for"].(string); ok {
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return model.Job{}, appErrors.Wrap(err, appErrors.ErrCodeInvalidKey, "decode scheduled_for")
		}
		j.ScheduledFor = parsed
	}

	status, _ := item["status"].(string)
	j.Status = model.JobStatus(status)

	j.LockedBy, _ = item["locked_by"].(string)

	if t, ok := item["lock_expires_at"].(time.Time); ok {
		j.LockExpiresAt = &t
	}

	switch v := item["attempts"].(type) {
	case int:
		j.Attempts = v
	case int64:
		j.Attempts = int(v)
	case float64:
		j.Attempts = int(v)
	}

	j.LastError, _ = item["last_error"].(string)

	if t, ok := item["created_at"].(time.Time); ok {
		j.CreatedAt = t
	}

	if t, ok := item["completed_at"].(time.Time); ok {
		j.CompletedAt = &t
	}

	return j, nil
}

func jobKey(jobID uuid.UUID, scheduledFor time.Time) (kv.Key, error) {
	return kv.Key{PK: pkJob, SK: EncodeSK(scheduledFor, jobID)}, nil
}

// PutJob unconditionally writes all persisted fields of job.
func (t *Table) PutJob(ctx context.Context, j model.Job) error {
	id, err := uuid.Parse(j.JobID)
	if err != nil {
		return appErrors.Wrapf(err, appErrors.ErrCodeInvalidKey, "job id %q is not a valid uuid", j.JobID)
	}
	key, err := jobKey(id, j.ScheduledFor)
	if err != nil {
		return err
	}
	return t.store.Put(ctx, key, toItem(j), kv.NoCondition())
}

// GetJob reads a job by its exact key.
func (t *Table) GetJob(ctx context.Context, jobID uuid.UUID, scheduledFor time.Time) (model.Job, bool, error) {
	key, err := jobKey(jobID, scheduledFor)
	if err != nil {
		return model.Job{}, false, err
	}
	item, ok, err := t.store.Get(ctx, key)
	if err != nil || !ok {
		return model.Job{}, ok, err
	}
	j, err := fromItem(item)
	return j, true, err
}

// GetDueJobs returns up to limit pending jobs with scheduled_for <= now,
// ordered ascending by scheduled_for then job id.
func (t *Table) GetDueJobs(ctx context.Context, now time.Time, limit int) ([]model.Job, error) {
	items, err := t.store.Query(ctx, kv.QueryInput{
		PK:     pkJob,
		SK:     kv.Range{To: EncodeSKUpperBound(now)},
		Filter: kv.Equals("status", string(model.JobStatusPending)),
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}

	jobs := make([]model.Job, 0, len(items))
	for _, item := range items {
		j, err := fromItem(item)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// ClaimUpdate is the set of attributes written when a worker successfully
// claims a job, conditioned on the job still being claimable.
type ClaimUpdate struct {
	LockedBy      string
	LockExpiresAt time.Time
}

// Claim attempts to transition job (identified by its current key) from
// pending to in_progress, conditioned on it still being claimable: status
// is pending AND (no prior lock or the prior lock has expired). A failed
// condition means another worker won the race; it is reported as
// ConditionFailed, not a fault.
func (t *Table) Claim(ctx context.Context, jobID uuid.UUID, scheduledFor time.Time, now time.Time, update ClaimUpdate) error {
	key, err := jobKey(jobID, scheduledFor)
	if err != nil {
		return err
	}

	cond := kv.And(
		kv.Equals("status", string(model.JobStatusPending)),
		kv.Or(
			kv.AttrNotExists("lock_expires_at"),
			kv.LessOrEqual("lock_expires_at", now.UTC()),
		),
	)

	return t.store.Update(ctx, key, kv.Item{
		"status":          string(model.JobStatusInProgress),
		"locked_by":       update.LockedBy,
		"lock_expires_at": update.LockExpiresAt.UTC(),
	}, cond)
}

// CompleteUpdate carries the attributes written on successful completion.
type CompleteUpdate struct {
	CompletedAt time.Time
}

// Complete transitions a claimed job to completed, conditioned on it still
// being held by workerID (a stale claimant's completion write is discarded
// by this condition, which is how lock reclamation tolerates crashes).
func (t *Table) Complete(ctx context.Context, jobID uuid.UUID, scheduledFor time.Time, workerID string, update CompleteUpdate) error {
	key, err := jobKey(jobID, scheduledFor)
	if err != nil {
		return err
	}

	cond := kv.And(
		kv.Equals("status", string(model.JobStatusInProgress)),
		kv.Equals("locked_by", workerID),
	)

	return t.store.Update(ctx, key, kv.Item{
		"status":          string(model.JobStatusCompleted),
		"completed_at":    update.CompletedAt.UTC(),
		"locked_by":       nil,
		"lock_expires_at": nil,
	}, cond)
}

// FailUpdate carries the attributes written when an attempt fails.
type FailUpdate struct {
	Attempts  int
	LastError string
}

// Fail transitions a claimed job to failed (a retry row is expected to be
// inserted separately by the caller via PutJob), conditioned on still being
// held by workerID.
func (t *Table) Fail(ctx context.Context, jobID uuid.UUID, scheduledFor time.Time, workerID string, update FailUpdate) error {
	key, err := jobKey(jobID, scheduledFor)
	if err != nil {
		return err
	}

	cond := kv.And(
		kv.Equals("status", string(model.JobStatusInProgress)),
		kv.Equals("locked_by", workerID),
	)

	return t.store.Update(ctx, key, kv.Item{
		"status":          string(model.JobStatusFailed),
		"attempts":        update.Attempts,
		"last_error":      update.LastError,
		"locked_by":       nil,
		"lock_expires_at": nil,
	}, cond)
}

// DeadLetter transitions a claimed job to dead_letter, conditioned on still
// being held by workerID.
func (t *Table) DeadLetter(ctx context.Context, jobID uuid.UUID, scheduledFor time.Time, workerID string, update FailUpdate) error {
	key, err := jobKey(jobID, scheduledFor)
	if err != nil {
		return err
	}

	cond := kv.And(
		kv.Equals("status", string(model.JobStatusInProgress)),
		kv.Equals("locked_by", workerID),
	)

	return t.store.Update(ctx, key, kv.Item{
		"status":          string(model.JobStatusDeadLetter),
		"attempts":        update.Attempts,
		"last_error":      update.LastError,
		"locked_by":       nil,
		"lock_expires_at": nil,
	}, cond)
}

// terminalStatuses are eligible for retention cleanup.
var terminalStatuses = map[model.JobStatus]struct{}{
	model.JobStatusCompleted:  {},
	model.JobStatusFailed:     {},
	model.JobStatusDeadLetter: {},
	model.JobStatusCancelled:  {},
}

// CleanupOldJobs deletes terminal jobs older than retention, counted from
// now. pending and in_progress jobs are never deleted regardless of age.
// Deletion errors are logged per-item by the caller; this method keeps
// sweeping and returns the count of jobs it successfully deleted.
func (t *Table) CleanupOldJobs(ctx context.Context, now time.Time, retention time.Duration, onItemError func(model.Job, error)) (int, error) {
	cutoff := now.Add(-retention)

	items, err := t.store.Query(ctx, kv.QueryInput{
		PK:    pkJob,
		SK:    kv.Range{To: skPrefix + cutoff.UTC().Format(iso8601UTC) + skSep},
		Filter: kv.Or(
			kv.Equals("status", string(model.JobStatusCompleted)),
			kv.Equals("status", string(model.JobStatusFailed)),
			kv.Equals("status", string(model.JobStatusDeadLetter)),
			kv.Equals("status", string(model.JobStatusCancelled)),
		),
		Limit: 0,
	})
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, item := range items {
		j, decodeErr := fromItem(item)
		if decodeErr != nil {
			if onItemError != nil {
				onItemError(j, decodeErr)
			}
			continue
		}
		if _, terminal := terminalStatuses[j.Status]; !terminal {
			continue
		}

		id, parseErr := uuid.Parse(j.JobID)
		if parseErr != nil {
			if onItemError != nil {
				onItemError(j, parseErr)
			}
			continue
		}
		key, keyErr := jobKey(id, j.ScheduledFor)
		if keyErr != nil {
			if onItemError != nil {
				onItemError(j, keyErr)
			}
			continue
		}

		if delErr := t.store.Delete(ctx, key, kv.NoCondition()); delErr != nil {
			if onItemError != nil {
				onItemError(j, delErr)
			}
			continue
		}
		deleted++
	}

	return deleted, nil
}
