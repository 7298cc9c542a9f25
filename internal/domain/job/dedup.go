package job

import (
	"context"
	"errors"

	"github.com/google/uuid"

	appErrors "github.com/arrowhq/scheduler-core/internal/errors"
	"github.com/arrowhq/scheduler-core/internal/domain/model"
	"github.com/arrowhq/scheduler-core/internal/kv"
)

const pkReservationPrefix = "scheduled-job#"

// ErrDedupIndexRequired indicates a DedupIndex was constructed without a KV store.
var ErrDedupIndexRequired = errors.New("deduplication index requires a non-nil kv store")

// DedupIndex reserves a (logical_id, bucket) slot before a job record is
// inserted, guaranteeing at-most-one live logical occurrence per bucket.
type DedupIndex struct {
	store kv.Store
}

// NewDedupIndex constructs a DedupIndex over store.
func NewDedupIndex(store kv.Store) (*DedupIndex, error) {
	if store == nil {
		return nil, ErrDedupIndexRequired
	}
	return &DedupIndex{store: store}, nil
}

func reservationKey(logicalID, bucket string) kv.Key {
	return kv.Key{PK: pkReservationPrefix + logicalID, SK: bucket}
}

// TryReserve attempts to claim (logicalID, bucket) for the job at
// (jobPK, jobSK). It returns true on success, false if the slot was already
// taken (ConditionFailed). Any other error propagates.
func (d *DedupIndex) TryReserve(ctx context.Context, logicalID, bucket, jobPK, jobSK string) (bool, error) {
	key := reservationKey(logicalID, bucket)
	err := d.store.Put(ctx, key, kv.Item{
		"job_pk": jobPK,
		"job_sk": jobSK,
	}, kv.AttrNotExists("job_pk"))

	if err == nil {
		return true, nil
	}
	if appErrors.IsConditionFailed(err) {
		return false, nil
	}
	return false, err
}

// GetReservation reads the reservation at (logicalID, bucket), if any.
func (d *DedupIndex) GetReservation(ctx context.Context, logicalID, bucket string) (jobPK, jobSK string, ok bool, err error) {
	item, ok, err := d.store.Get(ctx, reservationKey(logicalID, bucket))
	if err != nil || !ok {
		return "", "", ok, err
	}
	jobPK, _ = item["job_pk"].(string)
	jobSK, _ = item["job_sk"].(string)
	return jobPK, jobSK, true, nil
}

// ScheduleIfNeeded composes TryReserve then PutJob: reserve first, then
// insert, so a lost race leaves no orphan job. It returns true if this call
// won the reservation and created the job.
func (d *DedupIndex) ScheduleIfNeeded(ctx context.Context, table *Table, j model.Job, logicalID, bucket string) (bool, error) {
	id, err := uuid.Parse(j.JobID)
	if err != nil {
		return false, appErrors.Wrapf(err, appErrors.ErrCodeInvalidKey, "job id %q is not a valid uuid", j.JobID)
	}
	jobSK := EncodeSK(j.ScheduledFor, id)

	won, err := d.TryReserve(ctx, logicalID, bucket, pkJob, jobSK)
	if err != nil || !won {
		return false, err
	}

	if err := table.PutJob(ctx, j); err != nil {
		return false, err
	}
	return true, nil
}
