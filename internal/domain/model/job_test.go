package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobType_Valid(t *testing.T) {
	assert.True(t, JobTypeHeartbeat.Valid())
	assert.True(t, JobTypeWorkSamplingPrompt.Valid())
	assert.True(t, JobTypeGenerateSummary.Valid())
	assert.True(t, JobTypeSendMessage.Valid())
	assert.True(t, JobTypeDailySummary.Valid())
	assert.False(t, JobType("unknown").Valid())
}

func TestJobType_UnmarshalText(t *testing.T) {
	var jt JobType
	err := jt.UnmarshalText([]byte("DAILY_SUMMARY"))
	require.NoError(t, err)
	assert.Equal(t, JobTypeDailySummary, jt)

	err = jt.UnmarshalText([]byte("not_a_type"))
	require.Error(t, err)
}

func TestJobStatus_Valid(t *testing.T) {
	assert.True(t, JobStatusPending.Valid())
	assert.True(t, JobStatusInProgress.Valid())
	assert.True(t, JobStatusCompleted.Valid())
	assert.True(t, JobStatusFailed.Valid())
	assert.True(t, JobStatusDeadLetter.Valid())
	assert.True(t, JobStatusCancelled.Valid())
	assert.False(t, JobStatus("bogus").Valid())
}

func TestJobStatus_Terminal(t *testing.T) {
	assert.False(t, JobStatusPending.Terminal())
	assert.False(t, JobStatusInProgress.Terminal())
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
	assert.True(t, JobStatusDeadLetter.Terminal())
	assert.True(t, JobStatusCancelled.Terminal())
}

func TestJob_Due(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	due := Job{ScheduledFor: now}
	assert.True(t, due.Due(now), "scheduled_for == now is due")

	notYetDue := Job{ScheduledFor: now.Add(time.Second)}
	assert.False(t, notYetDue.Due(now))

	pastDue := Job{ScheduledFor: now.Add(-time.Minute)}
	assert.True(t, pastDue.Due(now))
}

func TestJob_Claimable(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Second)
	future := now.Add(time.Minute)

	tests := []struct {
		name string
		job  Job
		want bool
	}{
		{"pending, never locked", Job{Status: JobStatusPending}, true},
		{"pending, lock expired at boundary", Job{Status: JobStatusPending, LockExpiresAt: &now}, true},
		{"pending, lock expired in past", Job{Status: JobStatusPending, LockExpiresAt: &expired}, true},
		{"pending, lock held", Job{Status: JobStatusPending, LockExpiresAt: &future}, false},
		{"in progress, lock held", Job{Status: JobStatusInProgress, LockExpiresAt: &future}, false},
		{"completed", Job{Status: JobStatusCompleted}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.job.Claimable(now))
		})
	}
}
