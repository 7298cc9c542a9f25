// Package model defines the core data types shared across the job-table,
// worker, and handler-registry packages.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobType identifies which handler processes a job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobType string

// JobStatus represents the current lifecycle state of a job.
type JobStatus string

const (
	// JobTypeHeartbeat is a diagnostic tick job that logs a correlation id.
	JobTypeHeartbeat JobType = "heartbeat_event"
	// JobTypeWorkSamplingPrompt delivers a work-sampling prompt to a user.
	JobTypeWorkSamplingPrompt JobType = "work_sampling_prompt"
	// JobTypeGenerateSummary produces a day's activity summary via the LLM client.
	JobTypeGenerateSummary JobType = "generate_summary"
	// JobTypeSendMessage delivers an arbitrary message to a user.
	JobTypeSendMessage JobType = "send_message"
	// JobTypeDailySummary is the leader-produced per-user daily trigger.
	JobTypeDailySummary JobType = "daily_summary"

	// JobStatusPending indicates a job is waiting to become due.
	JobStatusPending JobStatus = "pending"
	// JobStatusInProgress indicates a worker currently holds the claim.
	JobStatusInProgress JobStatus = "in_progress"
	// JobStatusCompleted indicates the job's handler returned successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates an attempt failed and a retry row was scheduled.
	JobStatusFailed JobStatus = "failed"
	// JobStatusDeadLetter indicates attempts were exhausted; no retry follows.
	JobStatusDeadLetter JobStatus = "dead_letter"
	// JobStatusCancelled indicates the job was cancelled before it ran.
	JobStatusCancelled JobStatus = "cancelled"
)

// UnmarshalText implements encoding.TextUnmarshaler for JobType to allow env parsing.
func (t *JobType) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jt := JobType(v)
	if jt.Valid() {
		*t = jt
		return nil
	}
	return fmt.Errorf("invalid JobType: %q", v)
}

// ErrNoJobsAvailable is returned when a due-jobs query finds nothing to claim.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Valid reports whether t is one of the known job types.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeHeartbeat, JobTypeWorkSamplingPrompt, JobTypeGenerateSummary, JobTypeSendMessage, JobTypeDailySummary:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the known job statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusInProgress, JobStatusCompleted, JobStatusFailed, JobStatusDeadLetter, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether s is a status from which a job never transitions again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusDeadLetter, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Job is a unit of deferred work, mirroring the ScheduledJob record stored
// in the KV table at PK="job", SK=EncodeSK(ScheduledFor, JobID).
type Job struct {
	JobID         string          `json:"job_id"`
	JobType       JobType         `json:"job_type"`
	Payload       json.RawMessage `json:"payload"`
	ScheduledFor  time.Time       `json:"scheduled_for"`
	Status        JobStatus       `json:"status"`
	LockedBy      string          `json:"locked_by,omitempty"`
	LockExpiresAt *time.Time      `json:"lock_expires_at,omitempty"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"last_error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// Due reports whether the job is due to run at instant now.
func (j Job) Due(now time.Time) bool {
	return !j.ScheduledFor.After(now)
}

// LockExpired reports whether the job's claim, if any, has expired as of now.
func (j Job) LockExpired(now time.Time) bool {
	return j.LockExpiresAt == nil || !j.LockExpiresAt.After(now)
}

// Claimable reports whether a worker may claim this job at instant now:
// it must be pending, and either never locked or its lock has expired.
func (j Job) Claimable(now time.Time) bool {
	return j.Status == JobStatusPending && j.LockExpired(now)
}
