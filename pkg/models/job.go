// Package models contains the persisted row types and enums shared by the
// job store, the worker runtimes, and the HTTP API.
package models

import (
	"fmt"
	"time"
)

// JobState represents the lifecycle state of a queued job.
type JobState string

// Job states.
const (
	JobStatePending    JobState = "pending"
	JobStateProcessing JobState = "processing"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
)

// JobStateValidator validates a job state value.
func JobStateValidator(s JobState) error {
	switch s {
	case JobStatePending, JobStateProcessing, JobStateCompleted, JobStateFailed:
		return nil
	}
	return fmt.Errorf("invalid job state: %q", s)
}

// Job types handled by the worker runtimes.
const (
	JobTypeKBIndex       = "kb_index"
	JobTypeSegmentMake   = "segment_make"
	JobTypeAudioFinalize = "audio_finalize"
)

// Job is a durable unit of background work.
//
// A job is claimable iff state=pending and scheduled_for <= now.
// A job is stale iff state=processing and lease_expires_at < now; the reaper
// returns stale jobs to pending (or dead-letters them on the final attempt).
type Job struct {
	ID             string     `json:"id"`
	Type           string     `json:"type"`
	Payload        []byte     `json:"payload"`
	Priority       int        `json:"priority"` // 0..10, higher first
	State          JobState   `json:"state"`
	ScheduledFor   time.Time  `json:"scheduled_for"`
	Attempts       int        `json:"attempts"`
	MaxAttempts    int        `json:"max_attempts"`
	LeaseOwner     *string    `json:"lease_owner,omitempty"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`
	LastError      *string    `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// DeadLetter is the terminal quarantine row for a job that exhausted its
// retries (or hit an integrity failure). Requeue is manual only.
type DeadLetter struct {
	ID            string     `json:"id"`
	JobType       string     `json:"job_type"`
	Payload       []byte     `json:"payload"`
	FailureReason string     `json:"failure_reason"`
	AttemptsMade  int        `json:"attempts_made"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// SegmentMakePayload is the payload of a segment_make job.
type SegmentMakePayload struct {
	SegmentID string `json:"segment_id"`
}

// AudioFinalizePayload is the payload of an audio_finalize job.
type AudioFinalizePayload struct {
	SegmentID   string `json:"segment_id"`
	AssetID     string `json:"asset_id"`
	ContentType string `json:"content_type"` // "speech" or "music"
}

// KBIndexPayload is the payload of a kb_index job.
type KBIndexPayload struct {
	SourceID   string `json:"source_id"`
	SourceType string `json:"source_type"` // universe_doc or event
}
