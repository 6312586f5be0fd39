package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusPaused    = "paused"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// jobTransitions lists the allowed target states for each source state.
// completed, failed and cancelled are terminal and have no entry.
var jobTransitions = map[string][]string{
	JobStatusPending: {JobStatusRunning, JobStatusCancelled},
	JobStatusRunning: {JobStatusPaused, JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
	JobStatusPaused:  {JobStatusRunning, JobStatusCancelled, JobStatusFailed},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range jobTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionSources returns every status from which a job may move to the given status.
func TransitionSources(to string) []string {
	var sources []string
	for _, from := range []string{JobStatusPending, JobStatusRunning, JobStatusPaused} {
		if CanTransition(from, to) {
			sources = append(sources, from)
		}
	}
	return sources
}

// IsTerminalStatus reports whether no further transitions are possible from status.
func IsTerminalStatus(status string) bool {
	switch status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// CaptionJob tracks one caption-generation run over a caption set. The API returns the
// job on POST /api/v1/jobs; clients poll GET /api/v1/jobs/{id} or subscribe to its stream.
type CaptionJob struct {
	ID                uuid.UUID  `db:"id"                 json:"id"`
	CaptionSetID      *uuid.UUID `db:"caption_set_id"     json:"caption_set_id"`
	VisionModel       string     `db:"vision_model"       json:"vision_model"`
	VisionBackend     string     `db:"vision_backend"     json:"vision_backend"`
	OverwriteExisting bool       `db:"overwrite_existing" json:"overwrite_existing"`
	Status            string     `db:"status"             json:"status"`
	TotalFiles        int        `db:"total_files"        json:"total_files"`
	CompletedFiles    int        `db:"completed_files"    json:"completed_files"`
	FailedFiles       int        `db:"failed_files"       json:"failed_files"`
	CurrentFileID     *uuid.UUID `db:"current_file_id"    json:"current_file_id"`
	LastError         *string    `db:"last_error"         json:"last_error"`
	CreatedAt         time.Time  `db:"created_at"         json:"created_at"`
	StartedAt         *time.Time `db:"started_at"         json:"started_at"`
	CompletedAt       *time.Time `db:"completed_at"       json:"completed_at"`
	UpdatedAt         time.Time  `db:"updated_at"         json:"updated_at"`
}

// Remaining is the number of files the job may still process.
func (j *CaptionJob) Remaining() int {
	n := j.TotalFiles - j.CompletedFiles - j.FailedFiles
	if n < 0 {
		return 0
	}
	return n
}

// PercentComplete is completed/total as a percentage rounded to one decimal.
func (j *CaptionJob) PercentComplete() float64 {
	if j.TotalFiles <= 0 {
		return 0
	}
	pct := float64(j.CompletedFiles) / float64(j.TotalFiles) * 100
	return float64(int64(pct*10+0.5)) / 10
}

const (
	ItemOutcomeCompleted = "completed"
	ItemOutcomeFailed    = "failed"
)

// CaptionJobItem records that a job has processed a file. There is at most one row per
// (job, file), which is what keeps counters exact across pause and resume.
type CaptionJobItem struct {
	JobID       uuid.UUID `db:"job_id"       json:"job_id"`
	FileID      uuid.UUID `db:"file_id"      json:"file_id"`
	Outcome     string    `db:"outcome"      json:"outcome"`
	Error       *string   `db:"error"        json:"error,omitempty"`
	ProcessedAt time.Time `db:"processed_at" json:"processed_at"`
}
