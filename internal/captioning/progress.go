package captioning

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/captionforge/internal/store"
	"github.com/kiranshivaraju/captionforge/pkg/models"
)

const (
	EventProgress = "progress"
	EventError    = "error"
)

// JobProgress is one sample of a job's counters.
type JobProgress struct {
	JobID           uuid.UUID  `json:"job_id"`
	Status          string     `json:"status"`
	CompletedFiles  int        `json:"completed_files"`
	TotalFiles      int        `json:"total_files"`
	FailedFiles     int        `json:"failed_files"`
	PercentComplete float64    `json:"percent_complete"`
	CurrentFileID   *uuid.UUID `json:"current_file_id"`
}

// ProgressEvent is either a progress sample or an error. Data is what goes on the wire.
type ProgressEvent struct {
	Event string
	Data  any
}

// JobReader is the part of the store the publisher polls.
type JobReader interface {
	GetJob(ctx context.Context, id uuid.UUID) (*models.CaptionJob, error)
}

// Publisher turns a job's persisted state into a stream of samples.
type Publisher struct {
	jobs     JobReader
	interval time.Duration
}

func NewPublisher(jobs JobReader, interval time.Duration) *Publisher {
	if interval <= 0 {
		interval = time.Second
	}
	return &Publisher{jobs: jobs, interval: interval}
}

// NewProgress samples job.
func NewProgress(job *models.CaptionJob) JobProgress {
	return JobProgress{
		JobID:           job.ID,
		Status:          job.Status,
		CompletedFiles:  job.CompletedFiles,
		TotalFiles:      job.TotalFiles,
		FailedFiles:     job.FailedFiles,
		PercentComplete: job.PercentComplete(),
		CurrentFileID:   job.CurrentFileID,
	}
}

// Watch emits a sample immediately and then every interval until the job is terminal,
// after which one final sample is sent and the channel is closed. The channel is also
// closed when ctx ends. A job that cannot be found yields a single error event.
func (p *Publisher) Watch(ctx context.Context, jobID uuid.UUID) <-chan ProgressEvent {
	out := make(chan ProgressEvent, 1)

	go func() {
		defer close(out)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			job, err := p.jobs.GetJob(ctx, jobID)
			switch {
			case errors.Is(err, store.ErrNotFound):
				send(ctx, out, ProgressEvent{Event: EventError, Data: map[string]string{"error": "Job not found"}})
				return
			case err != nil:
				if ctx.Err() == nil {
					slog.Warn("sampling job progress failed", "job_id", jobID, "error", err)
					send(ctx, out, ProgressEvent{Event: EventError, Data: map[string]string{"error": "Failed to read job"}})
				}
				return
			}

			if !send(ctx, out, ProgressEvent{Event: EventProgress, Data: NewProgress(job)}) {
				return
			}
			if models.IsTerminalStatus(job.Status) {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out
}

func send(ctx context.Context, out chan<- ProgressEvent, ev ProgressEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
