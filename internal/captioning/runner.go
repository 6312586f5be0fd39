package captioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/captionforge/internal/preprocess"
	"github.com/kiranshivaraju/captionforge/internal/store"
	"github.com/kiranshivaraju/captionforge/internal/vision"
	"github.com/kiranshivaraju/captionforge/pkg/models"
)

// errStopped means the loop must exit without touching the job any further.
var errStopped = errors.New("job stopped")

// jobFailure is an error that ends the whole job rather than one file.
type jobFailure struct {
	msg string
}

func (e *jobFailure) Error() string { return e.msg }

func failJob(format string, args ...any) error {
	return &jobFailure{msg: fmt.Sprintf(format, args...)}
}

// runJob owns a job's per-file loop until the job is terminal, the service shuts down
// or a job-level failure occurs.
func (s *Service) runJob(ctx context.Context, jobID uuid.UUID, wake <-chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in caption job", "job_id", jobID, "panic", r)
			s.markFailed(jobID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	cache := preprocess.NewCache(s.encoder)
	defer func() {
		n := cache.Len()
		cache.Clear()
		slog.Debug("caption job released preprocessed images", "job_id", jobID, "cached", n)
	}()

	var captionSetID *uuid.UUID
	defer func() {
		if captionSetID != nil {
			s.refreshCaptionCount(jobID, *captionSetID)
		}
	}()

	err := s.processJob(ctx, jobID, wake, cache, &captionSetID)

	var failure *jobFailure
	switch {
	case err == nil, errors.Is(err, errStopped):
	case errors.As(err, &failure):
		slog.Error("caption job failed", "job_id", jobID, "error", failure.msg)
		s.markFailed(jobID, failure.msg)
	case ctx.Err() != nil:
		slog.Info("caption job interrupted by shutdown", "job_id", jobID)
	default:
		slog.Error("caption job aborted", "job_id", jobID, "error", err)
		s.markFailed(jobID, err.Error())
	}
}

func (s *Service) processJob(ctx context.Context, jobID uuid.UUID, wake <-chan struct{}, cache *preprocess.Cache, captionSetID **uuid.UUID) error {
	job, err := s.start(ctx, jobID)
	if err != nil {
		return err
	}
	*captionSetID = job.CaptionSetID

	if job.CaptionSetID == nil {
		return failJob("caption set not found")
	}
	cs, err := s.store.GetCaptionSet(ctx, *job.CaptionSetID)
	if errors.Is(err, store.ErrNotFound) {
		return failJob("caption set not found")
	}
	if err != nil {
		return fmt.Errorf("loading caption set: %w", err)
	}

	backend, err := s.backends.Resolve(job.VisionBackend)
	if err != nil {
		return failJob("%v", err)
	}

	prompt, anomaly := vision.BuildPrompt(vision.PromptOptions{
		Style:         cs.Style,
		MaxLength:     cs.MaxLength,
		CustomPrompt:  cs.CustomPrompt,
		TriggerPhrase: cs.TriggerPhrase,
	})
	if anomaly != nil {
		slog.Warn("prompt configuration anomaly", "job_id", jobID, "caption_set_id", cs.ID, "error", anomaly)
	}

	queue, err := s.remainingQueue(ctx, job, cs)
	if err != nil {
		return err
	}
	slog.Info("caption job running", "job_id", jobID, "remaining", len(queue),
		"style", cs.Style, "backend", backend.Name(), "model", job.VisionModel)

	for _, fileID := range queue {
		job, err = s.checkpoint(ctx, jobID, wake)
		if err != nil {
			return err
		}

		if err := s.store.SetCurrentFile(ctx, jobID, fileID); err != nil {
			return fmt.Errorf("recording current file: %w", err)
		}

		if err := s.processFile(ctx, job, cs, backend, prompt, fileID, cache); err != nil {
			return err
		}
	}

	return s.finish(ctx, jobID, wake)
}

// start moves a pending job to running. A job already running (recovered, or resumed
// before this runner started) is taken over as is; a paused job is waited on.
func (s *Service) start(ctx context.Context, jobID uuid.UUID) (*models.CaptionJob, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errStopped
	}
	if err != nil {
		return nil, fmt.Errorf("loading job: %w", err)
	}

	switch job.Status {
	case models.JobStatusPending:
		started, err := s.store.TransitionJob(ctx, jobID, models.JobStatusRunning)
		if errors.Is(err, store.ErrInvalidTransition) {
			// Cancelled before the runner got to it.
			return nil, errStopped
		}
		if err != nil {
			return nil, fmt.Errorf("starting job: %w", err)
		}
		s.mirrorStatus(ctx, jobID, started.Status)
		return started, nil
	case models.JobStatusRunning, models.JobStatusPaused:
		return job, nil
	default:
		return nil, errStopped
	}
}

// remainingQueue is the job's work queue minus the files it has already processed,
// capped at what its counters still allow.
func (s *Service) remainingQueue(ctx context.Context, job *models.CaptionJob, cs *models.CaptionSet) ([]uuid.UUID, error) {
	queue, err := BuildQueue(ctx, s.store, cs, job.OverwriteExisting)
	if errors.Is(err, ErrNothingToCaption) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	processed, err := s.store.ListProcessedFileIDs(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("listing processed files: %w", err)
	}
	done := make(map[uuid.UUID]struct{}, len(processed))
	for _, id := range processed {
		done[id] = struct{}{}
	}

	remaining := make([]uuid.UUID, 0, len(queue))
	for _, id := range queue {
		if _, ok := done[id]; !ok {
			remaining = append(remaining, id)
		}
	}
	if limit := job.Remaining(); len(remaining) > limit {
		remaining = remaining[:limit]
	}
	return remaining, nil
}

// checkpoint reloads the job between files. It returns errStopped when the job is gone
// or terminal and blocks while the job is paused.
func (s *Service) checkpoint(ctx context.Context, jobID uuid.UUID, wake <-chan struct{}) (*models.CaptionJob, error) {
	var ticker *time.Ticker
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		job, err := s.store.GetJob(ctx, jobID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, errStopped
		}
		if err != nil {
			return nil, fmt.Errorf("reloading job: %w", err)
		}
		if job.CaptionSetID == nil && !models.IsTerminalStatus(job.Status) {
			return nil, failJob("caption set not found")
		}

		switch job.Status {
		case models.JobStatusRunning, models.JobStatusPending:
			return job, nil
		case models.JobStatusPaused:
		default:
			slog.Info("caption job stopped", "job_id", jobID, "status", job.Status)
			return nil, errStopped
		}

		if ticker == nil {
			slog.Info("caption job paused", "job_id", jobID)
			ticker = time.NewTicker(s.opts.PollInterval)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		case <-ticker.C:
		}
	}
}

// finish marks the job completed once the queue is exhausted. If a pause lands first
// the runner keeps waiting, so a paused job never completes on its own.
func (s *Service) finish(ctx context.Context, jobID uuid.UUID, wake <-chan struct{}) error {
	for {
		if _, err := s.checkpoint(ctx, jobID, wake); err != nil {
			return err
		}
		job, err := s.store.TransitionJob(ctx, jobID, models.JobStatusCompleted)
		if errors.Is(err, store.ErrInvalidTransition) {
			continue
		}
		if err != nil {
			return fmt.Errorf("completing job: %w", err)
		}
		s.mirrorStatus(ctx, jobID, job.Status)
		slog.Info("caption job completed", "job_id", jobID,
			"completed_files", job.CompletedFiles, "failed_files", job.FailedFiles, "total_files", job.TotalFiles)
		return nil
	}
}

// processFile runs one file through the pipeline and records the outcome. Only
// job-level problems are returned; a file's own failure is counted and swallowed.
func (s *Service) processFile(ctx context.Context, job *models.CaptionJob, cs *models.CaptionSet,
	backend models.VisionBackend, prompt string, fileID uuid.UUID, cache *preprocess.Cache) error {

	caption, err := s.captionFile(ctx, job, cs, backend, prompt, fileID, cache)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("caption failed for file", "job_id", job.ID, "file_id", fileID, "error", err)
		if _, recErr := s.store.RecordFailure(ctx, job.ID, fileID, err.Error()); recErr != nil {
			return fmt.Errorf("recording file failure: %w", recErr)
		}
		return nil
	}

	recorded, err := s.store.RecordCaption(ctx, job.ID, caption)
	if errors.Is(err, store.ErrNotFound) {
		return failJob("caption set not found")
	}
	if err != nil {
		return fmt.Errorf("saving caption: %w", err)
	}
	if !recorded {
		slog.Debug("file already processed by job", "job_id", job.ID, "file_id", fileID)
	}
	return nil
}

func (s *Service) captionFile(ctx context.Context, job *models.CaptionJob, cs *models.CaptionSet,
	backend models.VisionBackend, prompt string, fileID uuid.UUID, cache *preprocess.Cache) (*models.Caption, error) {

	file, err := s.store.GetTrackedFile(ctx, fileID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading file: %w", err)
	}

	data, err := cache.Get(ctx, fileID, file.AbsolutePath)
	if err != nil {
		return nil, err
	}

	result, err := s.callBackend(ctx, backend, job.VisionModel, prompt, data)
	if err != nil {
		return nil, err
	}

	text := vision.EnforceTriggerPhrase(result.Caption, cs.TriggerPhrase)
	if text == "" {
		return nil, vision.ErrEmptyCaption
	}

	model := job.VisionModel
	return &models.Caption{
		ID:           uuid.New(),
		CaptionSetID: cs.ID,
		FileID:       fileID,
		Text:         text,
		Source:       models.CaptionSourceGenerated,
		VisionModel:  &model,
		QualityScore: result.QualityScore,
		QualityFlags: result.QualityFlags,
	}, nil
}

// markFailed records a job-level failure. It uses a fresh context so it still lands when
// the runner's own context is the thing that failed.
func (s *Service) markFailed(jobID uuid.UUID, msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	job, err := s.store.TransitionJob(ctx, jobID, models.JobStatusFailed, store.WithErrorMessage(msg))
	if err != nil {
		slog.Error("marking caption job failed", "job_id", jobID, "error", err)
		return
	}
	s.mirrorStatus(ctx, jobID, job.Status)
}

func (s *Service) refreshCaptionCount(jobID, captionSetID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := s.store.RefreshCaptionCount(ctx, captionSetID)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		slog.Warn("refreshing caption count failed", "job_id", jobID, "caption_set_id", captionSetID, "error", err)
		return
	}
	slog.Debug("caption count refreshed", "job_id", jobID, "caption_set_id", captionSetID, "caption_count", count)
}
