// Package captioning runs caption-generation jobs: it builds a job's work queue, drives
// the per-file loop through the vision pipeline and exposes pause, resume and cancel.
package captioning

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/captionforge/internal/preprocess"
	"github.com/kiranshivaraju/captionforge/internal/store"
	"github.com/kiranshivaraju/captionforge/internal/vision"
	"github.com/kiranshivaraju/captionforge/pkg/models"
)

// statusTTL bounds how long a mirrored job status outlives its last update.
const statusTTL = 30 * time.Minute

// StatusMirror receives a copy of every job status change.
type StatusMirror interface {
	SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error
}

// Options configures a Service.
type Options struct {
	DefaultModel string
	Timeout      time.Duration
	PollInterval time.Duration
}

// Service owns every caption job running in this process.
type Service struct {
	store    store.Store
	backends *vision.Registry
	encoder  preprocess.Encoder
	mirror   StatusMirror
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	runners map[uuid.UUID]*runHandle
}

// runHandle is the in-process owner of one job's loop.
type runHandle struct {
	wake chan struct{}
}

// NewService creates a Service. mirror may be nil.
func NewService(st store.Store, backends *vision.Registry, encoder preprocess.Encoder, mirror StatusMirror, opts Options) *Service {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:    st,
		backends: backends,
		encoder:  encoder,
		mirror:   mirror,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		runners:  make(map[uuid.UUID]*runHandle),
	}
}

// CreateJobParams holds validated parameters for a new caption job.
type CreateJobParams struct {
	CaptionSetID      uuid.UUID
	VisionModel       string
	VisionBackend     string
	OverwriteExisting bool
}

// CreateJob computes the work queue, persists a pending job sized to it and launches
// its runner. No job is created when the caption set is missing or the queue is empty.
func (s *Service) CreateJob(ctx context.Context, params CreateJobParams) (*models.CaptionJob, error) {
	cs, err := s.store.GetCaptionSet(ctx, params.CaptionSetID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCaptionSetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading caption set: %w", err)
	}

	backend, err := s.backends.Resolve(params.VisionBackend)
	if err != nil {
		return nil, err
	}
	model := params.VisionModel
	if model == "" {
		model = s.opts.DefaultModel
	}

	queue, err := BuildQueue(ctx, s.store, cs, params.OverwriteExisting)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &models.CaptionJob{
		ID:                uuid.New(),
		CaptionSetID:      &cs.ID,
		VisionModel:       model,
		VisionBackend:     backend.Name(),
		OverwriteExisting: params.OverwriteExisting,
		Status:            models.JobStatusPending,
		TotalFiles:        len(queue),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCaptionSetNotFound
		}
		return nil, fmt.Errorf("creating job: %w", err)
	}
	s.mirrorStatus(ctx, job.ID, job.Status)

	slog.Info("caption job created",
		"job_id", job.ID, "caption_set_id", cs.ID, "total_files", job.TotalFiles,
		"backend", job.VisionBackend, "model", job.VisionModel, "overwrite", job.OverwriteExisting)

	s.launch(job.ID)
	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*models.CaptionJob, error) {
	job, err := s.store.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs newest first, optionally restricted to one status.
func (s *Service) ListJobs(ctx context.Context, status string) ([]*models.CaptionJob, error) {
	var statuses []string
	if status != "" {
		statuses = append(statuses, status)
	}
	jobs, err := s.store.ListJobs(ctx, statuses...)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, nil
}

// Pause asks a running job to stop between files.
func (s *Service) Pause(ctx context.Context, id uuid.UUID) (*models.CaptionJob, error) {
	return s.transition(ctx, id, models.JobStatusPaused)
}

// Resume moves a paused job back to running and makes sure a runner owns it: a runner
// still waiting in its pause loop is woken, otherwise a new one is launched.
func (s *Service) Resume(ctx context.Context, id uuid.UUID) (*models.CaptionJob, error) {
	// Only a paused job resumes. pending -> running is the runner's edge and no job
	// returns to pending, so the check cannot race.
	current, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != models.JobStatusPaused {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, models.JobStatusRunning)
	}

	job, err := s.transition(ctx, id, models.JobStatusRunning)
	if err != nil {
		return nil, err
	}
	s.launch(id)
	return job, nil
}

// Cancel stops a job. Captions already written are kept and unprocessed files are not
// counted as failed.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*models.CaptionJob, error) {
	job, err := s.transition(ctx, id, models.JobStatusCancelled)
	if err != nil {
		return nil, err
	}
	s.notify(id)
	return job, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to string, opts ...store.JobUpdateOption) (*models.CaptionJob, error) {
	job, err := s.store.TransitionJob(ctx, id, to, opts...)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrJobNotFound
	case errors.Is(err, store.ErrInvalidTransition):
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	case err != nil:
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	s.mirrorStatus(ctx, id, job.Status)
	slog.Info("caption job status changed", "job_id", id, "status", job.Status)
	return job, nil
}

// RecoverInterrupted relaunches jobs a previous process left pending or running.
func (s *Service) RecoverInterrupted(ctx context.Context) (int, error) {
	jobs, err := s.store.ListJobs(ctx, models.JobStatusPending, models.JobStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("listing interrupted jobs: %w", err)
	}
	for _, job := range jobs {
		slog.Info("recovering interrupted caption job", "job_id", job.ID, "status", job.Status)
		s.launch(job.ID)
	}
	return len(jobs), nil
}

// Shutdown stops every runner and waits for them to exit or for ctx to end. Jobs keep
// their persisted status and are picked up by RecoverInterrupted on the next start.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until no runner is active.
func (s *Service) Wait() {
	s.wg.Wait()
}

// launch starts a runner for the job unless one already owns it, in which case that
// runner is woken to re-read the job status.
func (s *Service) launch(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.runners[id]; ok {
		h.signal()
		return
	}
	h := &runHandle{wake: make(chan struct{}, 1)}
	s.runners[id] = h

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(id, h)
		s.runJob(s.ctx, id, h.wake)
	}()
}

// release drops the runner from the registry. A wake that arrived while the runner was
// already on its way out is handed to a fresh runner so the request is not lost.
func (s *Service) release(id uuid.UUID, h *runHandle) {
	s.mu.Lock()
	delete(s.runners, id)
	pending := len(h.wake) > 0
	s.mu.Unlock()

	if pending && s.ctx.Err() == nil {
		s.launch(id)
	}
}

func (s *Service) notify(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.runners[id]; ok {
		h.signal()
	}
}

func (h *runHandle) signal() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (s *Service) mirrorStatus(ctx context.Context, id uuid.UUID, status string) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.SetJobStatus(ctx, id, status, statusTTL); err != nil {
		slog.Warn("mirroring job status failed", "job_id", id, "status", status, "error", err)
	}
}

// GenerateParams describes a one-off caption request outside any job.
type GenerateParams struct {
	FileID        uuid.UUID
	Style         string
	MaxLength     *int
	CustomPrompt  *string
	TriggerPhrase *string
	VisionModel   string
	VisionBackend string
}

// GenerateResult is the outcome of a one-off caption request.
type GenerateResult struct {
	Caption        string   `json:"caption"`
	QualityScore   *float64 `json:"quality_score"`
	QualityFlags   []string `json:"quality_flags"`
	ProcessingTime int64    `json:"processing_time_ms"`
	VisionModel    string   `json:"vision_model"`
	Backend        string   `json:"backend"`
}

// GenerateCaption captions a single file without creating a job. Nothing is persisted
// and no job cache is used.
func (s *Service) GenerateCaption(ctx context.Context, params GenerateParams) (*GenerateResult, error) {
	file, err := s.store.GetTrackedFile(ctx, params.FileID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading file: %w", err)
	}
	if _, err := os.Stat(file.AbsolutePath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFileMissingOnDisk, file.AbsolutePath)
	}

	backend, err := s.backends.Resolve(params.VisionBackend)
	if err != nil {
		return nil, err
	}
	model := params.VisionModel
	if model == "" {
		model = s.opts.DefaultModel
	}
	style := params.Style
	if style == "" {
		style = models.StyleNatural
	}

	prompt, anomaly := vision.BuildPrompt(vision.PromptOptions{
		Style:         style,
		MaxLength:     params.MaxLength,
		CustomPrompt:  params.CustomPrompt,
		TriggerPhrase: params.TriggerPhrase,
	})
	if anomaly != nil {
		slog.Warn("prompt configuration anomaly", "file_id", params.FileID, "error", anomaly)
	}

	start := time.Now()
	data, err := preprocess.Uncached(s.encoder, file.AbsolutePath)
	if err != nil {
		return nil, err
	}
	result, err := s.callBackend(ctx, backend, model, prompt, data)
	if err != nil {
		return nil, err
	}
	caption := vision.EnforceTriggerPhrase(result.Caption, params.TriggerPhrase)
	if caption == "" {
		slog.Warn("vision model returned empty caption", "file_id", params.FileID)
	}

	return &GenerateResult{
		Caption:        caption,
		QualityScore:   result.QualityScore,
		QualityFlags:   result.QualityFlags,
		ProcessingTime: time.Since(start).Milliseconds(),
		VisionModel:    model,
		Backend:        backend.Name(),
	}, nil
}

func (s *Service) callBackend(ctx context.Context, backend models.VisionBackend, model, prompt string, image []byte) (models.CaptionResult, error) {
	raw, err := backend.Generate(ctx, models.GenerateRequest{
		Model:       model,
		ImageBase64: base64.StdEncoding.EncodeToString(image),
		Prompt:      prompt,
		Timeout:     s.opts.Timeout,
	})
	if err != nil {
		return models.CaptionResult{}, err
	}
	result := vision.ParseResponse(raw)
	result.Caption = strings.TrimSpace(result.Caption)
	return result, nil
}
