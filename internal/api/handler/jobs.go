package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/captionforge/internal/api/response"
	"github.com/kiranshivaraju/captionforge/internal/captioning"
	"github.com/kiranshivaraju/captionforge/pkg/models"
)

// JobService is the part of the caption service the job handlers depend on.
type JobService interface {
	CreateJob(ctx context.Context, params captioning.CreateJobParams) (*models.CaptionJob, error)
	GetJob(ctx context.Context, id uuid.UUID) (*models.CaptionJob, error)
	ListJobs(ctx context.Context, status string) ([]*models.CaptionJob, error)
	Pause(ctx context.Context, id uuid.UUID) (*models.CaptionJob, error)
	Resume(ctx context.Context, id uuid.UUID) (*models.CaptionJob, error)
	Cancel(ctx context.Context, id uuid.UUID) (*models.CaptionJob, error)
}

var jobStatuses = []string{
	models.JobStatusPending, models.JobStatusRunning, models.JobStatusPaused,
	models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled,
}

// NewCreateJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
func NewCreateJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CaptionSetID      string `json:"caption_set_id"`
			VisionModel       string `json:"vision_model"`
			VisionBackend     string `json:"vision_backend"`
			OverwriteExisting bool   `json:"overwrite_existing"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.CaptionSetID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "caption_set_id is required", nil)
			return
		}
		csID, err := uuid.Parse(req.CaptionSetID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "caption_set_id must be a valid UUID", nil)
			return
		}

		job, err := svc.CreateJob(r.Context(), captioning.CreateJobParams{
			CaptionSetID:      csID,
			VisionModel:       req.VisionModel,
			VisionBackend:     req.VisionBackend,
			OverwriteExisting: req.OverwriteExisting,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.Accepted(w, job)
	}
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/jobs.
func NewListJobsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := r.URL.Query().Get("status")
		if status != "" && !slices.Contains(jobStatuses, status) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "status is not a valid job status", nil)
			return
		}

		jobs, err := svc.ListJobs(r.Context(), status)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if jobs == nil {
			jobs = []*models.CaptionJob{}
		}
		response.List(w, jobs, len(jobs))
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}
		job, err := svc.GetJob(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewPauseJobHandler returns an http.HandlerFunc for POST /api/v1/jobs/{jobID}/pause.
func NewPauseJobHandler(svc JobService) http.HandlerFunc {
	return jobControl(svc.Pause)
}

// NewResumeJobHandler returns an http.HandlerFunc for POST /api/v1/jobs/{jobID}/resume.
func NewResumeJobHandler(svc JobService) http.HandlerFunc {
	return jobControl(svc.Resume)
}

// NewCancelJobHandler returns an http.HandlerFunc for POST /api/v1/jobs/{jobID}/cancel.
func NewCancelJobHandler(svc JobService) http.HandlerFunc {
	return jobControl(svc.Cancel)
}

func jobControl(op func(ctx context.Context, id uuid.UUID) (*models.CaptionJob, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}
		job, err := op(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, job)
	}
}

func jobIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}
