package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/captionforge/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetCaptionSet(ctx context.Context, id uuid.UUID) (*models.CaptionSet, error)
	GetTrackedFile(ctx context.Context, id uuid.UUID) (*models.TrackedFile, error)
	ListDatasetFiles(ctx context.Context, datasetID uuid.UUID) ([]models.DatasetFile, error)
	ListCaptionedFileIDs(ctx context.Context, captionSetID uuid.UUID) ([]uuid.UUID, error)
	RefreshCaptionCount(ctx context.Context, captionSetID uuid.UUID) (int, error)

	CreateJob(ctx context.Context, job *models.CaptionJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.CaptionJob, error)
	ListJobs(ctx context.Context, statuses ...string) ([]*models.CaptionJob, error)
	TransitionJob(ctx context.Context, id uuid.UUID, to string, opts ...JobUpdateOption) (*models.CaptionJob, error)
	SetCurrentFile(ctx context.Context, jobID, fileID uuid.UUID) error

	// RecordCaption saves a generated caption and counts it as completed for the job.
	// It reports false without writing anything if the job already processed the file.
	RecordCaption(ctx context.Context, jobID uuid.UUID, caption *models.Caption) (bool, error)
	// RecordFailure counts fileID as failed for the job and stores errText as its
	// last error. It reports false if the job already processed the file.
	RecordFailure(ctx context.Context, jobID, fileID uuid.UUID, errText string) (bool, error)
	ListProcessedFileIDs(ctx context.Context, jobID uuid.UUID) ([]uuid.UUID, error)
}

type jobUpdateParams struct {
	ErrorMessage *string
}

type JobUpdateOption func(*jobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

// ErrorMessage returns the error message set by opts, or nil.
func ErrorMessage(opts ...JobUpdateOption) *string {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}
	return params.ErrorMessage
}
