package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/captionforge/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Catalog (read side) ---

func (s *PostgresStore) GetTrackedFile(ctx context.Context, id uuid.UUID) (*models.TrackedFile, error) {
	var f models.TrackedFile
	err := s.pool.QueryRow(ctx,
		`SELECT id, folder_id, filename, relative_path, absolute_path, file_hash, exists_on_disk, created_at, updated_at
		 FROM tracked_files WHERE id = $1`, id,
	).Scan(&f.ID, &f.FolderID, &f.Filename, &f.RelativePath, &f.AbsolutePath, &f.FileHash,
		&f.Exists, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tracked file: %w", err)
	}
	return &f, nil
}

// ListDatasetFiles returns every file of the dataset, excluded ones included, ordered by
// (order_index, file_id).
func (s *PostgresStore) ListDatasetFiles(ctx context.Context, datasetID uuid.UUID) ([]models.DatasetFile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT dataset_id, file_id, order_index, excluded, quality_score, quality_flags
		 FROM dataset_files WHERE dataset_id = $1 ORDER BY order_index, file_id`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("list dataset files: %w", err)
	}
	defer rows.Close()

	var files []models.DatasetFile
	for rows.Next() {
		var df models.DatasetFile
		if err := rows.Scan(&df.DatasetID, &df.FileID, &df.OrderIndex, &df.Excluded,
			&df.QualityScore, &df.QualityFlags); err != nil {
			return nil, fmt.Errorf("scan dataset file: %w", err)
		}
		files = append(files, df)
	}
	return files, rows.Err()
}

func (s *PostgresStore) GetCaptionSet(ctx context.Context, id uuid.UUID) (*models.CaptionSet, error) {
	var cs models.CaptionSet
	err := s.pool.QueryRow(ctx,
		`SELECT id, dataset_id, name, style, max_length, custom_prompt, trigger_phrase, caption_count, created_at, updated_at
		 FROM caption_sets WHERE id = $1`, id,
	).Scan(&cs.ID, &cs.DatasetID, &cs.Name, &cs.Style, &cs.MaxLength, &cs.CustomPrompt,
		&cs.TriggerPhrase, &cs.CaptionCount, &cs.CreatedAt, &cs.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get caption set: %w", err)
	}
	return &cs, nil
}

func (s *PostgresStore) ListCaptionedFileIDs(ctx context.Context, captionSetID uuid.UUID) ([]uuid.UUID, error) {
	return s.listIDs(ctx, "list captioned files",
		`SELECT file_id FROM captions WHERE caption_set_id = $1`, captionSetID)
}

// RefreshCaptionCount recomputes the cached caption count of a caption set.
func (s *PostgresStore) RefreshCaptionCount(ctx context.Context, captionSetID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`UPDATE caption_sets
		 SET caption_count = (SELECT COUNT(*) FROM captions WHERE caption_set_id = $1), updated_at = NOW()
		 WHERE id = $1
		 RETURNING caption_count`, captionSetID,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("refresh caption count: %w", err)
	}
	return count, nil
}

// --- Jobs ---

const jobColumns = `id, caption_set_id, vision_model, vision_backend, overwrite_existing, status,
	total_files, completed_files, failed_files, current_file_id, last_error,
	created_at, started_at, completed_at, updated_at`

func scanJob(row pgx.Row) (*models.CaptionJob, error) {
	var j models.CaptionJob
	err := row.Scan(&j.ID, &j.CaptionSetID, &j.VisionModel, &j.VisionBackend, &j.OverwriteExisting,
		&j.Status, &j.TotalFiles, &j.CompletedFiles, &j.FailedFiles, &j.CurrentFileID, &j.LastError,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.CaptionJob) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO caption_jobs (id, caption_set_id, vision_model, vision_backend, overwrite_existing, status,
		   total_files, completed_files, failed_files, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		job.ID, job.CaptionSetID, job.VisionModel, job.VisionBackend, job.OverwriteExisting, job.Status,
		job.TotalFiles, job.CompletedFiles, job.FailedFiles, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.CaptionJob, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM caption_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// ListJobs returns jobs newest first, restricted to the given statuses when any are passed.
func (s *PostgresStore) ListJobs(ctx context.Context, statuses ...string) ([]*models.CaptionJob, error) {
	query := `SELECT ` + jobColumns + ` FROM caption_jobs`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status = ANY($1)`
		args = append(args, statuses)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*models.CaptionJob{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// TransitionJob moves a job to status to in one conditional update, so concurrent
// callers can never apply an edge the state machine does not allow. started_at is set
// on the first move to running; completed_at on any terminal status.
func (s *PostgresStore) TransitionJob(ctx context.Context, id uuid.UUID, to string, opts ...JobUpdateOption) (*models.CaptionJob, error) {
	errMsg := ErrorMessage(opts...)

	sources := models.TransitionSources(to)
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no edge leads to %s", ErrInvalidTransition, to)
	}

	now := time.Now().UTC()
	j, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE caption_jobs SET
		   status = $2::text,
		   updated_at = $3,
		   started_at = CASE WHEN $2::text = 'running' THEN COALESCE(started_at, $3) ELSE started_at END,
		   completed_at = CASE WHEN $4::boolean THEN $3 ELSE completed_at END,
		   last_error = COALESCE($5::text, last_error)
		 WHERE id = $1 AND status = ANY($6)
		 RETURNING `+jobColumns,
		id, to, now, models.IsTerminalStatus(to), errMsg, sources))
	if err == nil {
		return j, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transition job: %w", err)
	}

	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM caption_jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job status: %w", err)
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, to)
}

func (s *PostgresStore) SetCurrentFile(ctx context.Context, jobID, fileID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE caption_jobs SET current_file_id = $2, updated_at = NOW() WHERE id = $1`, jobID, fileID)
	if err != nil {
		return fmt.Errorf("set current file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RecordCaption(ctx context.Context, jobID uuid.UUID, c *models.Caption) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin record caption: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	inserted, err := insertJobItem(ctx, tx, jobID, c.FileID, models.ItemOutcomeCompleted, nil)
	if err != nil || !inserted {
		return false, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO captions (id, caption_set_id, file_id, text, source, vision_model, quality_score, quality_flags, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		 ON CONFLICT (caption_set_id, file_id) DO UPDATE SET
		   text = EXCLUDED.text,
		   source = EXCLUDED.source,
		   vision_model = EXCLUDED.vision_model,
		   quality_score = EXCLUDED.quality_score,
		   quality_flags = EXCLUDED.quality_flags,
		   updated_at = EXCLUDED.updated_at`,
		c.ID, c.CaptionSetID, c.FileID, c.Text, c.Source, c.VisionModel, c.QualityScore, c.QualityFlags,
		time.Now().UTC())
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("upsert caption: %w", err)
	}

	if c.QualityScore != nil {
		_, err = tx.Exec(ctx,
			`UPDATE dataset_files SET quality_score = $3, quality_flags = $4
			 WHERE file_id = $2 AND dataset_id = (SELECT dataset_id FROM caption_sets WHERE id = $1)`,
			c.CaptionSetID, c.FileID, c.QualityScore, c.QualityFlags)
		if err != nil {
			return false, fmt.Errorf("update dataset file quality: %w", err)
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE caption_jobs SET completed_files = completed_files + 1, updated_at = NOW()
		 WHERE id = $1 AND completed_files + failed_files < total_files
		   AND status IN ('pending', 'running', 'paused')`, jobID)
	if err != nil {
		return false, fmt.Errorf("increment completed files: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit record caption: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) RecordFailure(ctx context.Context, jobID, fileID uuid.UUID, errText string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin record failure: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	inserted, err := insertJobItem(ctx, tx, jobID, fileID, models.ItemOutcomeFailed, &errText)
	if err != nil || !inserted {
		return false, err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE caption_jobs SET failed_files = failed_files + 1, last_error = $2, updated_at = NOW()
		 WHERE id = $1 AND completed_files + failed_files < total_files
		   AND status IN ('pending', 'running', 'paused')`, jobID, errText)
	if err != nil {
		return false, fmt.Errorf("increment failed files: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit record failure: %w", err)
	}
	return true, nil
}

func insertJobItem(ctx context.Context, tx pgx.Tx, jobID, fileID uuid.UUID, outcome string, errText *string) (bool, error) {
	tag, err := tx.Exec(ctx,
		`INSERT INTO caption_job_items (job_id, file_id, outcome, error, processed_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (job_id, file_id) DO NOTHING`, jobID, fileID, outcome, errText)
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("insert job item: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListProcessedFileIDs(ctx context.Context, jobID uuid.UUID) ([]uuid.UUID, error) {
	return s.listIDs(ctx, "list processed files",
		`SELECT file_id FROM caption_job_items WHERE job_id = $1`, jobID)
}

func (s *PostgresStore) listIDs(ctx context.Context, op, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
