package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/captionforge/pkg/models"
)

// Catalog writes belong to the folder scanner and dataset services. The job engine only
// reads the catalog, so these exist for seeding and inspecting it in tests.

func (s *PostgresStore) CreateTrackedFolder(ctx context.Context, id uuid.UUID, path string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tracked_folders (id, path) VALUES ($1, $2)`, id, path)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create tracked folder: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateTrackedFile(ctx context.Context, f *models.TrackedFile) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tracked_files (id, folder_id, filename, relative_path, absolute_path, file_hash, exists_on_disk, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		f.ID, f.FolderID, f.Filename, f.RelativePath, f.AbsolutePath, f.FileHash, f.Exists, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create tracked file: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateDataset(ctx context.Context, id uuid.UUID, name string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO datasets (id, name) VALUES ($1, $2)`, id, name)
	if err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddDatasetFile(ctx context.Context, df *models.DatasetFile) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO dataset_files (dataset_id, file_id, order_index, excluded, quality_score, quality_flags)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		df.DatasetID, df.FileID, df.OrderIndex, df.Excluded, df.QualityScore, df.QualityFlags)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("add dataset file: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDatasetFile(ctx context.Context, datasetID, fileID uuid.UUID) (*models.DatasetFile, error) {
	var df models.DatasetFile
	err := s.pool.QueryRow(ctx,
		`SELECT dataset_id, file_id, order_index, excluded, quality_score, quality_flags
		 FROM dataset_files WHERE dataset_id = $1 AND file_id = $2`, datasetID, fileID,
	).Scan(&df.DatasetID, &df.FileID, &df.OrderIndex, &df.Excluded, &df.QualityScore, &df.QualityFlags)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset file: %w", err)
	}
	return &df, nil
}

func (s *PostgresStore) CreateCaptionSet(ctx context.Context, cs *models.CaptionSet) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO caption_sets (id, dataset_id, name, style, max_length, custom_prompt, trigger_phrase, caption_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		cs.ID, cs.DatasetID, cs.Name, cs.Style, cs.MaxLength, cs.CustomPrompt, cs.TriggerPhrase,
		cs.CaptionCount, cs.CreatedAt, cs.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create caption set: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteCaptionSet(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM caption_sets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete caption set: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetCaption(ctx context.Context, captionSetID, fileID uuid.UUID) (*models.Caption, error) {
	var c models.Caption
	err := s.pool.QueryRow(ctx,
		`SELECT id, caption_set_id, file_id, text, source, vision_model, quality_score, quality_flags, created_at, updated_at
		 FROM captions WHERE caption_set_id = $1 AND file_id = $2`, captionSetID, fileID,
	).Scan(&c.ID, &c.CaptionSetID, &c.FileID, &c.Text, &c.Source, &c.VisionModel,
		&c.QualityScore, &c.QualityFlags, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get caption: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) ListJobItems(ctx context.Context, jobID uuid.UUID) ([]models.CaptionJobItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT job_id, file_id, outcome, error, processed_at
		 FROM caption_job_items WHERE job_id = $1 ORDER BY processed_at, file_id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job items: %w", err)
	}
	defer rows.Close()

	var items []models.CaptionJobItem
	for rows.Next() {
		var it models.CaptionJobItem
		if err := rows.Scan(&it.JobID, &it.FileID, &it.Outcome, &it.Error, &it.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan job item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
