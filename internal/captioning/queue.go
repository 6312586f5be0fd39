package captioning

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/captionforge/pkg/models"
)

// QueueSource is the slice of the catalog the queue builder reads.
type QueueSource interface {
	ListDatasetFiles(ctx context.Context, datasetID uuid.UUID) ([]models.DatasetFile, error)
	ListCaptionedFileIDs(ctx context.Context, captionSetID uuid.UUID) ([]uuid.UUID, error)
}

// BuildQueue returns the non-excluded files of the caption set's dataset in
// (order_index, file_id) order. Unless overwrite is set, files that already have a
// caption in the set are left out. An empty result is ErrNothingToCaption.
func BuildQueue(ctx context.Context, src QueueSource, cs *models.CaptionSet, overwrite bool) ([]uuid.UUID, error) {
	files, err := src.ListDatasetFiles(ctx, cs.DatasetID)
	if err != nil {
		return nil, fmt.Errorf("listing dataset files: %w", err)
	}

	skip := map[uuid.UUID]struct{}{}
	if !overwrite {
		captioned, err := src.ListCaptionedFileIDs(ctx, cs.ID)
		if err != nil {
			return nil, fmt.Errorf("listing captioned files: %w", err)
		}
		for _, id := range captioned {
			skip[id] = struct{}{}
		}
	}

	sortDatasetFiles(files)

	queue := make([]uuid.UUID, 0, len(files))
	for _, f := range files {
		if f.Excluded {
			continue
		}
		if _, ok := skip[f.FileID]; ok {
			continue
		}
		queue = append(queue, f.FileID)
	}

	if len(queue) == 0 {
		return nil, ErrNothingToCaption
	}
	return queue, nil
}

func sortDatasetFiles(files []models.DatasetFile) {
	slices.SortStableFunc(files, func(a, b models.DatasetFile) int {
		if a.OrderIndex != b.OrderIndex {
			return cmp.Compare(a.OrderIndex, b.OrderIndex)
		}
		return bytes.Compare(a.FileID[:], b.FileID[:])
	})
}
