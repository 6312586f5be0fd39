package captioning

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/captionforge/internal/store"
	"github.com/kiranshivaraju/captionforge/pkg/models"
)

// --- in-memory store ---

// fakeStore mirrors PostgresStore semantics closely enough for the runner: conditional
// transitions, a per-job ledger and counters capped at total_files.
type fakeStore struct {
	mu           sync.Mutex
	files        map[uuid.UUID]*models.TrackedFile
	datasetFiles map[uuid.UUID][]models.DatasetFile
	sets         map[uuid.UUID]*models.CaptionSet
	captions     map[uuid.UUID]map[uuid.UUID]*models.Caption
	jobs         map[uuid.UUID]*models.CaptionJob
	items        map[uuid.UUID]map[uuid.UUID]string
	currentFiles map[uuid.UUID][]uuid.UUID
	statusLog    map[uuid.UUID][]string
	getJobErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		files:        make(map[uuid.UUID]*models.TrackedFile),
		datasetFiles: make(map[uuid.UUID][]models.DatasetFile),
		sets:         make(map[uuid.UUID]*models.CaptionSet),
		captions:     make(map[uuid.UUID]map[uuid.UUID]*models.Caption),
		jobs:         make(map[uuid.UUID]*models.CaptionJob),
		items:        make(map[uuid.UUID]map[uuid.UUID]string),
		currentFiles: make(map[uuid.UUID][]uuid.UUID),
		statusLog:    make(map[uuid.UUID][]string),
	}
}

var _ store.Store = (*fakeStore)(nil)

func (s *fakeStore) Ping(_ context.Context) error { return nil }

func (s *fakeStore) GetCaptionSet(_ context.Context, id uuid.UUID) (*models.CaptionSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *cs
	return &cp, nil
}

func (s *fakeStore) GetTrackedFile(_ context.Context, id uuid.UUID) (*models.TrackedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *fakeStore) ListDatasetFiles(_ context.Context, datasetID uuid.UUID) ([]models.DatasetFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.DatasetFile, len(s.datasetFiles[datasetID]))
	copy(out, s.datasetFiles[datasetID])
	return out, nil
}

func (s *fakeStore) ListCaptionedFileIDs(_ context.Context, captionSetID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for id := range s.captions[captionSetID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *fakeStore) RefreshCaptionCount(_ context.Context, captionSetID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sets[captionSetID]
	if !ok {
		return 0, store.ErrNotFound
	}
	cs.CaptionCount = len(s.captions[captionSetID])
	return cs.CaptionCount, nil
}

func (s *fakeStore) CreateJob(_ context.Context, job *models.CaptionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.CaptionSetID != nil {
		if _, ok := s.sets[*job.CaptionSetID]; !ok {
			return store.ErrNotFound
		}
	}
	cp := *job
	s.jobs[job.ID] = &cp
	s.statusLog[job.ID] = append(s.statusLog[job.ID], job.Status)
	return nil
}

func (s *fakeStore) GetJob(_ context.Context, id uuid.UUID) (*models.CaptionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getJobErr != nil {
		return nil, s.getJobErr
	}
	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *fakeStore) ListJobs(_ context.Context, statuses ...string) ([]*models.CaptionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.CaptionJob
	for _, job := range s.jobs {
		if len(statuses) > 0 && !contains(statuses, job.Status) {
			continue
		}
		cp := *job
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeStore) TransitionJob(_ context.Context, id uuid.UUID, to string, opts ...store.JobUpdateOption) (*models.CaptionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !models.CanTransition(job.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, job.Status, to)
	}

	now := time.Now().UTC()
	job.Status = to
	job.UpdatedAt = now
	if to == models.JobStatusRunning && job.StartedAt == nil {
		job.StartedAt = &now
	}
	if models.IsTerminalStatus(to) {
		job.CompletedAt = &now
	}
	if msg := store.ErrorMessage(opts...); msg != nil {
		job.LastError = msg
	}
	s.statusLog[id] = append(s.statusLog[id], to)

	cp := *job
	return &cp, nil
}

func (s *fakeStore) SetCurrentFile(_ context.Context, jobID, fileID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return store.ErrNotFound
	}
	id := fileID
	job.CurrentFileID = &id
	s.currentFiles[jobID] = append(s.currentFiles[jobID], fileID)
	return nil
}

func (s *fakeStore) RecordCaption(_ context.Context, jobID uuid.UUID, c *models.Caption) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return false, store.ErrNotFound
	}
	if _, done := s.items[jobID][c.FileID]; done {
		return false, nil
	}
	if _, ok := s.sets[c.CaptionSetID]; !ok {
		return false, store.ErrNotFound
	}
	if !countable(job) {
		return false, nil
	}

	s.markItem(jobID, c.FileID, models.ItemOutcomeCompleted)
	if s.captions[c.CaptionSetID] == nil {
		s.captions[c.CaptionSetID] = make(map[uuid.UUID]*models.Caption)
	}
	cp := *c
	s.captions[c.CaptionSetID][c.FileID] = &cp
	job.CompletedFiles++
	return true, nil
}

func (s *fakeStore) RecordFailure(_ context.Context, jobID, fileID uuid.UUID, errText string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return false, store.ErrNotFound
	}
	if _, done := s.items[jobID][fileID]; done {
		return false, nil
	}
	if !countable(job) {
		return false, nil
	}
	s.markItem(jobID, fileID, models.ItemOutcomeFailed)
	job.FailedFiles++
	job.LastError = &errText
	return true, nil
}

// countable mirrors the guard on the counter update: an active job below its total.
func countable(job *models.CaptionJob) bool {
	return !models.IsTerminalStatus(job.Status) && job.CompletedFiles+job.FailedFiles < job.TotalFiles
}

func (s *fakeStore) markItem(jobID, fileID uuid.UUID, outcome string) {
	if s.items[jobID] == nil {
		s.items[jobID] = make(map[uuid.UUID]string)
	}
	s.items[jobID][fileID] = outcome
}

func (s *fakeStore) ListProcessedFileIDs(_ context.Context, jobID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for id := range s.items[jobID] {
		ids = append(ids, id)
	}
	return ids, nil
}

// --- seeding and inspection ---

// seedDataset creates n tracked files in one dataset and a caption set over it.
// File i has path "/photos/img-<i>.jpg" and order_index i.
func (s *fakeStore) seedDataset(n int, style string) (*models.CaptionSet, []uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	datasetID := uuid.New()
	ids := make([]uuid.UUID, n)
	for i := range n {
		id := uuid.New()
		ids[i] = id
		s.files[id] = &models.TrackedFile{
			ID:           id,
			Filename:     fmt.Sprintf("img-%d.jpg", i),
			AbsolutePath: fmt.Sprintf("/photos/img-%d.jpg", i),
			Exists:       true,
		}
		s.datasetFiles[datasetID] = append(s.datasetFiles[datasetID], models.DatasetFile{
			DatasetID:  datasetID,
			FileID:     id,
			OrderIndex: i,
		})
	}

	cs := &models.CaptionSet{ID: uuid.New(), DatasetID: datasetID, Name: "main", Style: style}
	s.sets[cs.ID] = cs
	cp := *cs
	return &cp, ids
}

// addCaptionSet creates another caption set over an existing dataset.
func (s *fakeStore) addCaptionSet(datasetID uuid.UUID, style string) *models.CaptionSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := &models.CaptionSet{ID: uuid.New(), DatasetID: datasetID, Name: "alt", Style: style}
	s.sets[cs.ID] = cs
	cp := *cs
	return &cp
}

func (s *fakeStore) updateCaptionSet(cs *models.CaptionSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cs
	s.sets[cs.ID] = &cp
}

func (s *fakeStore) putCaption(captionSetID, fileID uuid.UUID, text, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.captions[captionSetID] == nil {
		s.captions[captionSetID] = make(map[uuid.UUID]*models.Caption)
	}
	s.captions[captionSetID][fileID] = &models.Caption{
		ID: uuid.New(), CaptionSetID: captionSetID, FileID: fileID, Text: text, Source: source,
	}
}

func (s *fakeStore) caption(captionSetID, fileID uuid.UUID) *models.Caption {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.captions[captionSetID][fileID]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

func (s *fakeStore) captionCount(captionSetID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.captions[captionSetID])
}

// deleteCaptionSet drops the set and its captions and detaches jobs, as ON DELETE does.
func (s *fakeStore) deleteCaptionSet(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sets, id)
	delete(s.captions, id)
	for _, job := range s.jobs {
		if job.CaptionSetID != nil && *job.CaptionSetID == id {
			job.CaptionSetID = nil
		}
	}
}

func (s *fakeStore) setExcluded(datasetID, fileID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.datasetFiles[datasetID] {
		if s.datasetFiles[datasetID][i].FileID == fileID {
			s.datasetFiles[datasetID][i].Excluded = true
		}
	}
}

func (s *fakeStore) putJob(job *models.CaptionJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
}

func (s *fakeStore) deleteJob(jobID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
}

func (s *fakeStore) statuses(jobID uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statusLog[jobID]...)
}

func (s *fakeStore) setStatus(jobID uuid.UUID, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[jobID].Status = status
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
