// Package models contains shared data models used across the CaptionForge codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	StyleNatural  = "natural"
	StyleDetailed = "detailed"
	StyleTags     = "tags"
	StyleCustom   = "custom"
)

const (
	CaptionSourceManual    = "manual"
	CaptionSourceGenerated = "generated"
	CaptionSourceImported  = "imported"
)

// TrackedFile is an image discovered by the folder scanner.
type TrackedFile struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	FolderID     uuid.UUID `db:"folder_id"     json:"folder_id"`
	Filename     string    `db:"filename"      json:"filename"`
	RelativePath string    `db:"relative_path" json:"relative_path"`
	AbsolutePath string    `db:"absolute_path" json:"absolute_path"`
	FileHash     *string   `db:"file_hash"     json:"file_hash,omitempty"`
	Exists       bool      `db:"exists_on_disk" json:"exists"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"    json:"updated_at"`
}

// DatasetFile associates a tracked file with a dataset.
type DatasetFile struct {
	DatasetID    uuid.UUID `db:"dataset_id"    json:"dataset_id"`
	FileID       uuid.UUID `db:"file_id"       json:"file_id"`
	OrderIndex   int       `db:"order_index"   json:"order_index"`
	Excluded     bool      `db:"excluded"      json:"excluded"`
	QualityScore *float64  `db:"quality_score" json:"quality_score,omitempty"`
	QualityFlags []string  `db:"quality_flags" json:"quality_flags,omitempty"`
}

// CaptionSet is a named collection of captions for a dataset with its generation settings.
type CaptionSet struct {
	ID            uuid.UUID `db:"id"             json:"id"`
	DatasetID     uuid.UUID `db:"dataset_id"     json:"dataset_id"`
	Name          string    `db:"name"           json:"name"`
	Style         string    `db:"style"          json:"style"`
	MaxLength     *int      `db:"max_length"     json:"max_length,omitempty"`
	CustomPrompt  *string   `db:"custom_prompt"  json:"custom_prompt,omitempty"`
	TriggerPhrase *string   `db:"trigger_phrase" json:"trigger_phrase,omitempty"`
	CaptionCount  int       `db:"caption_count"  json:"caption_count"`
	CreatedAt     time.Time `db:"created_at"     json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"     json:"updated_at"`
}

// Caption is the caption of one file within one caption set.
// (caption_set_id, file_id) is unique.
type Caption struct {
	ID           uuid.UUID `db:"id"             json:"id"`
	CaptionSetID uuid.UUID `db:"caption_set_id" json:"caption_set_id"`
	FileID       uuid.UUID `db:"file_id"        json:"file_id"`
	Text         string    `db:"text"           json:"text"`
	Source       string    `db:"source"         json:"source"`
	VisionModel  *string   `db:"vision_model"   json:"vision_model,omitempty"`
	QualityScore *float64  `db:"quality_score"  json:"quality_score,omitempty"`
	QualityFlags []string  `db:"quality_flags"  json:"quality_flags,omitempty"`
	CreatedAt    time.Time `db:"created_at"     json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"     json:"updated_at"`
}
