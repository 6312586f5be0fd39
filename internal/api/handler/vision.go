package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/captionforge/internal/api/response"
	"github.com/kiranshivaraju/captionforge/internal/captioning"
	"github.com/kiranshivaraju/captionforge/internal/vision"
	"github.com/kiranshivaraju/captionforge/pkg/models"
)

// ModelLister reports the curated vision models for a backend.
type ModelLister interface {
	List(ctx context.Context, backend string) ([]vision.ModelInfo, error)
	Invalidate(ctx context.Context, backend string) error
}

// Captioner generates a caption for one image outside any job.
type Captioner interface {
	GenerateCaption(ctx context.Context, params captioning.GenerateParams) (*captioning.GenerateResult, error)
}

// NewListModelsHandler returns an http.HandlerFunc for GET /api/v1/vision/models.
// ?refresh=true rechecks which models the backend has installed.
func NewListModelsHandler(catalog ModelLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		backend := r.URL.Query().Get("backend")
		if r.URL.Query().Get("refresh") == "true" {
			if err := catalog.Invalidate(r.Context(), backend); err != nil {
				writeServiceError(w, r, err)
				return
			}
		}

		list, err := catalog.List(r.Context(), backend)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, list)
	}
}

// NewGenerateHandler returns an http.HandlerFunc for POST /api/v1/vision/generate.
func NewGenerateHandler(svc Captioner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			FileID        string  `json:"file_id"`
			Style         string  `json:"style"`
			MaxLength     *int    `json:"max_length"`
			VisionModel   string  `json:"vision_model"`
			VisionBackend string  `json:"vision_backend"`
			CustomPrompt  *string `json:"custom_prompt"`
			TriggerPhrase *string `json:"trigger_phrase"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.FileID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "file_id is required", nil)
			return
		}
		fileID, err := uuid.Parse(req.FileID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "file_id must be a valid UUID", nil)
			return
		}
		switch req.Style {
		case "", models.StyleNatural, models.StyleDetailed, models.StyleTags, models.StyleCustom:
		default:
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"style must be one of natural, detailed, tags, custom", nil)
			return
		}
		if req.MaxLength != nil && *req.MaxLength <= 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "max_length must be positive", nil)
			return
		}

		result, err := svc.GenerateCaption(r.Context(), captioning.GenerateParams{
			FileID:        fileID,
			Style:         req.Style,
			MaxLength:     req.MaxLength,
			CustomPrompt:  req.CustomPrompt,
			TriggerPhrase: req.TriggerPhrase,
			VisionModel:   req.VisionModel,
			VisionBackend: req.VisionBackend,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, result)
	}
}
