package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/captionforge/internal/api/response"
	"github.com/kiranshivaraju/captionforge/internal/captioning"
	"github.com/kiranshivaraju/captionforge/internal/vision"
)

// writeServiceError maps captioning and vision errors to the API error envelope.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, captioning.ErrCaptionSetNotFound):
		response.Error(w, http.StatusNotFound, "CAPTION_SET_NOT_FOUND", "Caption set not found", nil)
	case errors.Is(err, captioning.ErrJobNotFound):
		response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
	case errors.Is(err, captioning.ErrFileNotFound):
		response.Error(w, http.StatusNotFound, "FILE_NOT_FOUND", "File not found", nil)
	case errors.Is(err, captioning.ErrFileMissingOnDisk):
		response.Error(w, http.StatusNotFound, "FILE_MISSING_ON_DISK", "Image file not found on disk", nil)
	case errors.Is(err, captioning.ErrNothingToCaption):
		response.Error(w, http.StatusBadRequest, "NOTHING_TO_CAPTION",
			"No files to caption (all files may already have captions)", nil)
	case errors.Is(err, captioning.ErrInvalidTransition):
		response.Error(w, http.StatusConflict, "INVALID_JOB_STATE", err.Error(), nil)
	case errors.Is(err, vision.ErrUnknownBackend):
		response.Error(w, http.StatusBadRequest, "UNKNOWN_VISION_BACKEND", err.Error(), nil)
	case errors.Is(err, vision.ErrBackendUnavailable):
		response.Error(w, http.StatusBadGateway, "VISION_BACKEND_UNAVAILABLE",
			"The vision backend is not available", nil)
	case errors.Is(err, vision.ErrBackendStatus), errors.Is(err, vision.ErrInvalidResponse),
		errors.Is(err, vision.ErrThinkingExhausted):
		response.Error(w, http.StatusBadGateway, "VISION_BACKEND_ERROR", err.Error(), nil)
	case errors.Is(err, vision.ErrInferenceTimeout):
		response.Error(w, http.StatusGatewayTimeout, "VISION_INFERENCE_TIMEOUT",
			"Caption generation took too long and was cancelled", nil)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}
