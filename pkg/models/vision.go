package models

import (
	"context"
	"time"
)

// VisionBackend is the core interface that all model backends must implement.
// Callers resolve backends from the vision registry rather than constructing one.
type VisionBackend interface {
	// Generate sends one image and prompt to the model and returns the raw reply text.
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	// ListModels returns the model names currently installed in the backend.
	ListModels(ctx context.Context) ([]string, error)
	// Name returns the backend identifier (e.g., "ollama", "lmstudio").
	Name() string
}

// GenerateRequest is the input to a single backend call.
type GenerateRequest struct {
	Model       string
	ImageBase64 string
	Prompt      string
	Timeout     time.Duration
}

// CaptionResult is the structured interpretation of a backend reply.
// QualityScore and QualityFlags are nil when the reply carried no quality data.
type CaptionResult struct {
	Caption      string
	QualityScore *float64
	QualityFlags []string
}
