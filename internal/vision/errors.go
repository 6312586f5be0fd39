package vision

import (
	"errors"

	"github.com/kiranshivaraju/captionforge/internal/vision/ollama"
	"github.com/kiranshivaraju/captionforge/internal/vision/transport"
)

// Backend call failures, shared by every wire variant.
var (
	ErrBackendUnavailable = transport.ErrBackendUnavailable
	ErrBackendStatus      = transport.ErrBackendStatus
	ErrInferenceTimeout   = transport.ErrInferenceTimeout
	ErrInvalidResponse    = transport.ErrInvalidResponse
	ErrThinkingExhausted  = ollama.ErrThinkingExhausted
)

var (
	ErrUnknownBackend = errors.New("unknown vision backend")
	ErrEmptyCaption   = errors.New("vision model returned empty caption")

	// ErrCustomStyleWithoutPrompt is a configuration anomaly, not a failure: the prompt
	// builder falls back to the natural style.
	ErrCustomStyleWithoutPrompt = errors.New("style is custom but no custom prompt was provided")
)
