package lmstudio

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/captionforge/internal/config"
	"github.com/kiranshivaraju/captionforge/internal/vision/transport"
	"github.com/kiranshivaraju/captionforge/pkg/models"
)

const listTimeout = 5 * time.Second

// Backend implements models.VisionBackend against LM Studio's OpenAI-compatible API.
type Backend struct {
	baseURL   string
	maxTokens int
	client    *transport.Client
}

// NewBackend creates an LM Studio backend. A nil client uses transport defaults.
func NewBackend(cfg config.LMStudioConfig, maxTokens int, client *transport.Client) *Backend {
	if client == nil {
		client = transport.NewClient(nil)
	}
	return &Backend{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		maxTokens: maxTokens,
		client:    client,
	}
}

func (b *Backend) Name() string { return "lmstudio" }

type imageURL struct {
	URL string `json:"url"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type message struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate sends one image and prompt to /v1/chat/completions and returns the first
// choice's content.
func (b *Backend) Generate(ctx context.Context, req models.GenerateRequest) (string, error) {
	payload := completionRequest{
		Model: req.Model,
		Messages: []message{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: req.Prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: "data:image/jpeg;base64," + req.ImageBase64}},
			},
		}},
		MaxTokens:   b.maxTokens,
		Temperature: 0.3,
	}

	var resp completionResponse
	if err := b.client.PostJSON(ctx, b.baseURL+"/v1/chat/completions", payload, &resp, req.Timeout); err != nil {
		return "", fmt.Errorf("lmstudio completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("lmstudio completion: %w: no choices", transport.ErrInvalidResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// ListModels returns the identifiers of models LM Studio has loaded.
func (b *Backend) ListModels(ctx context.Context) ([]string, error) {
	var resp modelsResponse
	if err := b.client.GetJSON(ctx, b.baseURL+"/v1/models", &resp, listTimeout); err != nil {
		return nil, fmt.Errorf("lmstudio models: %w", err)
	}
	ids := make([]string, 0, len(resp.Data))
	for _, m := range resp.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

var _ models.VisionBackend = (*Backend)(nil)
