package ollama

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/captionforge/internal/config"
	"github.com/kiranshivaraju/captionforge/internal/vision/transport"
	"github.com/kiranshivaraju/captionforge/pkg/models"
)

// ErrThinkingExhausted is returned when a reasoning model spent its whole token budget
// thinking and produced no answer.
var ErrThinkingExhausted = errors.New("model exhausted tokens during thinking phase; try a different model")

const listTimeout = 5 * time.Second

// Backend implements models.VisionBackend against Ollama's native chat API.
type Backend struct {
	baseURL   string
	maxTokens int
	client    *transport.Client
}

// NewBackend creates an Ollama backend. A nil client uses transport defaults.
func NewBackend(cfg config.OllamaConfig, maxTokens int, client *transport.Client) *Backend {
	if client == nil {
		client = transport.NewClient(nil)
	}
	return &Backend{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		maxTokens: maxTokens,
		client:    client,
	}
}

func (b *Backend) Name() string { return "ollama" }

type chatMessage struct {
	Role     string   `json:"role"`
	Content  string   `json:"content"`
	Images   []string `json:"images,omitempty"`
	Thinking string   `json:"thinking,omitempty"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Think    bool          `json:"think"`
	Options  chatOptions   `json:"options"`
}

type chatResponse struct {
	Message    chatMessage `json:"message"`
	Done       bool        `json:"done"`
	DoneReason string      `json:"done_reason"`
}

// Generate sends one image and prompt to /api/chat and returns the raw reply text.
func (b *Backend) Generate(ctx context.Context, req models.GenerateRequest) (string, error) {
	payload := chatRequest{
		Model: req.Model,
		Messages: []chatMessage{{
			Role:    "user",
			Content: req.Prompt,
			Images:  []string{req.ImageBase64},
		}},
		Stream: false,
		Think:  false,
		Options: chatOptions{
			Temperature: 0.3,
			NumPredict:  b.maxTokens,
		},
	}

	var resp chatResponse
	if err := b.client.PostJSON(ctx, b.baseURL+"/api/chat", payload, &resp, req.Timeout); err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}

	if strings.TrimSpace(resp.Message.Content) == "" &&
		strings.TrimSpace(resp.Message.Thinking) != "" &&
		resp.DoneReason == "length" {
		return "", ErrThinkingExhausted
	}
	return resp.Message.Content, nil
}

type tagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// ListModels returns the model names the Ollama server has pulled.
func (b *Backend) ListModels(ctx context.Context) ([]string, error) {
	var resp tagsResponse
	if err := b.client.GetJSON(ctx, b.baseURL+"/api/tags", &resp, listTimeout); err != nil {
		return nil, fmt.Errorf("ollama tags: %w", err)
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		names = append(names, name)
	}
	return names, nil
}

var _ models.VisionBackend = (*Backend)(nil)
