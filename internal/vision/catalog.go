package vision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// CuratedModel is a vision model known to produce usable training captions.
type CuratedModel struct {
	ID           string
	Name         string
	OllamaName   string
	LMStudioName string
	VRAMGB       float64
	Description  string
}

// BackendName returns the model's identifier within the given backend.
func (m CuratedModel) BackendName(backend string) string {
	if backend == "lmstudio" {
		return m.LMStudioName
	}
	return m.OllamaName
}

var curatedModels = []CuratedModel{
	{ID: "qwen2.5-vl-7b", Name: "Qwen2.5-VL 7B", OllamaName: "qwen2.5-vl:7b", LMStudioName: "qwen/qwen2.5-vl-7b-instruct", VRAMGB: 8, Description: "Excellent quality, good speed. Recommended for most users."},
	{ID: "qwen2.5-vl-3b", Name: "Qwen2.5-VL 3B", OllamaName: "qwen2.5-vl:3b", LMStudioName: "qwen/qwen2.5-vl-3b-instruct", VRAMGB: 4, Description: "Fast and lightweight. Good for quick iterations."},
	{ID: "llava-1.6-34b", Name: "LLaVA 1.6 34B", OllamaName: "llava:34b", LMStudioName: "liuhaotian/llava-v1.6-34b", VRAMGB: 24, Description: "Highest quality, requires significant VRAM."},
	{ID: "llava-1.6-13b", Name: "LLaVA 1.6 13B", OllamaName: "llava:13b", LMStudioName: "liuhaotian/llava-v1.6-13b", VRAMGB: 12, Description: "Good balance of quality and speed."},
	{ID: "llava-1.6-7b", Name: "LLaVA 1.6 7B", OllamaName: "llava:7b", LMStudioName: "liuhaotian/llava-v1.6-7b", VRAMGB: 6, Description: "Efficient option for lower VRAM systems."},
}

// CuratedModels returns a copy of the curated model list.
func CuratedModels() []CuratedModel {
	out := make([]CuratedModel, len(curatedModels))
	copy(out, curatedModels)
	return out
}

// ModelInfo is a curated model as seen through one backend.
type ModelInfo struct {
	ID               string  `json:"model_id"`
	Name             string  `json:"name"`
	Backend          string  `json:"backend"`
	BackendModelName string  `json:"backend_model_name"`
	Available        bool    `json:"is_available"`
	VRAMGB           float64 `json:"vram_gb"`
	Description      string  `json:"description"`
}

// ModelListCache stores installed-model lists per backend.
type ModelListCache interface {
	SetModelList(ctx context.Context, backend string, names []string, ttl time.Duration) error
	GetModelList(ctx context.Context, backend string) ([]string, bool, error)
	InvalidateModelList(ctx context.Context, backend string) error
}

// DefaultAvailabilityTTL is how long an installed-model list is reused.
const DefaultAvailabilityTTL = 60 * time.Second

// Catalog reports curated models and whether the backend has them installed.
type Catalog struct {
	registry *Registry
	cache    ModelListCache
	ttl      time.Duration
}

// NewCatalog creates a Catalog. cache may be nil.
func NewCatalog(registry *Registry, cache ModelListCache, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = DefaultAvailabilityTTL
	}
	return &Catalog{registry: registry, cache: cache, ttl: ttl}
}

// List returns every curated model for backend (the default when empty). A backend that
// cannot be reached reports every model as unavailable rather than failing.
func (c *Catalog) List(ctx context.Context, backend string) ([]ModelInfo, error) {
	b, err := c.registry.Resolve(backend)
	if err != nil {
		return nil, err
	}
	name := b.Name()

	installed := c.installed(ctx, name)
	out := make([]ModelInfo, 0, len(curatedModels))
	for _, m := range curatedModels {
		backendName := m.BackendName(name)
		out = append(out, ModelInfo{
			ID:               m.ID,
			Name:             m.Name,
			Backend:          name,
			BackendModelName: backendName,
			Available:        modelInstalled(name, backendName, installed),
			VRAMGB:           m.VRAMGB,
			Description:      m.Description,
		})
	}
	return out, nil
}

// Invalidate drops the cached installed-model list for backend so the next List asks
// the backend again.
func (c *Catalog) Invalidate(ctx context.Context, backend string) error {
	b, err := c.registry.Resolve(backend)
	if err != nil {
		return err
	}
	if c.cache == nil {
		return nil
	}
	if err := c.cache.InvalidateModelList(ctx, b.Name()); err != nil {
		return fmt.Errorf("invalidating model list: %w", err)
	}
	return nil
}

func (c *Catalog) installed(ctx context.Context, backend string) []string {
	if c.cache != nil {
		names, found, err := c.cache.GetModelList(ctx, backend)
		if err != nil {
			slog.Warn("model list cache read failed", "backend", backend, "error", err)
		} else if found {
			return names
		}
	}

	b, err := c.registry.Resolve(backend)
	if err != nil {
		return nil
	}
	names, err := b.ListModels(ctx)
	if err != nil {
		slog.Debug("could not check model availability", "backend", backend, "error", err)
		return nil
	}

	if c.cache != nil {
		if err := c.cache.SetModelList(ctx, backend, names, c.ttl); err != nil {
			slog.Warn("model list cache write failed", "backend", backend, "error", err)
		}
	}
	return names
}

// modelInstalled matches Ollama tags exactly; LM Studio identifiers may carry a
// publisher or quantization decoration, so a substring match is used there.
func modelInstalled(backend, want string, installed []string) bool {
	for _, name := range installed {
		if backend == "lmstudio" {
			if strings.Contains(name, want) {
				return true
			}
			continue
		}
		if name == want {
			return true
		}
	}
	return false
}
