package vision

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kiranshivaraju/captionforge/internal/config"
	"github.com/kiranshivaraju/captionforge/internal/vision/lmstudio"
	"github.com/kiranshivaraju/captionforge/internal/vision/ollama"
	"github.com/kiranshivaraju/captionforge/internal/vision/transport"
	"github.com/kiranshivaraju/captionforge/pkg/models"
)

// Registry resolves a backend identifier to its adapter.
type Registry struct {
	backends    map[string]models.VisionBackend
	defaultName string
}

// NewRegistry builds every supported backend from config. Called once at server startup.
func NewRegistry(cfg config.VisionConfig) (*Registry, error) {
	client := transport.NewClient(nil)
	return NewRegistryFrom(cfg.Backend,
		ollama.NewBackend(cfg.Ollama, cfg.MaxTokens, client),
		lmstudio.NewBackend(cfg.LMStudio, cfg.MaxTokens, client),
	)
}

// NewRegistryFrom builds a registry from explicit backends, keyed by Name().
func NewRegistryFrom(defaultName string, backends ...models.VisionBackend) (*Registry, error) {
	r := &Registry{
		backends:    make(map[string]models.VisionBackend, len(backends)),
		defaultName: defaultName,
	}
	for _, b := range backends {
		r.backends[b.Name()] = b
	}
	if _, ok := r.backends[defaultName]; !ok {
		return nil, fmt.Errorf("%w %q: must be one of %s", ErrUnknownBackend, defaultName, strings.Join(r.Names(), ", "))
	}
	return r, nil
}

// Resolve returns the backend named name, or the default backend when name is empty.
func (r *Registry) Resolve(name string) (models.VisionBackend, error) {
	if name == "" {
		name = r.defaultName
	}
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w %q: must be one of %s", ErrUnknownBackend, name, strings.Join(r.Names(), ", "))
	}
	return b, nil
}

// Default returns the configured default backend identifier.
func (r *Registry) Default() string { return r.defaultName }

// Names lists the registered backend identifiers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
