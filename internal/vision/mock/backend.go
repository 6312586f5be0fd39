package mock

import (
	"context"
	"sync"

	"github.com/kiranshivaraju/captionforge/internal/vision"
	"github.com/kiranshivaraju/captionforge/pkg/models"
)

// MockBackend satisfies models.VisionBackend for testing.
type MockBackend struct {
	Name_          string
	GenerateFunc   func(ctx context.Context, req models.GenerateRequest) (string, error)
	ListModelsFunc func(ctx context.Context) ([]string, error)

	mu       sync.Mutex
	requests []models.GenerateRequest
}

func (m *MockBackend) Name() string { return m.Name_ }

func (m *MockBackend) Generate(ctx context.Context, req models.GenerateRequest) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return "", nil
}

func (m *MockBackend) ListModels(ctx context.Context) ([]string, error) {
	if m.ListModelsFunc != nil {
		return m.ListModelsFunc(ctx)
	}
	return nil, nil
}

// Requests returns every request Generate has received, in call order.
func (m *MockBackend) Requests() []models.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.GenerateRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns how many times Generate has been called.
func (m *MockBackend) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// NewMockBackend returns a MockBackend named name that answers every call with a
// well-formed structured reply.
func NewMockBackend(name string) *MockBackend {
	return &MockBackend{
		Name_: name,
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) (string, error) {
			return `{"caption":"a mock caption","quality":{"overall":0.8,"sharpness":0.9},"flags":[]}`, nil
		},
		ListModelsFunc: func(_ context.Context) ([]string, error) {
			return []string{"qwen2.5-vl:7b"}, nil
		},
	}
}

// NewFailingBackend returns a MockBackend whose every call fails with err.
func NewFailingBackend(name string, err error) *MockBackend {
	return &MockBackend{
		Name_: name,
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) (string, error) {
			return "", err
		},
		ListModelsFunc: func(_ context.Context) ([]string, error) {
			return nil, err
		},
	}
}

// NewTimeoutBackend returns a MockBackend that blocks until the context is done.
func NewTimeoutBackend(name string) *MockBackend {
	return &MockBackend{
		Name_: name,
		GenerateFunc: func(ctx context.Context, _ models.GenerateRequest) (string, error) {
			<-ctx.Done()
			return "", vision.ErrInferenceTimeout
		},
	}
}

var _ models.VisionBackend = (*MockBackend)(nil)
