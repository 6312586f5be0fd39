// Package preprocess holds the per-job cache of images already normalized for a backend.
package preprocess

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"
)

// Encoder turns a source file into backend-ready image bytes.
type Encoder interface {
	Encode(path string) ([]byte, error)
}

// Cache memoizes encoded images by file ID for the lifetime of one job. Failed encodings
// fall back to the file's raw bytes, which are returned but never cached.
type Cache struct {
	encoder Encoder

	mu      sync.Mutex
	entries map[uuid.UUID][]byte
}

func NewCache(encoder Encoder) *Cache {
	return &Cache{encoder: encoder, entries: make(map[uuid.UUID][]byte)}
}

// Get returns the encoded bytes for fileID, encoding the file at path on a miss.
func (c *Cache) Get(ctx context.Context, fileID uuid.UUID, path string) ([]byte, error) {
	c.mu.Lock()
	data, ok := c.entries[fileID]
	c.mu.Unlock()
	if ok {
		return data, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := c.encoder.Encode(path)
	if err != nil {
		slog.Warn("image preprocessing failed, sending original bytes",
			"file_id", fileID, "path", path, "error", err)
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("reading image: %w", readErr)
		}
		return raw, nil
	}

	c.mu.Lock()
	c.entries[fileID] = data
	c.mu.Unlock()
	return data, nil
}

// Clear drops every cached entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[uuid.UUID][]byte)
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Uncached encodes path without touching any job cache, with the same raw-bytes fallback.
func Uncached(encoder Encoder, path string) ([]byte, error) {
	data, err := encoder.Encode(path)
	if err == nil {
		return data, nil
	}
	slog.Warn("image preprocessing failed, sending original bytes", "path", path, "error", err)
	raw, readErr := os.ReadFile(path)
	if readErr != nil {
		return nil, fmt.Errorf("reading image: %w", readErr)
	}
	return raw, nil
}
