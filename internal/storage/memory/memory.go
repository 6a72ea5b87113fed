// Package memory keeps pod objects in a map. It backs the sandbox pod by
// default and the server tests.
package memory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/podfs/podfs-go/internal/storage/types"
)

// Backend is an in-memory types.Backend
type Backend struct {
	mu      sync.RWMutex
	objects map[string]*types.Object
}

var _ types.Backend = (*Backend)(nil)

// New creates an empty in-memory backend
func New() *Backend {
	return &Backend{objects: make(map[string]*types.Object)}
}

// Read returns a copy of the object at path
func (b *Backend) Read(ctx context.Context, path string) (*types.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, ok := b.objects[path]
	if !ok {
		return nil, fmt.Errorf("object %s not found: %w", path, os.ErrNotExist)
	}
	cp := *obj
	cp.Data = append([]byte(nil), obj.Data...)
	return &cp, nil
}

// Write stores a copy of data at path
func (b *Backend) Write(ctx context.Context, path string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[path] = &types.Object{
		Path:        path,
		Data:        append([]byte(nil), data...),
		ContentType: contentType,
		Mtime:       time.Now().UTC(),
	}
	return nil
}

// Delete removes the object at path
func (b *Backend) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.objects[path]; !ok {
		return fmt.Errorf("object %s not found: %w", path, os.ErrNotExist)
	}
	delete(b.objects, path)
	return nil
}

// List returns the sorted paths starting with prefix
func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	paths := make([]string, 0)
	for path := range b.objects {
		if strings.HasPrefix(path, prefix) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Exists checks if an object is stored at path
func (b *Backend) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.objects[path]
	return ok, nil
}

// Close is a no-op
func (b *Backend) Close() error {
	return nil
}
