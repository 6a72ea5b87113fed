// Package types holds the storage contract shared by the backends and their
// factory.
package types

import (
	"context"
	"time"
)

// Object is a stored pod entry: a resource body or a container marker.
type Object struct {
	Path        string
	Data        []byte
	ContentType string
	Mtime       time.Time
}

// Backend persists pod entries by path. Container markers are stored under
// paths ending in "/". Missing paths are reported by wrapping os.ErrNotExist.
type Backend interface {
	// Read returns the object stored at path
	Read(ctx context.Context, path string) (*Object, error)

	// Write creates or replaces the object at path
	Write(ctx context.Context, path string, data []byte, contentType string) error

	// Delete removes the object at path
	Delete(ctx context.Context, path string) error

	// List returns every stored path starting with prefix, sorted
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists checks if an object is stored at path
	Exists(ctx context.Context, path string) (bool, error)

	// Close releases connections held by the backend
	Close() error
}
