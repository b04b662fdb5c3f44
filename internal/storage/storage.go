// Package storage provides the scratch space a job works in and the object
// store finished videos are published to.
package storage

import (
	"context"
	"io"
)

// Scratch is a working directory that is wiped between jobs.
type Scratch interface {
	// Dir returns the root of the scratch space.
	Dir() string

	// Path joins parts under the scratch root.
	Path(parts ...string) string

	// Reset removes everything under the root and recreates the layout.
	Reset(ctx context.Context) error
}

// Uploader writes objects to persistent storage.
type Uploader interface {
	// Put stores body under key with the given content type and user metadata.
	Put(ctx context.Context, key string, body io.Reader, contentType string, metadata map[string]string) error
}
