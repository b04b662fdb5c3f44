package job

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned when a write targets a job that does not exist.
var ErrJobNotFound = errors.New("job not found")

// Store defines the interface for job persistence.
// It acts as a port in the hexagonal architecture pattern.
// Every write touches a single row and is committed immediately.
type Store interface {
	// FetchPending returns the jobs with crawled=true and merged=false,
	// ordered by ID ascending.
	FetchPending(ctx context.Context) ([]*Job, error)

	// MarkPublished sets merged=true, stores the public URL and stamps the
	// processed time. Returns ErrJobNotFound if the job does not exist.
	MarkPublished(ctx context.Context, id int64, url string) error

	// MarkStale sets crawled=false so the job is re-crawled upstream.
	// Merged is left untouched. Returns ErrJobNotFound if the job does not exist.
	MarkStale(ctx context.Context, id int64) error
}
