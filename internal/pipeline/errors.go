package pipeline

import (
	"errors"
	"fmt"

	"github.com/maauso/reelforge/internal/job"
)

// ErrMissingDependency is returned by New when a collaborator is nil.
var ErrMissingDependency = errors.New("pipeline: missing dependency")

// ValidationError marks a job whose payload cannot be processed.
// Such jobs are skipped and left untouched in the store.
type ValidationError struct {
	JobID int64
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("job %d: %v", e.JobID, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// StageError wraps the failure of one pipeline stage.
type StageError struct {
	Stage job.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
