package pipeline

import (
	"fmt"

	"github.com/maauso/reelforge/internal/job"
	"github.com/maauso/reelforge/internal/media"
)

// Run carries the state of one job through the stages of a sweep.
// It is created per job and discarded once the job reaches a terminal stage.
type Run struct {
	JobID      int64
	Descriptor *job.Descriptor
	Stage      job.Stage

	Downloaded   []media.Asset
	Trimmed      []media.Asset
	Merged       media.Asset
	TargetLength int
	Script       string
	OverlayText  string
	Voice        media.Asset
	Muxed        media.Asset
	Final        media.Asset
	PublishedURL string
}

func newRun(jobID int64, d *job.Descriptor) *Run {
	return &Run{
		JobID:      jobID,
		Descriptor: d,
		Stage:      job.StagePending,
	}
}

// advance moves the run to the next stage if the transition is allowed.
func (r *Run) advance(to job.Stage) error {
	if !job.CanTransition(r.Stage, to) {
		return fmt.Errorf("%w: %s -> %s", job.ErrInvalidTransition, r.Stage, to)
	}
	r.Stage = to
	return nil
}

// productName returns the display name used in prompts and logs.
func (r *Run) productName() string {
	return r.Descriptor.ProductName()
}
