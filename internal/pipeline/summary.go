package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/maauso/reelforge/internal/job"
)

// Outcome is how a job ended within a sweep.
type Outcome string

const (
	// OutcomeSucceeded means the video was published and the job marked merged.
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeFailed means a stage failed; the job stays pending.
	OutcomeFailed Outcome = "failed"
	// OutcomeStale means the sources are gone and the job was sent back for re-crawl.
	OutcomeStale Outcome = "stale"
	// OutcomeSkipped means the payload was invalid and the job was not touched.
	OutcomeSkipped Outcome = "skipped"
)

// JobResult records the outcome of one job.
type JobResult struct {
	JobID   int64     `json:"job_id"`
	Outcome Outcome   `json:"outcome"`
	Stage   job.Stage `json:"stage"`
	URL     string    `json:"url,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Summary is the result of one sweep. Stale jobs are also counted as failed.
type Summary struct {
	RunID      uuid.UUID   `json:"run_id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Total      int         `json:"total"`
	Succeeded  int         `json:"succeeded"`
	Failed     int         `json:"failed"`
	Skipped    int         `json:"skipped"`
	Stale      int         `json:"stale"`
	Results    []JobResult `json:"results"`
}

func newSummary(startedAt time.Time) *Summary {
	return &Summary{
		RunID:     uuid.New(),
		StartedAt: startedAt,
		Results:   []JobResult{},
	}
}

func (s *Summary) record(r JobResult) {
	s.Results = append(s.Results, r)
	switch r.Outcome {
	case OutcomeSucceeded:
		s.Succeeded++
	case OutcomeStale:
		s.Stale++
		s.Failed++
	case OutcomeFailed:
		s.Failed++
	case OutcomeSkipped:
		s.Skipped++
	}
}

// Processed returns the number of jobs that reached an outcome.
func (s *Summary) Processed() int {
	return len(s.Results)
}
