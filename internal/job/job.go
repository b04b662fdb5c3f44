// Package job provides the product Job record consumed by the merge pipeline,
// the Stage state machine a job moves through while it is processed, and the
// Store port (with Postgres and in-memory adapters) used to read pending jobs
// and write back their terminal state.
package job

import (
	"encoding/json"
	"errors"
	"slices"
	"time"
)

// Stage represents the position of a job inside one pipeline run.
type Stage string

const (
	// StagePending indicates the job was selected but no stage has started.
	StagePending Stage = "PENDING"
	// StageDownloading indicates the source videos are being fetched.
	StageDownloading Stage = "DOWNLOADING"
	// StageTrimming indicates lead and tail seconds are being cut from each clip.
	StageTrimming Stage = "TRIMMING"
	// StageMerging indicates the trimmed clips are being concatenated.
	StageMerging Stage = "MERGING"
	// StageScriptGen indicates the narration script is being generated.
	StageScriptGen Stage = "SCRIPT_GEN"
	// StageVoiceGen indicates the narration is being synthesized to audio.
	StageVoiceGen Stage = "VOICE_GEN"
	// StageMuxing indicates the narration is replacing the original audio track.
	StageMuxing Stage = "MUXING"
	// StageCaptioning indicates the caption is being burned into the video.
	StageCaptioning Stage = "CAPTIONING"
	// StagePublishing indicates the final video is being uploaded.
	StagePublishing Stage = "PUBLISHING"
	// StageSucceeded indicates the video was published and the job marked merged.
	StageSucceeded Stage = "SUCCEEDED"
	// StageFailed indicates a stage failed; the job stays pending for a later sweep.
	StageFailed Stage = "FAILED"
	// StageStale indicates the source videos are gone and must be re-crawled.
	StageStale Stage = "STALE"
)

// ErrInvalidTransition is returned when an invalid stage transition is attempted.
var ErrInvalidTransition = errors.New("invalid stage transition")

// validTransitions defines which stage transitions are allowed.
// Every working stage may fail; only downloading may go stale.
var validTransitions = map[Stage][]Stage{
	StagePending:     {StageDownloading, StageFailed},
	StageDownloading: {StageTrimming, StageFailed, StageStale},
	StageTrimming:    {StageMerging, StageFailed},
	StageMerging:     {StageScriptGen, StageFailed},
	StageScriptGen:   {StageVoiceGen, StageFailed},
	StageVoiceGen:    {StageMuxing, StageFailed},
	StageMuxing:      {StageCaptioning, StageFailed},
	StageCaptioning:  {StagePublishing, StageFailed},
	StagePublishing:  {StageSucceeded, StageFailed},
	StageSucceeded:   {},
	StageFailed:      {},
	StageStale:       {},
}

// CanTransition reports whether a job may move from one stage to another.
func CanTransition(from, to Stage) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(allowed, to)
}

// IsTerminal returns true if the stage ends a pipeline run.
func (s Stage) IsTerminal() bool {
	switch s {
	case StageSucceeded, StageFailed, StageStale:
		return true
	default:
		return false
	}
}

// Job is one queued product awaiting merged-video generation.
// It mirrors a row of the products table.
type Job struct {
	// ID is the product identifier (primary key).
	ID int64
	// Payload is the raw video descriptor column. It is nil when the column is NULL.
	Payload json.RawMessage
	// Crawled is true when the source videos were crawled and are believed valid.
	Crawled bool
	// Merged is true once a merged video has been published for this product.
	Merged bool
	// PublishedURL is the public URL of the merged video, set with Merged.
	PublishedURL string
	// ProcessedAt is when the job was marked merged.
	ProcessedAt time.Time
}

// Eligible reports whether the job should be picked up by a sweep.
func (j *Job) Eligible() bool {
	return j.Crawled && !j.Merged
}

// Clone creates a deep copy of the job.
func (j *Job) Clone() *Job {
	var payload json.RawMessage
	if j.Payload != nil {
		payload = slices.Clone(j.Payload)
	}
	return &Job{
		ID:           j.ID,
		Payload:      payload,
		Crawled:      j.Crawled,
		Merged:       j.Merged,
		PublishedURL: j.PublishedURL,
		ProcessedAt:  j.ProcessedAt,
	}
}
