// Package pipeline runs sweeps over pending product jobs: each job is
// downloaded, trimmed, merged, narrated, captioned and published, and its
// outcome is written back to the job store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/reelforge/internal/download"
	"github.com/maauso/reelforge/internal/job"
	"github.com/maauso/reelforge/internal/media"
	"github.com/maauso/reelforge/internal/narration"
	"github.com/maauso/reelforge/internal/storage"
)

// Fetcher downloads one source clip.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) download.Result
}

// MediaRunner applies the video stages.
type MediaRunner interface {
	TrimEdges(ctx context.Context, clip media.Asset, dst string) (media.Asset, error)
	Concat(ctx context.Context, clips []media.Asset, dst string) (media.Asset, error)
	ReplaceAudio(ctx context.Context, video, audio media.Asset, dst string) (media.Asset, error)
}

// Narrator writes the script and caption copy and voices the script.
type Narrator interface {
	GenerateScript(ctx context.Context, product narration.Product, targetLength int) (string, error)
	GenerateOverlay(ctx context.Context, product narration.Product, script string) (string, error)
	SynthesizeVoice(ctx context.Context, text, dst string) (media.Asset, error)
}

// Captioner burns the caption into the video.
type Captioner interface {
	Compose(ctx context.Context, video media.Asset, overlay, productName, dst string) (media.Asset, error)
}

// Publisher uploads the final video and returns its public URL.
type Publisher interface {
	Publish(ctx context.Context, asset media.Asset, jobID int64, productName string) (string, error)
}

// Deps groups the collaborators of an Orchestrator.
type Deps struct {
	Store     job.Store
	Scratch   storage.Scratch
	Fetcher   Fetcher
	Media     MediaRunner
	Narrator  Narrator
	Captioner Captioner
	Publisher Publisher
}

func (d Deps) validate() error {
	switch {
	case d.Store == nil:
		return fmt.Errorf("%w: store", ErrMissingDependency)
	case d.Scratch == nil:
		return fmt.Errorf("%w: scratch", ErrMissingDependency)
	case d.Fetcher == nil:
		return fmt.Errorf("%w: fetcher", ErrMissingDependency)
	case d.Media == nil:
		return fmt.Errorf("%w: media", ErrMissingDependency)
	case d.Narrator == nil:
		return fmt.Errorf("%w: narrator", ErrMissingDependency)
	case d.Captioner == nil:
		return fmt.Errorf("%w: captioner", ErrMissingDependency)
	case d.Publisher == nil:
		return fmt.Errorf("%w: publisher", ErrMissingDependency)
	}
	return nil
}

// Orchestrator sweeps pending jobs one at a time.
type Orchestrator struct {
	deps           Deps
	logger         *slog.Logger
	charsPerSecond float64
	now            func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCharsPerSecond sets the speech rate used to budget the script.
func WithCharsPerSecond(cps float64) Option {
	return func(o *Orchestrator) {
		if cps > 0 {
			o.charsPerSecond = cps
		}
	}
}

// WithClock overrides the time source used for summaries.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates an Orchestrator. Every dependency is required.
func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		deps:           deps,
		logger:         slog.Default(),
		charsPerSecond: narration.DefaultCharsPerSecond,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Sweep processes every pending job in ID order and returns a summary.
// Job failures are recorded, never returned. A failure to list pending jobs
// aborts the sweep; a cancelled context stops it between jobs and the
// partial summary is returned with the context error.
func (o *Orchestrator) Sweep(ctx context.Context) (*Summary, error) {
	summary := newSummary(o.now())
	logger := o.logger.With(slog.String("run_id", summary.RunID.String()))

	jobs, err := o.deps.Store.FetchPending(ctx)
	if err != nil {
		summary.FinishedAt = o.now()
		logger.Error("failed to fetch pending jobs", slog.String("error", err.Error()))
		return summary, fmt.Errorf("fetch pending jobs: %w", err)
	}
	summary.Total = len(jobs)

	if len(jobs) == 0 {
		logger.Info("no pending jobs")
		summary.FinishedAt = o.now()
		return summary, nil
	}
	logger.Info("sweep started", slog.Int("pending", len(jobs)))

	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			summary.FinishedAt = o.now()
			logger.Warn("sweep interrupted",
				slog.Int("processed", summary.Processed()),
				slog.Int("pending", len(jobs)),
			)
			return summary, err
		}
		summary.record(o.processJob(ctx, j, logger))
	}

	summary.FinishedAt = o.now()
	logger.Info("sweep finished",
		slog.Int("total", summary.Total),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
		slog.Int("stale", summary.Stale),
		slog.Int("skipped", summary.Skipped),
		slog.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary, nil
}

// processJob runs one job to a terminal outcome. It never returns an error.
func (o *Orchestrator) processJob(ctx context.Context, j *job.Job, logger *slog.Logger) JobResult {
	log := logger.With(slog.Int64("job_id", j.ID))

	d, err := job.ParseDescriptor(j.Payload)
	if err != nil {
		verr := &ValidationError{JobID: j.ID, Err: err}
		log.Warn("skipping job", slog.String("error", verr.Error()))
		return JobResult{JobID: j.ID, Outcome: OutcomeSkipped, Stage: job.StagePending, Error: verr.Error()}
	}

	run := newRun(j.ID, d)
	log.Info("processing job",
		slog.String("product", run.productName()),
		slog.Int("videos", len(d.Videos)),
	)

	if err := o.deps.Scratch.Reset(ctx); err != nil {
		return o.fail(run, &StageError{Stage: job.StagePending, Err: fmt.Errorf("reset scratch: %w", err)}, log)
	}

	if err := o.execute(ctx, run, log); err != nil {
		var gone *download.Gone
		if errors.As(err, &gone) {
			return o.markStale(ctx, run, err, log)
		}
		return o.fail(run, err, log)
	}

	if err := o.deps.Store.MarkPublished(ctx, j.ID, run.PublishedURL); err != nil {
		return o.fail(run, &StageError{Stage: job.StagePublishing, Err: fmt.Errorf("mark published: %w", err)}, log)
	}
	if err := run.advance(job.StageSucceeded); err != nil {
		return o.fail(run, err, log)
	}

	log.Info("job succeeded", slog.String("url", run.PublishedURL))
	return JobResult{JobID: j.ID, Outcome: OutcomeSucceeded, Stage: run.Stage, URL: run.PublishedURL}
}

// fail records a failed job. The store is not written so the job is retried
// by the next sweep.
func (o *Orchestrator) fail(run *Run, err error, log *slog.Logger) JobResult {
	failedAt := run.Stage
	if !run.Stage.IsTerminal() {
		_ = run.advance(job.StageFailed)
	}
	log.Error("job failed",
		slog.String("stage", string(failedAt)),
		slog.String("error", err.Error()),
	)
	return JobResult{JobID: run.JobID, Outcome: OutcomeFailed, Stage: failedAt, Error: err.Error()}
}

// markStale sends a job whose sources are gone back for re-crawl.
func (o *Orchestrator) markStale(ctx context.Context, run *Run, cause error, log *slog.Logger) JobResult {
	if err := run.advance(job.StageStale); err != nil {
		return o.fail(run, err, log)
	}

	log.Warn("source videos gone, marking job for re-crawl", slog.String("error", cause.Error()))
	if err := o.deps.Store.MarkStale(ctx, run.JobID); err != nil {
		log.Error("failed to mark job stale", slog.String("error", err.Error()))
		return JobResult{
			JobID:   run.JobID,
			Outcome: OutcomeFailed,
			Stage:   job.StageDownloading,
			Error:   errors.Join(cause, fmt.Errorf("mark stale: %w", err)).Error(),
		}
	}
	return JobResult{JobID: run.JobID, Outcome: OutcomeStale, Stage: job.StageDownloading, Error: cause.Error()}
}

type stageFunc func(ctx context.Context, run *Run, log *slog.Logger) error

// execute runs the stages in order, stopping at the first failure.
func (o *Orchestrator) execute(ctx context.Context, run *Run, log *slog.Logger) error {
	stages := []struct {
		stage job.Stage
		fn    stageFunc
	}{
		{job.StageDownloading, o.download},
		{job.StageTrimming, o.trim},
		{job.StageMerging, o.merge},
		{job.StageScriptGen, o.script},
		{job.StageVoiceGen, o.voice},
		{job.StageMuxing, o.mux},
		{job.StageCaptioning, o.caption},
		{job.StagePublishing, o.publish},
	}

	for _, s := range stages {
		if err := run.advance(s.stage); err != nil {
			return err
		}
		log.Debug("stage started", slog.String("stage", string(s.stage)))
		if err := s.fn(ctx, run, log); err != nil {
			return &StageError{Stage: s.stage, Err: err}
		}
	}
	return nil
}
