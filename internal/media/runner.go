package media

import (
	"context"
	"fmt"
	"log/slog"
	"math"
)

// Default edge trim applied to each downloaded clip, in seconds.
const (
	DefaultTrimLead = 2.0
	DefaultTrimTail = 2.0
)

// Runner applies the video stage policies of the pipeline on top of an Engine.
type Runner struct {
	engine   Engine
	logger   *slog.Logger
	trimLead float64
	trimTail float64
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithTrim sets the seconds removed from the start and end of each clip.
func WithTrim(lead, tail float64) RunnerOption {
	return func(r *Runner) {
		r.trimLead = lead
		r.trimTail = tail
	}
}

// WithLogger sets the logger used for stage diagnostics.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a Runner over the given engine.
func NewRunner(engine Engine, opts ...RunnerOption) *Runner {
	r := &Runner{
		engine:   engine,
		logger:   slog.Default(),
		trimLead: DefaultTrimLead,
		trimTail: DefaultTrimTail,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Probe returns an Asset for path with its duration filled in.
func (r *Runner) Probe(ctx context.Context, path string) (Asset, error) {
	d, err := r.engine.ProbeDuration(ctx, path)
	if err != nil {
		return Asset{}, fmt.Errorf("probe duration: %w", err)
	}
	return Asset{Path: path, Duration: d}, nil
}

// TrimEdges removes the lead and tail seconds from a clip. Clips too short
// to keep anything after trimming are returned unchanged.
func (r *Runner) TrimEdges(ctx context.Context, clip Asset, dst string) (Asset, error) {
	keep := clip.Duration - r.trimLead - r.trimTail
	if keep <= 0 {
		r.logger.Warn("clip too short to trim, using original",
			slog.String("path", clip.Path),
			slog.Float64("duration", clip.Duration),
		)
		return clip, nil
	}

	if err := r.engine.Trim(ctx, clip.Path, dst, r.trimLead, keep); err != nil {
		return Asset{}, fmt.Errorf("trim %s: %w", clip.Path, err)
	}

	return Asset{Path: dst, Duration: keep, Width: clip.Width, Height: clip.Height}, nil
}

// Concat joins clips in order and probes the duration of the merged result.
func (r *Runner) Concat(ctx context.Context, clips []Asset, dst string) (Asset, error) {
	if len(clips) == 0 {
		return Asset{}, ErrNoVideoPaths
	}

	paths := make([]string, len(clips))
	for i, c := range clips {
		paths[i] = c.Path
	}

	if err := r.engine.Concat(ctx, paths, dst); err != nil {
		return Asset{}, fmt.Errorf("concat %d clips: %w", len(clips), err)
	}

	merged, err := r.Probe(ctx, dst)
	if err != nil {
		return Asset{}, err
	}
	r.logger.Info("clips merged",
		slog.Int("clips", len(clips)),
		slog.Float64("duration", merged.Duration),
	)
	return merged, nil
}

// ReplaceAudio swaps the audio track of video for audio. The result lasts as
// long as the shorter of the two.
func (r *Runner) ReplaceAudio(ctx context.Context, video, audio Asset, dst string) (Asset, error) {
	if err := r.engine.ReplaceAudio(ctx, video.Path, audio.Path, dst); err != nil {
		return Asset{}, fmt.Errorf("replace audio: %w", err)
	}

	duration := video.Duration
	if audio.Duration > 0 {
		duration = math.Min(video.Duration, audio.Duration)
	}
	return Asset{Path: dst, Duration: duration, Width: video.Width, Height: video.Height}, nil
}

// Caption burns text into video with the given font size.
func (r *Runner) Caption(ctx context.Context, video Asset, text string, fontSize int, fontFile string, dst string) (Asset, error) {
	w, h, err := r.engine.ProbeDimensions(ctx, video.Path)
	if err != nil {
		// Dimensions are informational only.
		r.logger.Warn("could not probe video dimensions", slog.String("error", err.Error()))
	} else {
		video.Width, video.Height = w, h
	}

	r.logger.Debug("drawing caption",
		slog.Int("width", video.Width),
		slog.Int("height", video.Height),
		slog.Int("font_size", fontSize),
	)

	overlay := TextOverlay{
		Text:       text,
		FontSize:   fontSize,
		FontFile:   fontFile,
		Y:          DefaultTextY,
		BoxOpacity: DefaultBoxOpacity,
		BoxBorder:  DefaultBoxBorder,
	}
	if err := r.engine.DrawText(ctx, video.Path, dst, overlay); err != nil {
		return Asset{}, fmt.Errorf("draw caption: %w", err)
	}

	return Asset{Path: dst, Duration: video.Duration, Width: video.Width, Height: video.Height}, nil
}
