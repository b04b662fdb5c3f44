package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/reelforge/internal/caption"
	"github.com/maauso/reelforge/internal/download"
	"github.com/maauso/reelforge/internal/media"
	"github.com/maauso/reelforge/internal/narration"
	"github.com/maauso/reelforge/internal/publish"
	"github.com/maauso/reelforge/internal/storage"
)

// Scratch file names.
const (
	clipFile      = "clip_%d.mp4"
	trimmedFile   = "trimmed_%d.mp4"
	mergedFile    = "merged.mp4"
	voiceFile     = "voice.m4a"
	withAudioFile = "merged_with_audio.mp4"
	finalFile     = "final.mp4"
)

// download fetches every clip in order. The first clip that cannot be
// fetched fails the job with the downloader's result as the error.
func (o *Orchestrator) download(ctx context.Context, run *Run, log *slog.Logger) error {
	urls := run.Descriptor.URLs()
	for i, url := range urls {
		dest := o.deps.Scratch.Path(storage.VideosDir, fmt.Sprintf(clipFile, i))

		switch r := o.deps.Fetcher.Fetch(ctx, url, dest).(type) {
		case *download.Ok:
			run.Downloaded = append(run.Downloaded, r.Asset)
		case *download.Gone:
			return r
		case *download.Transient:
			return r
		default:
			return fmt.Errorf("unexpected download result %T", r)
		}
	}

	log.Info("clips downloaded", slog.Int("count", len(run.Downloaded)))
	return nil
}

func (o *Orchestrator) trim(ctx context.Context, run *Run, _ *slog.Logger) error {
	for i, clip := range run.Downloaded {
		dst := o.deps.Scratch.Path(storage.VideosDir, fmt.Sprintf(trimmedFile, i))
		trimmed, err := o.deps.Media.TrimEdges(ctx, clip, dst)
		if err != nil {
			return err
		}
		run.Trimmed = append(run.Trimmed, trimmed)
	}
	return nil
}

func (o *Orchestrator) merge(ctx context.Context, run *Run, _ *slog.Logger) error {
	merged, err := o.deps.Media.Concat(ctx, run.Trimmed, o.deps.Scratch.Path(storage.OutputDir, mergedFile))
	if err != nil {
		return err
	}
	run.Merged = merged
	return nil
}

// script budgets the narration from the merged duration, writes it, and
// picks the caption copy. Caption copy failures are not fatal.
func (o *Orchestrator) script(ctx context.Context, run *Run, log *slog.Logger) error {
	target, err := narration.TargetLength(run.Merged.Duration, o.charsPerSecond)
	if err != nil {
		return err
	}
	run.TargetLength = target
	log.Info("script budget",
		slog.Float64("duration", run.Merged.Duration),
		slog.Int("target_length", target),
	)

	product := narration.Product{
		Name:       run.productName(),
		VideoCount: len(run.Descriptor.Videos),
		Duration:   run.Merged.Duration,
	}

	script, err := o.deps.Narrator.GenerateScript(ctx, product, target)
	if err != nil {
		return err
	}
	run.Script = script

	run.OverlayText = run.Descriptor.OverlayText
	if run.OverlayText == "" {
		overlay, err := o.deps.Narrator.GenerateOverlay(ctx, product, script)
		if err != nil {
			log.Warn("caption copy unavailable, using product name", slog.String("error", err.Error()))
		}
		run.OverlayText = overlay
	}
	return nil
}

func (o *Orchestrator) voice(ctx context.Context, run *Run, _ *slog.Logger) error {
	voice, err := o.deps.Narrator.SynthesizeVoice(ctx, run.Script, o.deps.Scratch.Path(storage.AudioDir, voiceFile))
	if err != nil {
		return err
	}
	run.Voice = voice
	return nil
}

func (o *Orchestrator) mux(ctx context.Context, run *Run, _ *slog.Logger) error {
	muxed, err := o.deps.Media.ReplaceAudio(ctx, run.Merged, run.Voice, o.deps.Scratch.Path(storage.OutputDir, withAudioFile))
	if err != nil {
		return err
	}
	run.Muxed = muxed
	return nil
}

func (o *Orchestrator) caption(ctx context.Context, run *Run, _ *slog.Logger) error {
	// The caption falls back to the raw product name, not the "Unknown" default.
	final, err := o.deps.Captioner.Compose(ctx, run.Muxed, run.OverlayText, run.Descriptor.Product.Name, o.deps.Scratch.Path(storage.OutputDir, finalFile))
	if err != nil {
		return err
	}
	run.Final = final
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, run *Run, _ *slog.Logger) error {
	// A missing name slugs to "product", not the "Unknown" default.
	url, err := o.deps.Publisher.Publish(ctx, run.Final, run.JobID, run.Descriptor.Product.Name)
	if err != nil {
		return err
	}
	run.PublishedURL = url
	return nil
}

// Verify the production collaborators at compile time.
var (
	_ Fetcher     = (*download.Downloader)(nil)
	_ MediaRunner = (*media.Runner)(nil)
	_ Narrator    = (*narration.Pipeline)(nil)
	_ Captioner   = (*caption.Composer)(nil)
	_ Publisher   = (*publish.Publisher)(nil)
)
