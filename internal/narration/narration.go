// Package narration turns a merged product video into a voice-over: it
// budgets the script length from the video duration, asks a text generator
// for the script and a caption hook, and synthesizes the voice track.
package narration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/maauso/reelforge/internal/audio"
	"github.com/maauso/reelforge/internal/media"
)

// Static errors for narration.
var (
	// ErrEmptyScript is returned when the generator produced no usable text.
	ErrEmptyScript = errors.New("generated script is empty")
	// ErrEmptyAudio is returned when the synthesizer produced no audio.
	ErrEmptyAudio = errors.New("synthesized audio is empty")
	// ErrInvalidBudget is returned when the target length is not positive.
	ErrInvalidBudget = errors.New("target length must be positive")
)

// TextGenerator produces text from a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// VoiceSynthesizer converts text to encoded audio.
type VoiceSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Product is what the prompts know about the product being narrated.
type Product struct {
	Name       string
	VideoCount int
	Duration   float64
}

// Pipeline generates scripts, caption hooks and voice tracks.
type Pipeline struct {
	text       TextGenerator
	voice      VoiceSynthesizer
	normalizer audio.Normalizer
	logger     *slog.Logger
}

// NewPipeline creates a narration pipeline. A nil logger uses slog.Default().
func NewPipeline(text TextGenerator, voice VoiceSynthesizer, normalizer audio.Normalizer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		text:       text,
		voice:      voice,
		normalizer: normalizer,
		logger:     logger,
	}
}

// GenerateScript asks for a narration of about targetLength characters.
// The length is a soft constraint passed in the prompt, not enforced here.
func (p *Pipeline) GenerateScript(ctx context.Context, product Product, targetLength int) (string, error) {
	if targetLength <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidBudget, targetLength)
	}

	out, err := p.text.Generate(ctx, scriptPrompt(product, targetLength))
	if err != nil {
		return "", fmt.Errorf("generate script: %w", err)
	}

	script := cleanText(out)
	if script == "" {
		return "", ErrEmptyScript
	}

	p.logger.Info("script generated",
		slog.Int("target_length", targetLength),
		slog.Int("length", len([]rune(script))),
	)
	return script, nil
}

// GenerateOverlay asks for a short caption hook. Callers fall back to the
// product name when it fails.
func (p *Pipeline) GenerateOverlay(ctx context.Context, product Product, script string) (string, error) {
	out, err := p.text.Generate(ctx, overlayPrompt(product, script))
	if err != nil {
		return "", fmt.Errorf("generate overlay: %w", err)
	}

	// Only the first line is used as a caption.
	line, _, _ := strings.Cut(cleanText(out), "\n")
	line = cleanText(line)
	if line == "" {
		return "", ErrEmptyScript
	}
	return line, nil
}

// SynthesizeVoice converts text to speech and normalizes it into dst.
// The raw provider audio is kept next to dst with a .raw suffix.
func (p *Pipeline) SynthesizeVoice(ctx context.Context, text, dst string) (media.Asset, error) {
	data, err := p.voice.Synthesize(ctx, text)
	if err != nil {
		return media.Asset{}, fmt.Errorf("synthesize voice: %w", err)
	}
	if len(data) == 0 {
		return media.Asset{}, ErrEmptyAudio
	}

	rawPath := strings.TrimSuffix(dst, filepath.Ext(dst)) + ".raw"
	if err := os.MkdirAll(filepath.Dir(rawPath), 0755); err != nil {
		return media.Asset{}, fmt.Errorf("create audio directory: %w", err)
	}
	if err := os.WriteFile(rawPath, data, 0600); err != nil {
		return media.Asset{}, fmt.Errorf("write raw audio: %w", err)
	}

	duration, err := p.normalizer.Normalize(ctx, rawPath, dst)
	if err != nil {
		return media.Asset{}, fmt.Errorf("normalize voice: %w", err)
	}

	p.logger.Info("voice synthesized",
		slog.Int("bytes", len(data)),
		slog.Float64("duration", duration),
	)
	return media.Asset{Path: dst, Duration: duration}, nil
}
