// Package audio provides interfaces and implementations for audio processing.
package audio

import "context"

// NormalizeOpts configures the output format of normalized audio.
type NormalizeOpts struct {
	// SampleRate is the output sample rate in Hz.
	// Default: 48000.
	SampleRate int

	// Channels is the number of output channels.
	// Default: 2.
	Channels int

	// Bitrate is the AAC output bitrate.
	// Default: "192k".
	Bitrate string
}

// DefaultNormalizeOpts returns the default options for voice normalization.
// They match the audio profile the muxer expects so the voice track can be
// stream-copied into the final video.
func DefaultNormalizeOpts() NormalizeOpts {
	return NormalizeOpts{
		SampleRate: 48000,
		Channels:   2,
		Bitrate:    "192k",
	}
}

// Normalizer re-encodes synthesized speech into a muxable audio track.
type Normalizer interface {
	// Normalize converts src to AAC in dst and returns the source duration in
	// seconds (0 when ffmpeg did not report one).
	Normalize(ctx context.Context, src, dst string) (float64, error)
}
