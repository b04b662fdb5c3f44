// Package media provides the video stages of the merge pipeline: duration and
// dimension probing, edge trimming, concatenation, audio replacement and
// caption overlay. The Engine interface is the transcoding capability; FFmpeg
// implements it with the ffmpeg and ffprobe CLIs and Runner applies the
// stage policies on top of it.
package media

import "context"

// Asset is a media file on local scratch storage plus derived metadata.
type Asset struct {
	// Path is the location of the file on scratch storage.
	Path string
	// Duration is the media duration in seconds (0 when unknown).
	Duration float64
	// Width is the video width in pixels (0 when unknown).
	Width int
	// Height is the video height in pixels (0 when unknown).
	Height int
}

// TextOverlay describes a caption burned into a video.
type TextOverlay struct {
	// Text is the caption text. The engine passes it through a file, unescaped.
	Text string
	// FontSize is the font size in pixels.
	FontSize int
	// FontFile is an optional font file; the ffmpeg default font is used when empty.
	FontFile string
	// Y is the vertical offset of the caption from the top of the frame.
	Y int
	// BoxOpacity is the opacity of the black box behind the text (0-1).
	BoxOpacity float64
	// BoxBorder is the padding of the box around the text in pixels.
	BoxBorder int
}

// Engine defines the transcoding operations used by the pipeline.
// Every call blocks until the underlying process exits; a non-zero exit is
// returned as an error and no partial output is salvaged.
type Engine interface {
	// ProbeDuration returns the container duration of a media file in seconds.
	// It fails when the file is not a decodable media container.
	ProbeDuration(ctx context.Context, path string) (float64, error)

	// ProbeDimensions returns the width and height of the first video stream.
	ProbeDimensions(ctx context.Context, path string) (width, height int, err error)

	// Trim writes the [start, start+duration) window of src to dst, re-encoded
	// to the common target profile.
	Trim(ctx context.Context, src, dst string, start, duration float64) error

	// Concat joins the inputs in order into dst, re-encoding to the common
	// target profile so the result is gap-free regardless of source variance.
	Concat(ctx context.Context, srcs []string, dst string) error

	// ReplaceAudio drops the audio of video, maps in audio, and truncates the
	// result to the shorter of the two streams.
	ReplaceAudio(ctx context.Context, video, audio, dst string) error

	// DrawText burns a caption into src and writes the result to dst.
	DrawText(ctx context.Context, src, dst string, overlay TextOverlay) error
}
