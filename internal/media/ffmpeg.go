package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Static errors for media operations.
var (
	// ErrNoVideoPaths is returned when no video paths are provided for joining.
	ErrNoVideoPaths = errors.New("no video paths provided")
	// ErrInvalidDuration is returned when a trim window is not positive.
	ErrInvalidDuration = errors.New("invalid duration: must be positive")
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrNoVideoStream is returned when a file has no video stream to probe.
	ErrNoVideoStream = errors.New("no video stream found")
)

// Common target profile for every re-encode, so clips from different
// sources join without gaps or resolution switches.
const (
	videoCodec   = "libx264"
	videoPreset  = "medium"
	videoCRF     = "23"
	frameRate    = "30"
	audioCodec   = "aac"
	audioBitrate = "128k"
	sampleRate   = "48000"
)

// Caption overlay defaults.
const (
	DefaultTextY      = 60
	DefaultBoxOpacity = 0.85
	DefaultBoxBorder  = 25
)

var _ Engine = (*FFmpeg)(nil)

// FFmpeg implements Engine using the ffmpeg and ffprobe CLIs.
type FFmpeg struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

// NewFFmpeg creates a new FFmpeg engine.
// Empty paths default to "ffmpeg" and "ffprobe" (found via PATH).
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// ProbeDuration returns the duration in seconds of a media file.
func (f *FFmpeg) ProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := f.runFFprobe(ctx,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, err
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", strings.TrimSpace(out), err)
	}
	return duration, nil
}

// probeStreams is the subset of ffprobe JSON output used for dimensions.
type probeStreams struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
}

// ProbeDimensions returns the width and height of the first video stream.
func (f *FFmpeg) ProbeDimensions(ctx context.Context, path string) (int, int, error) {
	out, err := f.runFFprobe(ctx,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "json",
		path,
	)
	if err != nil {
		return 0, 0, err
	}

	var probe probeStreams
	if err := json.Unmarshal([]byte(out), &probe); err != nil {
		return 0, 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return 0, 0, fmt.Errorf("%w: %s", ErrNoVideoStream, path)
	}
	return probe.Streams[0].Width, probe.Streams[0].Height, nil
}

// Trim writes duration seconds of src starting at start to dst.
func (f *FFmpeg) Trim(ctx context.Context, src, dst string, start, duration float64) error {
	if duration <= 0 {
		return fmt.Errorf("%w: got %.2f", ErrInvalidDuration, duration)
	}
	return f.runFFmpeg(ctx, trimArgs(src, dst, start, duration))
}

// Concat joins the inputs in order into dst.
func (f *FFmpeg) Concat(ctx context.Context, srcs []string, dst string) error {
	if len(srcs) == 0 {
		return ErrNoVideoPaths
	}

	listFile, err := createConcatList(filepath.Dir(dst), srcs)
	if err != nil {
		return fmt.Errorf("create concat list: %w", err)
	}
	defer func() { _ = os.Remove(listFile) }()

	return f.runFFmpeg(ctx, concatArgs(listFile, dst))
}

// ReplaceAudio maps the video of one file and the audio of another into dst,
// stopping at the end of the shorter stream.
func (f *FFmpeg) ReplaceAudio(ctx context.Context, video, audio, dst string) error {
	return f.runFFmpeg(ctx, replaceAudioArgs(video, audio, dst))
}

// DrawText burns a caption into src. The text is handed to drawtext through
// a file written next to dst, so it needs no filter escaping.
func (f *FFmpeg) DrawText(ctx context.Context, src, dst string, overlay TextOverlay) error {
	textFile := CaptionFile(dst)
	if err := os.WriteFile(textFile, []byte(overlay.Text), 0600); err != nil {
		return fmt.Errorf("write caption file: %w", err)
	}
	return f.runFFmpeg(ctx, drawTextArgs(src, dst, textFile, overlay))
}

// CaptionFile returns the path of the caption text written for dst.
func CaptionFile(dst string) string {
	return strings.TrimSuffix(dst, filepath.Ext(dst)) + ".caption.txt"
}

func encodeArgs() []string {
	return []string{
		"-c:v", videoCodec,
		"-preset", videoPreset,
		"-crf", videoCRF,
		"-r", frameRate,
		"-pix_fmt", "yuv420p",
		"-c:a", audioCodec,
		"-b:a", audioBitrate,
		"-ar", sampleRate,
	}
}

func trimArgs(src, dst string, start, duration float64) []string {
	args := []string{
		"-y",
		"-i", src,
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
	}
	args = append(args, encodeArgs()...)
	return append(args, dst)
}

func concatArgs(listFile, dst string) []string {
	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0", // Allow absolute paths
		"-i", listFile,
	}
	args = append(args, encodeArgs()...)
	return append(args, "-movflags", "+faststart", dst)
}

func replaceAudioArgs(video, audio, dst string) []string {
	return []string{
		"-y",
		"-i", video,
		"-i", audio,
		"-map", "0:v",
		"-map", "1:a",
		"-c:v", videoCodec,
		"-preset", videoPreset,
		"-crf", videoCRF,
		"-c:a", "copy",
		"-shortest",
		"-movflags", "+faststart",
		dst,
	}
}

func drawTextArgs(src, dst, textFile string, overlay TextOverlay) []string {
	return []string{
		"-y",
		"-i", src,
		"-vf", drawTextFilter(overlay, textFile),
		"-c:v", videoCodec,
		"-preset", videoPreset,
		"-crf", videoCRF,
		"-c:a", "copy",
		"-movflags", "+faststart",
		dst,
	}
}

// drawTextFilter builds a top-centered white caption on a translucent black box.
func drawTextFilter(o TextOverlay, textFile string) string {
	y := o.Y
	if y <= 0 {
		y = DefaultTextY
	}
	opacity := o.BoxOpacity
	if opacity <= 0 || opacity > 1 {
		opacity = DefaultBoxOpacity
	}
	border := o.BoxBorder
	if border <= 0 {
		border = DefaultBoxBorder
	}

	var b strings.Builder
	b.WriteString("drawtext=")
	if o.FontFile != "" {
		fmt.Fprintf(&b, "fontfile=%s:", EscapeFilterValue(o.FontFile))
	}
	fmt.Fprintf(&b, "textfile=%s:expansion=none:fontsize=%d:fontcolor=white:x=(w-text_w)/2:y=%d:box=1:boxcolor=black@%.2f:boxborderw=%d",
		EscapeFilterValue(textFile), o.FontSize, y, opacity, border)
	return b.String()
}

var (
	optionEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	graphEscaper  = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`)
)

// EscapeFilterValue escapes an unquoted filter option value for both levels
// ffmpeg parses a -vf string at: the filter options first, then the graph.
func EscapeFilterValue(s string) string {
	return graphEscaper.Replace(optionEscaper.Replace(s))
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

// createConcatList writes the ffmpeg concat demuxer list for paths into dir.
func createConcatList(dir string, paths []string) (string, error) {
	f, err := os.CreateTemp(dir, "concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = f.Close() }()

	for _, path := range paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("get absolute path for %s: %w", path, err)
		}
		escapedPath := strings.ReplaceAll(absPath, "'", "'\\''")
		if _, err := fmt.Fprintf(f, "file '%s'\n", escapedPath); err != nil {
			return "", fmt.Errorf("write to concat list: %w", err)
		}
	}

	return f.Name(), nil
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (f *FFmpeg) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// runFFprobe executes ffprobe and returns its stdout.
func (f *FFmpeg) runFFprobe(ctx context.Context, args ...string) (string, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return "", fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
