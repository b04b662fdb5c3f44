package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
)

// ErrInputMissing is returned when the file to normalize does not exist.
var ErrInputMissing = errors.New("input file does not exist")

var durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)\.(\d+)`)

// FFmpegNormalizer implements Normalizer using ffmpeg CLI.
type FFmpegNormalizer struct {
	ffmpegPath string
	opts       NormalizeOpts
}

// NewFFmpegNormalizer creates a new FFmpegNormalizer.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
func NewFFmpegNormalizer(ffmpegPath string, opts NormalizeOpts) *FFmpegNormalizer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	def := DefaultNormalizeOpts()
	if opts.SampleRate <= 0 {
		opts.SampleRate = def.SampleRate
	}
	if opts.Channels <= 0 {
		opts.Channels = def.Channels
	}
	if opts.Bitrate == "" {
		opts.Bitrate = def.Bitrate
	}
	return &FFmpegNormalizer{ffmpegPath: ffmpegPath, opts: opts}
}

// Normalize implements Normalizer.Normalize.
func (n *FFmpegNormalizer) Normalize(ctx context.Context, src, dst string) (float64, error) {
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return 0, fmt.Errorf("%w: %s", ErrInputMissing, src)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, fmt.Errorf("create output directory: %w", err)
	}

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, n.ffmpegPath, n.args(src, dst)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("ffmpeg error: %w, stderr: %s", err, stderr.String())
	}

	// ffmpeg writes the input duration to stderr; missing is not an error.
	duration, _ := parseDuration(stderr.String())
	return duration, nil
}

func (n *FFmpegNormalizer) args(src, dst string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-i", src,
		"-vn",
		"-ar", strconv.Itoa(n.opts.SampleRate),
		"-ac", strconv.Itoa(n.opts.Channels),
		"-c:a", "aac",
		"-b:a", n.opts.Bitrate,
		dst,
	}
}

// parseDuration extracts "Duration: HH:MM:SS.ms" from ffmpeg stderr output.
func parseDuration(output string) (float64, error) {
	matches := durationRe.FindStringSubmatch(output)
	if len(matches) < 5 {
		return 0, fmt.Errorf("could not parse duration from ffmpeg output")
	}

	hours, _ := strconv.ParseFloat(matches[1], 64)
	minutes, _ := strconv.ParseFloat(matches[2], 64)
	seconds, _ := strconv.ParseFloat(matches[3], 64)
	frac, _ := strconv.ParseFloat(matches[4], 64)

	// Fractional part precision varies between ffmpeg builds.
	divisor := 1.0
	for range len(matches[4]) {
		divisor *= 10
	}

	return hours*3600 + minutes*60 + seconds + frac/divisor, nil
}

// Verify interface implementation at compile time.
var _ Normalizer = (*FFmpegNormalizer)(nil)
