// Package download fetches source clips over HTTP with retries and validates
// that each file is a decodable video before handing it to the pipeline.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/maauso/reelforge/internal/media"
)

// Static errors for download attempts.
var (
	// ErrUnexpectedStatus is returned when the server answers with a non-2xx status.
	ErrUnexpectedStatus = errors.New("unexpected status code")
	// ErrEmptyFile is returned when the response body is empty.
	ErrEmptyFile = errors.New("downloaded file is empty")
	// ErrInvalidMedia is returned when the downloaded file cannot be probed.
	ErrInvalidMedia = errors.New("downloaded file is not a valid video")
)

// Download defaults.
const (
	DefaultAttempts       = 3
	DefaultBackoff        = time.Second
	DefaultReferer        = "https://shopee.vn/"
	DefaultConnectTimeout = 30 * time.Second
	DefaultTotalTimeout   = 300 * time.Second

	// suspiciousSize is the size below which a download is logged as a likely error page.
	suspiciousSize = 1024
)

const (
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	acceptVideo    = "video/webm,video/ogg,video/*;q=0.9,application/ogg;q=0.7,audio/*;q=0.6,*/*;q=0.5"
	acceptLanguage = "vi-VN,vi;q=0.9,en-US;q=0.8,en;q=0.7"
)

// Prober validates a downloaded file by reading its duration.
type Prober interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// Downloader fetches clips with retry and structural validation.
type Downloader struct {
	client   *http.Client
	prober   Prober
	logger   *slog.Logger
	attempts int
	backoff  time.Duration
	referer  string
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Downloader) {
		d.client = client
	}
}

// WithAttempts sets the number of attempts per URL.
func WithAttempts(n int) Option {
	return func(d *Downloader) {
		if n > 0 {
			d.attempts = n
		}
	}
}

// WithBackoff sets the pause between attempts. Zero disables it.
func WithBackoff(b time.Duration) Option {
	return func(d *Downloader) {
		d.backoff = b
	}
}

// WithReferer sets the Referer header sent with each request.
func WithReferer(referer string) Option {
	return func(d *Downloader) {
		d.referer = referer
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Downloader) {
		d.logger = logger
	}
}

// NewHTTPClient returns a client with a 30s connect timeout and a 300s
// total transfer timeout.
func NewHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   DefaultConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	return &http.Client{
		Transport: transport,
		Timeout:   DefaultTotalTimeout,
	}
}

// New creates a Downloader that validates files with prober.
func New(prober Prober, opts ...Option) *Downloader {
	d := &Downloader{
		client:   NewHTTPClient(),
		prober:   prober,
		logger:   slog.Default(),
		attempts: DefaultAttempts,
		backoff:  DefaultBackoff,
		referer:  DefaultReferer,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fetch downloads url to dest. Every failed attempt removes the partial file.
// After the last attempt a final 404 yields *Gone and anything else *Transient.
func (d *Downloader) Fetch(ctx context.Context, url, dest string) Result {
	var (
		lastCode int
		lastErr  error
	)

	for attempt := 1; attempt <= d.attempts; attempt++ {
		code, err := d.attempt(ctx, url, dest)
		lastCode = code

		if err == nil {
			duration, probeErr := d.prober.ProbeDuration(ctx, dest)
			if probeErr == nil {
				d.logger.Info("clip downloaded",
					slog.String("url", url),
					slog.Int("attempt", attempt),
					slog.Float64("duration", duration),
				)
				return &Ok{Asset: media.Asset{Path: dest, Duration: duration}, Attempts: attempt}
			}
			err = fmt.Errorf("%w: %w", ErrInvalidMedia, probeErr)
		}

		lastErr = err
		_ = os.Remove(dest)

		d.logger.Warn("download attempt failed",
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", d.attempts),
			slog.Int("status", code),
			slog.String("error", err.Error()),
		)

		if ctx.Err() != nil {
			break
		}
		if attempt < d.attempts && d.backoff > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(d.backoff):
			}
		}
	}

	if IsGone(lastCode) {
		return &Gone{URL: url, StatusCode: lastCode}
	}
	return &Transient{URL: url, StatusCode: lastCode, Err: lastErr}
}

// attempt performs one GET and writes the body to dest. The returned status
// is 0 when no response was received.
func (d *Downloader) attempt(ctx context.Context, url, dest string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptVideo)
	req.Header.Set("Accept-Language", acceptLanguage)
	if d.referer != "" {
		req.Header.Set("Referer", d.referer)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	size, err := writeFile(dest, resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if size == 0 {
		return resp.StatusCode, ErrEmptyFile
	}
	if size < suspiciousSize {
		d.logger.Warn("downloaded file is very small",
			slog.String("url", url),
			slog.Int64("bytes", size),
			slog.String("first_bytes", firstBytes(dest, 50)),
		)
	}

	return resp.StatusCode, nil
}

func writeFile(dest string, body io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(dest) // #nosec G304 - dest is built by the pipeline under its scratch directory
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}

	n, err := io.Copy(f, body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, fmt.Errorf("write body: %w", err)
	}
	return n, nil
}

func firstBytes(path string, n int) string {
	f, err := os.Open(path) // #nosec G304 - path was just written by writeFile
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, n)
	read, _ := io.ReadFull(f, buf)
	return string(buf[:read])
}
