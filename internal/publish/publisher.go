// Package publish uploads finished videos to the object store and derives
// their keys and public URLs.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/maauso/reelforge/internal/media"
	"github.com/maauso/reelforge/internal/storage"
)

// KeyPrefix is the folder published videos live under.
const KeyPrefix = "merged_videos"

// ContentType is sent with every upload.
const ContentType = "video/mp4"

// keyTimeLayout is the timestamp layout embedded in keys.
const keyTimeLayout = "20060102_150405"

// Static errors for publishing.
var (
	// ErrBaseURLRequired is returned when no public base URL is configured.
	ErrBaseURLRequired = errors.New("publish: public base URL is required")
	// ErrNoAsset is returned when the asset has no path.
	ErrNoAsset = errors.New("publish: asset path is empty")
)

// Publisher uploads assets and returns their public URL.
type Publisher struct {
	uploader storage.Uploader
	baseURL  string
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithClock overrides the time source used for keys and metadata.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// New creates a Publisher that serves objects from baseURL.
func New(uploader storage.Uploader, baseURL string, opts ...Option) (*Publisher, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	p := &Publisher{
		uploader: uploader,
		baseURL:  baseURL,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Key builds the object key for a product video.
func Key(at time.Time, jobID int64, productName string) string {
	return fmt.Sprintf("%s/%s_product_%d_%s.mp4", KeyPrefix, at.Format(keyTimeLayout), jobID, Slug(productName))
}

// URL returns the public URL of key.
func (p *Publisher) URL(key string) string {
	return p.baseURL + "/" + key
}

// Publish uploads the asset in a single attempt and returns its public URL.
func (p *Publisher) Publish(ctx context.Context, asset media.Asset, jobID int64, productName string) (string, error) {
	if asset.Path == "" {
		return "", ErrNoAsset
	}

	f, err := os.Open(asset.Path) // #nosec G304 - path is produced by the pipeline
	if err != nil {
		return "", fmt.Errorf("open asset: %w", err)
	}
	defer func() { _ = f.Close() }()

	at := p.now()
	key := Key(at, jobID, productName)
	metadata := map[string]string{
		"product_id":   strconv.FormatInt(jobID, 10),
		"processed_at": at.Format(time.RFC3339),
	}

	if err := p.uploader.Put(ctx, key, f, ContentType, metadata); err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}

	url := p.URL(key)
	p.logger.Info("video published",
		slog.Int64("job_id", jobID),
		slog.String("key", key),
		slog.String("url", url),
	)
	return url, nil
}
