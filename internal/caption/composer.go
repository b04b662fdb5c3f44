package caption

import (
	"context"
	"log/slog"

	"github.com/maauso/reelforge/internal/media"
)

// Overlayer burns text into a video. media.Runner implements it.
type Overlayer interface {
	Caption(ctx context.Context, video media.Asset, text string, fontSize int, fontFile string, dst string) (media.Asset, error)
}

var _ Overlayer = (*media.Runner)(nil)

// Composer chooses the caption for a video and renders it.
type Composer struct {
	overlayer Overlayer
	maxLines  int
	fontFile  string
	logger    *slog.Logger
}

// Option configures a Composer.
type Option func(*Composer)

// WithMaxLines wraps captions over n lines. The default is a single line.
func WithMaxLines(n int) Option {
	return func(c *Composer) {
		if n > 0 {
			c.maxLines = n
		}
	}
}

// WithFontFile sets the font used for captions.
func WithFontFile(path string) Option {
	return func(c *Composer) {
		c.fontFile = path
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Composer) {
		c.logger = logger
	}
}

// NewComposer creates a Composer rendering through overlayer.
func NewComposer(overlayer Overlayer, opts ...Option) *Composer {
	c := &Composer{
		overlayer: overlayer,
		maxLines:  1,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose captions video with overlay copy, or the product name when the
// copy is empty, and writes the result to dst.
func (c *Composer) Compose(ctx context.Context, video media.Asset, overlay, productName, dst string) (media.Asset, error) {
	text := ChooseText(overlay, productName)
	size := FontSize(text)

	if Sanitize(overlay) == "" {
		c.logger.Warn("no overlay copy, using product name", slog.String("text", text))
	}
	c.logger.Info("adding caption",
		slog.String("text", text),
		slog.Int("font_size", size),
	)

	return c.overlayer.Caption(ctx, video, Wrap(text, c.maxLines), size, c.fontFile, dst)
}
