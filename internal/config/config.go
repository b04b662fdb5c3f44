// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// Run modes.
const (
	// RunModeOnce runs a single sweep and exits.
	RunModeOnce = "once"
	// RunModeServe exposes the ops HTTP surface and sweeps on request.
	RunModeServe = "serve"
)

// Static errors for configuration validation.
var (
	// ErrDatabaseURLRequired is returned when DATABASE_URL is not set.
	ErrDatabaseURLRequired = errors.New("config: DATABASE_URL is required")
	// ErrR2AccessKeyRequired is returned when R2_ACCESS_KEY_ID is not set.
	ErrR2AccessKeyRequired = errors.New("config: R2_ACCESS_KEY_ID is required")
	// ErrR2SecretKeyRequired is returned when R2_SECRET_ACCESS_KEY is not set.
	ErrR2SecretKeyRequired = errors.New("config: R2_SECRET_ACCESS_KEY is required")
	// ErrR2EndpointRequired is returned when R2_ENDPOINT is not set.
	ErrR2EndpointRequired = errors.New("config: R2_ENDPOINT is required")
	// ErrHuggingFaceAPIKeyRequired is returned when HUGGINGFACE_API_KEY is not set.
	ErrHuggingFaceAPIKeyRequired = errors.New("config: HUGGINGFACE_API_KEY is required")
	// ErrZaloAPIKeyRequired is returned when ZALO_API_KEY is not set.
	ErrZaloAPIKeyRequired = errors.New("config: ZALO_API_KEY is required")
	// ErrInvalidRunMode is returned when RUN_MODE is neither once nor serve.
	ErrInvalidRunMode = errors.New("config: RUN_MODE must be once or serve")
	// ErrInvalidDownloadAttempts is returned when DOWNLOAD_ATTEMPTS is not positive.
	ErrInvalidDownloadAttempts = errors.New("config: DOWNLOAD_ATTEMPTS must be positive")
	// ErrInvalidCharsPerSecond is returned when CHARS_PER_SECOND is not positive.
	ErrInvalidCharsPerSecond = errors.New("config: CHARS_PER_SECOND must be positive")
)

// Config holds all configuration for the application.
type Config struct {
	// Run settings
	RunMode string `env:"RUN_MODE, default=once" json:"run_mode"`
	Port    int    `env:"PORT, default=8080" json:"port"`

	// Job store settings
	DatabaseURL   string `env:"DATABASE_URL, required" json:"-"` // Masked in JSON
	ProductsTable string `env:"PRODUCTS_TABLE, default=public.products" json:"products_table"`

	// Object store settings
	R2AccessKeyID     string `env:"R2_ACCESS_KEY_ID, required" json:"-"`     // Masked in JSON
	R2SecretAccessKey string `env:"R2_SECRET_ACCESS_KEY, required" json:"-"` // Masked in JSON
	R2Endpoint        string `env:"R2_ENDPOINT, required" json:"r2_endpoint"`
	R2Bucket          string `env:"R2_BUCKET_NAME, default=yt-2-tiktok" json:"r2_bucket"`
	R2Region          string `env:"R2_REGION, default=auto" json:"r2_region"`
	PublicBaseURL     string `env:"PUBLIC_BASE_URL, default=https://pub-09ecd227972848afb3d86c1f7f2b57b1.r2.dev" json:"public_base_url"`

	// Script generation settings
	HuggingFaceEndpoint string `env:"HUGGINGFACE_ENDPOINT, default=https://router.huggingface.co/v1/chat/completions" json:"huggingface_endpoint"`
	HuggingFaceModel    string `env:"HUGGINGFACE_MODEL, default=deepseek-ai/DeepSeek-V3.2-Exp" json:"huggingface_model"`
	HuggingFaceAPIKey   string `env:"HUGGINGFACE_API_KEY, required" json:"-"` // Masked in JSON

	// Voice settings
	ZaloAPIKey    string `env:"ZALO_API_KEY, required" json:"-"` // Masked in JSON
	ZaloSpeakerID int    `env:"ZALO_SPEAKER_ID, default=1" json:"zalo_speaker_id"`

	// Processing settings
	WorkDir          string  `env:"WORK_DIR, default=/tmp/reelforge" json:"work_dir"`
	FFmpegPath       string  `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath      string  `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`
	DownloadReferer  string  `env:"DOWNLOAD_REFERER, default=https://shopee.vn/" json:"download_referer"`
	DownloadAttempts int     `env:"DOWNLOAD_ATTEMPTS, default=3" json:"download_attempts"`
	CharsPerSecond   float64 `env:"CHARS_PER_SECOND, default=15" json:"chars_per_second"`
	CaptionFontFile  string  `env:"CAPTION_FONT_FILE" json:"caption_font_file,omitempty"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// requiredVars maps required variables to their errors, in check order.
var requiredVars = []struct {
	name  string
	err   error
	value func(*Config) string
}{
	{"DATABASE_URL", ErrDatabaseURLRequired, func(c *Config) string { return c.DatabaseURL }},
	{"R2_ACCESS_KEY_ID", ErrR2AccessKeyRequired, func(c *Config) string { return c.R2AccessKeyID }},
	{"R2_SECRET_ACCESS_KEY", ErrR2SecretKeyRequired, func(c *Config) string { return c.R2SecretAccessKey }},
	{"R2_ENDPOINT", ErrR2EndpointRequired, func(c *Config) string { return c.R2Endpoint }},
	{"HUGGINGFACE_API_KEY", ErrHuggingFaceAPIKeyRequired, func(c *Config) string { return c.HuggingFaceAPIKey }},
	{"ZALO_API_KEY", ErrZaloAPIKeyRequired, func(c *Config) string { return c.ZaloAPIKey }},
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if required variables are not set or values are invalid.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if errors.Is(err, envconfig.ErrMissingRequired) {
			for _, rv := range requiredVars {
				if strings.Contains(err.Error(), rv.name) {
					return nil, rv.err
				}
			}
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and that
// values are in range. Variables set to an empty string count as missing.
func (c *Config) Validate() error {
	for _, rv := range requiredVars {
		if strings.TrimSpace(rv.value(c)) == "" {
			return rv.err
		}
	}
	switch c.RunMode {
	case RunModeOnce, RunModeServe:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRunMode, c.RunMode)
	}
	if c.DownloadAttempts <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDownloadAttempts, c.DownloadAttempts)
	}
	if c.CharsPerSecond <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidCharsPerSecond, c.CharsPerSecond)
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{RunMode: %s, Port: %d, ProductsTable: %s, R2Endpoint: %s, R2Bucket: %s, R2Region: %s, PublicBaseURL: %s, HuggingFaceModel: %s, ZaloSpeakerID: %d, WorkDir: %s, DownloadAttempts: %d, CharsPerSecond: %v, LogFormat: %s, LogLevel: %s}",
		c.RunMode,
		c.Port,
		c.ProductsTable,
		c.R2Endpoint,
		c.R2Bucket,
		c.R2Region,
		c.PublicBaseURL,
		c.HuggingFaceModel,
		c.ZaloSpeakerID,
		c.WorkDir,
		c.DownloadAttempts,
		c.CharsPerSecond,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
