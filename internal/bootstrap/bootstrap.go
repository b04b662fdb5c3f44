// Package bootstrap provides dependency initialization for reelforge.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/reelforge/internal/audio"
	"github.com/maauso/reelforge/internal/caption"
	"github.com/maauso/reelforge/internal/config"
	"github.com/maauso/reelforge/internal/download"
	"github.com/maauso/reelforge/internal/job"
	"github.com/maauso/reelforge/internal/llm"
	"github.com/maauso/reelforge/internal/media"
	"github.com/maauso/reelforge/internal/narration"
	"github.com/maauso/reelforge/internal/pipeline"
	"github.com/maauso/reelforge/internal/publish"
	"github.com/maauso/reelforge/internal/storage"
	"github.com/maauso/reelforge/internal/tts"
)

// Dependencies holds all initialized dependencies for a sweep.
type Dependencies struct {
	Orchestrator *pipeline.Orchestrator

	// Close releases the database pool.
	Close func()
}

// NewDependencies creates and initializes all dependencies for the application.
// The job store is opened first so a bad DATABASE_URL fails before anything else.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	pool, err := job.OpenPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	store, err := job.NewPostgresStore(pool, cfg.ProductsTable)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create job store: %w", err)
	}

	deps, err := newPipelineDeps(ctx, cfg, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	deps.Store = store

	orch, err := pipeline.New(deps,
		pipeline.WithCharsPerSecond(cfg.CharsPerSecond),
		pipeline.WithLogger(logger),
	)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}

	logger.Info("dependencies initialized",
		slog.String("products_table", cfg.ProductsTable),
		slog.String("work_dir", cfg.WorkDir),
		slog.String("bucket", cfg.R2Bucket),
	)

	return &Dependencies{
		Orchestrator: orch,
		Close:        pool.Close,
	}, nil
}

// newPipelineDeps builds every collaborator except the job store.
func newPipelineDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (pipeline.Deps, error) {
	scratch, err := storage.NewLocalStorage(cfg.WorkDir)
	if err != nil {
		return pipeline.Deps{}, fmt.Errorf("create scratch storage: %w", err)
	}

	engine := media.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath)
	runner := media.NewRunner(engine, media.WithLogger(logger))

	fetcher := download.New(engine,
		download.WithAttempts(cfg.DownloadAttempts),
		download.WithReferer(cfg.DownloadReferer),
		download.WithLogger(logger),
	)

	text, err := llm.NewClient(cfg.HuggingFaceEndpoint, cfg.HuggingFaceModel, llm.WithAPIKey(cfg.HuggingFaceAPIKey))
	if err != nil {
		return pipeline.Deps{}, fmt.Errorf("create text client: %w", err)
	}
	voice, err := tts.NewClient(tts.WithAPIKey(cfg.ZaloAPIKey), tts.WithSpeaker(cfg.ZaloSpeakerID))
	if err != nil {
		return pipeline.Deps{}, fmt.Errorf("create voice client: %w", err)
	}
	normalizer := audio.NewFFmpegNormalizer(cfg.FFmpegPath, audio.DefaultNormalizeOpts())
	narrator := narration.NewPipeline(text, voice, normalizer, logger)

	captioner := caption.NewComposer(runner,
		caption.WithFontFile(cfg.CaptionFontFile),
		caption.WithLogger(logger),
	)

	publisher, err := initPublisher(ctx, cfg, logger)
	if err != nil {
		return pipeline.Deps{}, err
	}

	return pipeline.Deps{
		Scratch:   scratch,
		Fetcher:   fetcher,
		Media:     runner,
		Narrator:  narrator,
		Captioner: captioner,
		Publisher: publisher,
	}, nil
}

// initPublisher creates the R2-backed publisher.
func initPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*publish.Publisher, error) {
	s3Store, err := storage.NewS3Storage(ctx, storage.S3Config{
		Bucket:          cfg.R2Bucket,
		Region:          cfg.R2Region,
		Endpoint:        cfg.R2Endpoint,
		AccessKeyID:     cfg.R2AccessKeyID,
		SecretAccessKey: cfg.R2SecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage: %w", err)
	}
	logger.Info("object storage configured",
		slog.String("bucket", cfg.R2Bucket),
		slog.String("endpoint", cfg.R2Endpoint),
	)

	publisher, err := publish.New(s3Store, cfg.PublicBaseURL, publish.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create publisher: %w", err)
	}
	return publisher, nil
}
