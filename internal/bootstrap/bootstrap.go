package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anshultibby/pocket-fashion/internal/config"
	"github.com/anshultibby/pocket-fashion/internal/core/ports"
	"github.com/anshultibby/pocket-fashion/internal/core/usecase"
	"github.com/anshultibby/pocket-fashion/internal/infrastructure/classification"
	"github.com/anshultibby/pocket-fashion/internal/infrastructure/fingerprint"
	"github.com/anshultibby/pocket-fashion/internal/infrastructure/modelfetch"
	"github.com/anshultibby/pocket-fashion/internal/infrastructure/queue/nats"
	"github.com/anshultibby/pocket-fashion/internal/infrastructure/repository/closetfile"
	"github.com/anshultibby/pocket-fashion/internal/infrastructure/repository/postgres"
	"github.com/anshultibby/pocket-fashion/internal/infrastructure/resilience"
	"github.com/anshultibby/pocket-fashion/internal/infrastructure/segmentation"
	"github.com/anshultibby/pocket-fashion/internal/infrastructure/vocabulary"
	"github.com/anshultibby/pocket-fashion/internal/observability/metrics"
)

// App wires every long-lived component for one process (api or worker). Both
// run the full inference stack: the api ingests uploads, the worker replays
// stored sources.
type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue       *nats.Queue
	Store       ports.ClosetStore
	Users       ports.UserRepository
	IngestUC    ports.WardrobeIngestor
	AggregateUC ports.WardrobeAggregator
	Metrics     *metrics.HTTPServerMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	users := postgres.NewUserRepository(db)
	if err := users.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	store, err := closetfile.New(cfg.ClosetsDir)
	if err != nil {
		return nil, fmt.Errorf("init closet store: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig(), logger)

	fetcher := modelfetch.New(executor, logger)
	if err := fetcher.Ensure(ctx, cfg.SegmentModelURL, cfg.SegmentModelPath); err != nil {
		return nil, fmt.Errorf("ensure segmentation model: %w", err)
	}
	if err := fetcher.Ensure(ctx, cfg.ClassifyModelURL, cfg.ClassifyModelPath); err != nil {
		return nil, fmt.Errorf("ensure classification model: %w", err)
	}

	vocab, err := vocabulary.Load(cfg.VocabularyPath)
	if err != nil {
		return nil, fmt.Errorf("load vocabulary: %w", err)
	}

	segmenter, err := segmentation.NewONNXSegmenter(segmentation.Config{
		ModelPath:  cfg.SegmentModelPath,
		InputSize:  cfg.SegmentInputSize,
		ClassCount: cfg.SegmentClasses,
		NumThreads: cfg.InferenceThreads,
	}, cfg.OnnxSharedLibraryPath, logger)
	if err != nil {
		return nil, fmt.Errorf("init segmenter: %w", err)
	}

	classifier, err := classification.NewONNXClassifier(classification.Config{
		ModelPath:  cfg.ClassifyModelPath,
		InputSize:  cfg.ClassifyInputSize,
		NumThreads: cfg.InferenceThreads,
	}, vocab, cfg.OnnxSharedLibraryPath, logger)
	if err != nil {
		_ = segmenter.Close()
		return nil, fmt.Errorf("init classifier: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = segmenter.Close()
		_ = classifier.Close()
		return nil, fmt.Errorf("init job queue: %w", err)
	}

	serverMetrics := metrics.NewHTTPServerMetrics(service)

	ingestUC := usecase.NewIngestItemUseCase(
		store,
		fingerprint.NewDuplo(),
		segmenter,
		classifier,
		usecase.NewInferenceGate(),
		cfg.ImagesDir,
		cfg.ConfidenceFloor,
		serverMetrics.Pipeline(service),
		logger,
	)
	aggregateUC := usecase.NewAggregateUseCase(store, vocab.GarmentClasses)

	return &App{
		Config: cfg,
		Logger: logger,

		Queue:       queue,
		Store:       store,
		Users:       users,
		IngestUC:    ingestUC,
		AggregateUC: aggregateUC,
		Metrics:     serverMetrics,

		closeFn: func() {
			queue.Close()
			_ = segmenter.Close()
			_ = classifier.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
