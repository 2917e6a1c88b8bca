package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pulmonics/lung-sound-api/internal/config"
	"github.com/pulmonics/lung-sound-api/internal/core/ports"
	"github.com/pulmonics/lung-sound-api/internal/core/usecase"
	rediscache "github.com/pulmonics/lung-sound-api/internal/infrastructure/cache/redis"
	"github.com/pulmonics/lung-sound-api/internal/infrastructure/classifier/torchserve"
	"github.com/pulmonics/lung-sound-api/internal/infrastructure/queue/nats"
	"github.com/pulmonics/lung-sound-api/internal/infrastructure/repository/memory"
	"github.com/pulmonics/lung-sound-api/internal/infrastructure/repository/postgres"
	"github.com/pulmonics/lung-sound-api/internal/infrastructure/resilience"
	"github.com/pulmonics/lung-sound-api/internal/infrastructure/storage/localfs"
	s3storage "github.com/pulmonics/lung-sound-api/internal/infrastructure/storage/s3"
)

type App struct {
	Config config.Config

	Queue ports.MessageQueue
	Repo  ports.PredictionRepository

	SubmitUC  ports.PredictionSubmitter
	ReadUC    ports.PredictionReader
	ProcessUC ports.PredictionProcessor
	SweepUC   ports.StaleSweeper

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	repo, repoClose, err := newRepository(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init repository: %w", err)
	}

	storage, err := newObjectStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	classifier := torchserve.NewWithOptions(cfg.ModelURL, cfg.ModelName, torchserve.Options{
		ResilienceExecutor: executor,
	})

	// The record cache is advisory. A missing or unreachable Redis must
	// not keep the service from starting.
	var cache ports.RecordCache
	var redisCloser *rediscache.RecordCache
	if cfg.RedisURL != "" {
		redisCache, err := rediscache.New(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			slog.Warn("record cache disabled", "error", err)
		} else {
			cache = redisCache
			redisCloser = redisCache
		}
	}

	submitUC := usecase.NewSubmitPredictionUseCase(repo, storage, queue)
	readUC := usecase.NewReadPredictionsUseCase(repo, cache)
	processUC := usecase.NewProcessPredictionUseCase(repo, storage, classifier, cfg.SweepStaleAfter)

	return &App{
		Config: cfg,
		Queue:  queue,
		Repo:   repo,

		SubmitUC:  submitUC,
		ReadUC:    readUC,
		ProcessUC: processUC,
		SweepUC:   processUC,

		closeFn: func() {
			queue.Close()
			if redisCloser != nil {
				_ = redisCloser.Close()
			}
			repoClose()
		},
	}, nil
}

func newRepository(ctx context.Context, cfg config.Config) (ports.PredictionRepository, func(), error) {
	switch cfg.RepoBackend {
	case "", "postgres":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		repo := postgres.NewPredictionRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo, func() { _ = db.Close() }, nil
	case "memory":
		// Dev mode. Records do not survive a restart, and the api and
		// worker only share records when they share the process.
		return memory.NewStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown repository backend %q", cfg.RepoBackend)
	}
}

func newObjectStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case "", "local":
		return localfs.New(cfg.StoragePath)
	case "s3":
		return s3storage.New(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Endpoint)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
