package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"drisya/internal/batch"
	"drisya/internal/bootstrap"
	"drisya/internal/enhance"
	"drisya/internal/infra"
	"drisya/internal/infra/credentials"
	"drisya/internal/jobs"
	"drisya/internal/storage"
)

type jobStore interface {
	Claim(ctx context.Context) (*jobs.Job, error)
	Images(ctx context.Context, jobID string) ([]jobs.Image, error)
	Finish(ctx context.Context, jobID string, status jobs.Status, zipURL, errMsg string) error
	RequeueStale(ctx context.Context, olderThan string) (int64, error)
}

type batchRunner interface {
	Run(ctx context.Context, reqs []enhance.Request, progress batch.ProgressFunc) []enhance.Result
}

type jobWorker struct {
	store   jobStore
	events  jobs.Sink
	runner  batchRunner
	files   storage.Store
	tempDir string
	poll    time.Duration
	logger  infra.Logger
	now     func() time.Time
}

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	pgStore := jobs.NewPGStore(runner)
	sinks := jobs.Fanout{pgStore}

	rdb, err := infra.NewRedisClient(ctx, cfg)
	switch {
	case errors.Is(err, infra.ErrRedisDisabled):
		logger.Warn().Msg("worker: REDIS_URL not set, progress is only persisted")
	case err != nil:
		logger.Fatal().Err(err).Msg("worker: redis connection failed")
	default:
		defer rdb.Close()
		sinks = append(sinks, jobs.NewRedisPublisher(rdb, cfg.SnapshotTTL, &logger))
	}

	if err := credentials.NewStore(runner).Fill(ctx, cfg); err != nil {
		logger.Warn().Err(err).Msg("worker: failed to load api keys from store")
	}

	fileStore, err := bootstrap.NewStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}
	pipeline, err := bootstrap.New(cfg, fileStore, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure pipeline")
	}

	worker := &jobWorker{
		store:   pgStore,
		events:  sinks,
		runner:  pipeline.Runner,
		files:   fileStore,
		tempDir: cfg.TempDir,
		poll:    cfg.WorkerPollInterval,
		logger:  logger,
		now:     time.Now,
	}

	if n, err := pgStore.RequeueStale(ctx, staleInterval(cfg.WorkerStaleAfter)); err != nil {
		logger.Warn().Err(err).Msg("worker: requeue stale jobs failed")
	} else if n > 0 {
		logger.Info().Int64("jobs", n).Msg("worker: requeued stale jobs")
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

// staleInterval renders d as a Postgres interval literal.
func staleInterval(d time.Duration) string {
	if d <= 0 {
		d = 30 * time.Minute
	}
	return fmt.Sprintf("%d seconds", int64(d/time.Second))
}
