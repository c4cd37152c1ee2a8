package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"drisya/internal/http/handlers"
	httpapi "drisya/internal/http/httpapi"
	"drisya/internal/infra"
	"drisya/internal/jobs"
	"drisya/internal/templates"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	runner := infra.NewSQLRunner(dbpool, logger)
	app := handlers.NewApp(jobs.NewPGStore(runner), templates.Default(), &logger)
	app.Heartbeat = cfg.SSEHeartbeat
	app.PollInterval = cfg.SSEPollInterval
	app.Checks["database"] = dbpool.Ping

	rdb, err := infra.NewRedisClient(ctx, cfg)
	switch {
	case errors.Is(err, infra.ErrRedisDisabled):
		logger.Warn().Msg("REDIS_URL not set, progress stream falls back to polling")
	case err != nil:
		logger.Warn().Err(err).Msg("redis unavailable, progress stream falls back to polling")
	default:
		defer rdb.Close()
		app.Events = jobs.NewRedisPublisher(rdb, cfg.SnapshotTTL, &logger)
		app.Checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	router := httpapi.NewRouter(app, logger, httpapi.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		EventsRateLimit:  cfg.EventsRateLimit,
		EventsRateWindow: cfg.EventsRateWindow,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
