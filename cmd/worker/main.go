package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"cvlm/internal/config"
	"cvlm/internal/database"
	"cvlm/internal/history"
	"cvlm/internal/logging"
	"cvlm/internal/ownership"
	"cvlm/internal/repository"
	"cvlm/internal/storage"
	"cvlm/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger, flush, err := logging.New(cfg.Log, "cvlm-worker")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer flush()

	if err := run(cfg, logger); err != nil {
		logger.Error("worker stopped", slog.Any("error", err))
		flush()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	logger.Info("database connection ready for worker")

	files, err := storage.NewClient(ctx, cfg.MinIO)
	if err != nil {
		return fmt.Errorf("init storage client: %w", err)
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket))

	cvs := repository.NewCVRepository(db)
	letters := repository.NewLetterRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	historyService := history.NewService(historyRepo, files, ownership.NewValidator(cvs, letters, historyRepo, files), logger)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     cfg.Worker.Concurrency,
		Queues:          worker.Queues(),
		ShutdownTimeout: 30 * time.Second,
	})
	mux := worker.NewServeMux(worker.NewHistoryCleanupHandler(historyService, cfg.Worker.CleanupBatch, logger))

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: time.UTC})
	entryID, err := worker.RegisterSchedules(scheduler, cfg.Worker.CleanupCron, cfg.Worker.CleanupBatch)
	if err != nil {
		return err
	}
	logger.Info("history cleanup scheduled",
		slog.String("cron", cfg.Worker.CleanupCron),
		slog.String("entry_id", entryID),
	)

	if err := server.Start(mux); err != nil {
		return fmt.Errorf("start worker server: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		server.Shutdown()
		return fmt.Errorf("start scheduler: %w", err)
	}
	logger.Info("worker service started",
		slog.String("redis_addr", redisOpt.Addr),
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)

	<-ctx.Done()
	logger.Info("shutting down worker")
	scheduler.Shutdown()
	server.Shutdown()
	return nil
}
