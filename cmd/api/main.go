package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"cvlm/internal/api"
	"cvlm/internal/auth"
	"cvlm/internal/config"
	"cvlm/internal/credit"
	"cvlm/internal/database"
	"cvlm/internal/document"
	"cvlm/internal/history"
	"cvlm/internal/joboffer"
	"cvlm/internal/llm"
	"cvlm/internal/logging"
	"cvlm/internal/notify"
	"cvlm/internal/ownership"
	"cvlm/internal/pdf"
	"cvlm/internal/repository"
	"cvlm/internal/scan"
	"cvlm/internal/storage"
	"cvlm/internal/tracing"
	"cvlm/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := config.MustLoad()

	logger, flush, err := logging.New(cfg.Log, "cvlm-api")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer flush()

	if err := run(cfg, logger); err != nil {
		logger.Error("api stopped", slog.Any("error", err))
		flush()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("shutdown tracing failed", slog.Any("error", err))
		}
	}()

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	defer sqlDB.Close()
	logger.Info("database ready",
		slog.String("host", cfg.Database.Host),
		slog.String("db", cfg.Database.Name),
	)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	files, err := storage.NewClient(ctx, cfg.MinIO)
	if err != nil {
		return fmt.Errorf("init storage client: %w", err)
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket))

	authService, err := auth.LoadFromConfig(cfg.Auth, false)
	if err != nil {
		return fmt.Errorf("load auth keys: %w", err)
	}

	if err := os.MkdirAll(cfg.Generation.ScratchDir, 0o755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}

	users := repository.NewUserRepository(db)
	cvs := repository.NewCVRepository(db)
	letters := repository.NewLetterRepository(db)
	historyRepo := repository.NewHistoryRepository(db)

	owner := ownership.NewValidator(cvs, letters, historyRepo, files)
	timeouts := usecase.TimeoutsFromConfig(cfg.Generation)
	extractor := document.NewPDFExtractor()
	notifier := notify.NewRedisNotifier(redisClient)

	llms := llm.NewRegistry(cfg.LLM)
	if _, err := llms.Get(""); err != nil {
		logger.Warn("default llm provider unavailable", slog.String("provider", llms.Default()), slog.Any("error", err))
	}

	orchestrator := usecase.NewOrchestrator(usecase.GenerationDeps{
		Owner:      owner,
		Guard:      credit.Guard{},
		Ledger:     credit.NewLedger(users, logger),
		Recorder:   history.NewRecorder(historyRepo, cfg.Generation.Retention(), logger),
		Letters:    letters,
		Extractor:  extractor,
		Fetcher:    joboffer.NewCachedFetcher(joboffer.NewWTTJFetcher(cfg.JobOffer.UserAgent, cfg.JobOffer.HTTPTimeout), cfg.JobOffer.CacheTTL),
		LLMs:       llms,
		Renderer:   pdf.NewRenderer(logger, cfg.Generation.RenderTimeout),
		Files:      files,
		Timeouts:   timeouts,
		ScratchDir: cfg.Generation.ScratchDir,
		Logger:     logger,
	})

	cvService := usecase.NewCVService(usecase.CVServiceDeps{
		CVs:       cvs,
		Files:     files,
		Owner:     owner,
		Extractor: extractor,
		Scanner:   scan.New(cfg.Clamd.Enabled, cfg.Clamd.Address),
		MaxBytes:  cfg.Generation.MaxCVBytes,
		Timeouts:  timeouts,
		Logger:    logger,
	})

	checks := map[string]api.HealthCheck{
		"database": sqlDB.PingContext,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		"storage":  files.Ping,
	}
	if cfg.Clamd.Enabled {
		clamdScanner := scan.NewClamdScanner(cfg.Clamd.Address)
		checks["clamd"] = func(context.Context) error { return clamdScanner.Ping() }
	}

	router := api.NewRouter(cfg.API, logger, checks)
	api.RegisterRoutes(router, api.Deps{
		Auth:          authService,
		Accounts:      usecase.NewAccountService(users, cfg.Generation.DefaultPDFCredits, cfg.Generation.DefaultTextCredits, logger),
		CVs:           cvService,
		Generator:     orchestrator,
		Letters:       usecase.NewLetterService(letters, files, owner),
		History:       history.NewService(historyRepo, files, owner, logger),
		Notifier:      notifier,
		Redis:         redisClient,
		Logger:        logger,
		Origins:       cfg.API.AllowedOrigins,
		GenerateLimit: cfg.API.GenerateLimitPerHour,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down api")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
