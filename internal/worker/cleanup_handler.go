package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"cvlm/internal/metrics"
	"cvlm/internal/tasks"
)

// expiredCleaner 由 history.Service 实现。
type expiredCleaner interface {
	CleanupExpired(ctx context.Context, batch int) (int, error)
}

// HistoryCleanupHandler 负责消费过期历史文件清理任务。
type HistoryCleanupHandler struct {
	cleaner      expiredCleaner
	defaultBatch int
	logger       *slog.Logger
}

// NewHistoryCleanupHandler 创建任务处理器。
func NewHistoryCleanupHandler(cleaner expiredCleaner, defaultBatch int, logger *slog.Logger) *HistoryCleanupHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryCleanupHandler{cleaner: cleaner, defaultBatch: defaultBatch, logger: logger}
}

// ProcessTask 实现 asynq.Handler。
// 一次最多处理 batch 条，剩余的留给下一次调度。
func (h *HistoryCleanupHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.HistoryCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("decode cleanup payload: %v: %w", err, asynq.SkipRetry)
	}

	batch := payload.Batch
	if batch <= 0 {
		batch = h.defaultBatch
	}
	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Int("batch", batch),
	)
	log.Info("starting expired history cleanup")

	removed, err := h.cleaner.CleanupExpired(ctx, batch)
	metrics.ExpiredFilesRemoved(removed)
	if err != nil {
		if isFinalAsynqAttempt(ctx) {
			log.Error("expired history cleanup gave up", slog.Any("error", err))
		} else {
			log.Warn("expired history cleanup failed, will retry", slog.Any("error", err))
		}
		return err
	}

	log.Info("expired history cleanup finished", slog.Int("removed", removed))
	return nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
