package worker

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"cvlm/internal/metrics"
	"cvlm/internal/tasks"
)

// NewServeMux 注册全部任务处理器，并挂上指标中间件。
func NewServeMux(cleanup *HistoryCleanupHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeHistoryCleanup, cleanup)
	return mux
}

// Queues 是 worker 监听的队列及权重。
func Queues() map[string]int {
	return map[string]int{
		"default":              3,
		tasks.QueueMaintenance: 1,
	}
}

// RegisterSchedules 按 cron 表达式登记周期任务，返回条目 ID。
func RegisterSchedules(scheduler *asynq.Scheduler, cleanupCron string, batch int) (string, error) {
	task, err := tasks.NewHistoryCleanupTask(batch, uuid.NewString())
	if err != nil {
		return "", fmt.Errorf("build cleanup task: %w", err)
	}
	entryID, err := scheduler.Register(cleanupCron, task)
	if err != nil {
		return "", fmt.Errorf("register cleanup schedule %q: %w", cleanupCron, err)
	}
	return entryID, nil
}
