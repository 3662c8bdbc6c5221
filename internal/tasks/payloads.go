package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保调度器与消费者一致。
const (
	TypeHistoryCleanup = "history:cleanup_expired"
)

// QueueMaintenance 是清理类任务使用的队列。
const QueueMaintenance = "maintenance"

// HistoryCleanupPayload 描述一次过期文件清理。Batch 为 0 时由 worker 使用配置值。
type HistoryCleanupPayload struct {
	Batch         int    `json:"batch"`
	CorrelationID string `json:"correlation_id"`
}

// NewHistoryCleanupTask 构造一个过期历史文件清理任务。
func NewHistoryCleanupTask(batch int, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(HistoryCleanupPayload{
		Batch:         batch,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeHistoryCleanup, payload, asynq.Queue(QueueMaintenance), asynq.MaxRetry(3)), nil
}
