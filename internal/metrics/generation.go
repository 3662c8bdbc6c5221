package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "runs_total",
			Help:      "生成流程结果计数，按类型、结果和失败阶段区分。",
		},
		[]string{"type", "status", "stage"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "stage_duration_seconds",
			Help:      "生成流程各阶段耗时（秒）。",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 40, 90},
		},
		[]string{"type", "stage"},
	)

	creditsCommitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credits",
			Name:      "committed_total",
			Help:      "成功扣减的额度次数。",
		},
		[]string{"type"},
	)

	expiredFilesRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "expired_files_removed_total",
			Help:      "清理任务删除的过期文件数量。",
		},
	)
)

// ObserveGeneration 记录一次生成流程的最终结果，成功时 stage 为 succeeded。
func ObserveGeneration(kind, status, stage string) {
	generationTotal.WithLabelValues(kind, status, stage).Inc()
}

func ObserveStage(kind, stage string, elapsed time.Duration) {
	stageDuration.WithLabelValues(kind, stage).Observe(elapsed.Seconds())
}

func CreditCommitted(kind string) {
	creditsCommitted.WithLabelValues(kind).Inc()
}

func ExpiredFilesRemoved(n int) {
	if n > 0 {
		expiredFilesRemoved.Add(float64(n))
	}
}
