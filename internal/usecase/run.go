package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cvlm/internal/domain"
	"cvlm/internal/history"
	"cvlm/internal/metrics"
)

const cleanupTimeout = 30 * time.Second

type cleanupStep struct {
	name string
	fn   func(context.Context) error
}

// run 保存单次生成的状态，不在请求之间共享。
type run struct {
	o        *Orchestrator
	kind     domain.ResourceKind
	user     domain.User
	stage    domain.Stage
	attempt  history.Attempt
	cleanups []cleanupStep
	log      *slog.Logger
	started  time.Time
}

func (r *run) enter(stage domain.Stage) {
	r.stage = stage
	r.log.Debug("generation stage", slog.String("stage", string(stage)))
}

// call 在独立的 span 和超时下执行一个阶段。
func (r *run) call(ctx context.Context, stage domain.Stage, timeout time.Duration, fn func(context.Context) error) error {
	r.enter(stage)
	ctx, span := r.o.tracer.Start(ctx, "generation."+string(stage), trace.WithAttributes(
		attribute.String("generation.type", string(r.kind)),
	))
	defer span.End()

	callCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	metrics.ObserveStage(string(r.kind), string(stage), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// onFailure 登记失败时需要撤销的副作用，按登记的逆序执行。
func (r *run) onFailure(name string, fn func(context.Context) error) {
	r.cleanups = append(r.cleanups, cleanupStep{name: name, fn: fn})
}

func (r *run) release(ctx context.Context) {
	for i := len(r.cleanups) - 1; i >= 0; i-- {
		step := r.cleanups[i]
		stepCtx, cancel := withTimeout(ctx, cleanupTimeout)
		err := safeCall(stepCtx, step.fn)
		cancel()
		if err != nil {
			r.log.Warn("generation cleanup failed", slog.String("step", step.name), slog.Any("error", err))
		}
	}
	r.cleanups = nil
}

// reject 处理校验阶段的失败：此时没有任何副作用，也不写历史。
func (r *run) reject(err error) error {
	tagged := domain.StageError(r.stage, domain.KindOf(err), err)
	r.log.Info("generation rejected",
		slog.String("kind", string(tagged.Kind)),
		slog.String("reason", tagged.Error()),
	)
	metrics.ObserveGeneration(string(r.kind), "rejected", string(r.stage))
	r.enter(domain.StageFailed)
	return tagged
}

// fail 处理致命失败：逆序清理，尽力写一条失败历史，返回唯一的带标签错误。
func (r *run) fail(ctx context.Context, kind domain.ErrorKind, err error) error {
	failedAt := r.stage
	tagged := domain.StageError(failedAt, kind, err)
	r.log.Error("generation failed",
		slog.String("stage", string(failedAt)),
		slog.String("kind", string(tagged.Kind)),
		slog.Any("error", err),
	)

	r.release(ctx)

	attempt := r.attempt
	attempt.Status = domain.StatusFailed
	attempt.Err = tagged
	attempt.LetterID = ""
	attempt.FilePath = ""
	attempt.TextContent = ""
	attempt.Metadata = copyMetadata(r.attempt.Metadata)
	attempt.Metadata["failed_stage"] = string(failedAt)
	attempt.Metadata["duration_ms"] = time.Since(r.started).Milliseconds()
	r.o.recorder.Record(ctx, attempt)

	metrics.ObserveGeneration(string(r.kind), string(domain.StatusFailed), string(failedAt))
	r.enter(domain.StageFailed)
	return tagged
}

func (r *run) succeed() {
	r.cleanups = nil
	r.enter(domain.StageSucceeded)
	metrics.ObserveGeneration(string(r.kind), string(domain.StatusSuccess), string(domain.StageSucceeded))
	metrics.CreditCommitted(string(r.kind))
	r.log.Info("generation succeeded", slog.Duration("elapsed", time.Since(r.started)))
}

func copyMetadata(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}

// safeCall 把清理函数里的 panic 转成错误，清理失败不能掩盖原始错误。
func safeCall(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(ctx)
}
