package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"

	"cvlm/internal/config"
)

// New 根据配置构建全局 slog.Logger。
// 配置了 Sentry DSN 时，Error 级别的日志会同时上报到 Sentry。
// 返回的 flush 需要在进程退出前调用。
func New(cfg config.LogConfig, service string) (*slog.Logger, func(), error) {
	return newLogger(os.Stdout, cfg, service)
}

func newLogger(w io.Writer, cfg config.LogConfig, service string) (*slog.Logger, func(), error) {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var base slog.Handler
	switch cfg.Format {
	case "text":
		base = slog.NewTextHandler(w, opts)
	default:
		base = slog.NewJSONHandler(w, opts)
	}

	handler := base
	flush := func() {}
	if dsn := strings.TrimSpace(cfg.SentryDSN); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Environment: cfg.Environment,
			ServerName:  service,
		}); err != nil {
			return nil, flush, fmt.Errorf("init sentry: %w", err)
		}
		handler = slogmulti.Fanout(base, slogsentry.Option{Level: slog.LevelError}.NewSentryHandler())
		flush = func() { sentry.Flush(2 * time.Second) }
	}

	logger := slog.New(handler).With(slog.String("service", service))
	slog.SetDefault(logger)
	return logger, flush, nil
}

// ParseLevel 将字符串级别转换为 slog.Level，未知值回退到 Info。
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
