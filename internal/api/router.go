package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cvlm/internal/api/middleware"
	"cvlm/internal/config"
	"cvlm/internal/metrics"
)

// NewRouter 构建 Gin 路由引擎，挂载公共中间件、健康检查与指标端点。
func NewRouter(cfg config.APIConfig, logger *slog.Logger, checks map[string]HealthCheck) *gin.Engine {
	router := gin.New()
	if cfg.MaxMultipartMemoryMiB > 0 {
		router.MaxMultipartMemory = int64(cfg.MaxMultipartMemoryMiB) << 20
	}
	router.Use(
		gin.Recovery(),
		middleware.CorrelationIDMiddleware(),
		middleware.SlogLoggerMiddleware(logger),
		metrics.GinMiddleware(),
		middleware.CORSMiddleware(cfg.AllowedOrigins),
	)

	router.GET("/healthz", HealthHandler(checks))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
