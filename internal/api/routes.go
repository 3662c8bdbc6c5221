package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"cvlm/internal/api/middleware"
	"cvlm/internal/auth"
	"cvlm/internal/notify"
	"cvlm/internal/ports"
)

// Deps 汇总路由注册所需的服务。
type Deps struct {
	Auth          *auth.AuthService
	Accounts      middleware.UserResolver
	CVs           cvService
	Generator     generator
	Letters       letterService
	History       historyService
	Notifier      ports.Notifier
	Redis         *redis.Client
	Logger        *slog.Logger
	Origins       []string
	GenerateLimit int
}

// RegisterRoutes 注册 /v1 下的业务路由。
func RegisterRoutes(router *gin.Engine, deps Deps) {
	cvHandler := NewCVHandler(deps.CVs)
	generationHandler := NewGenerationHandler(deps.Generator, deps.Notifier)
	letterHandler := NewLetterHandler(deps.Letters)
	historyHandler := NewHistoryHandler(deps.History)

	authMiddleware := middleware.AuthMiddleware(deps.Auth, deps.Accounts)
	var counter redisRateCounter
	var wsHandler *WsHandler
	if deps.Redis != nil {
		counter = deps.Redis
		wsHandler = NewWsHandler(notify.NewSubscriber(deps.Redis, deps.Logger), deps.Auth, deps.Logger, deps.Origins)
	}
	rateLimit := GenerationRateLimit(counter, deps.GenerateLimit)

	v1 := router.Group("/v1")
	{
		if wsHandler != nil {
			v1.GET("/ws", wsHandler.HandleConnection)
		}

		authed := v1.Group("")
		authed.Use(authMiddleware)
		{
			authed.GET("/me", GetMe)

			authed.POST("/cvs", cvHandler.UploadCV)
			authed.GET("/cvs", cvHandler.ListCVs)
			authed.DELETE("/cvs/:id", cvHandler.DeleteCV)

			authed.POST("/letters", rateLimit, generationHandler.GenerateLetter)
			authed.GET("/letters", letterHandler.ListLetters)
			authed.GET("/letters/:id/download", letterHandler.DownloadLetter)
			authed.GET("/letters/:id/link", letterHandler.GetDownloadLink)

			authed.POST("/texts", rateLimit, generationHandler.GenerateText)

			authed.GET("/history", historyHandler.ListHistory)
			authed.GET("/history/stats", historyHandler.GetStats)
			authed.GET("/history/export", historyHandler.ExportHistory)
			authed.GET("/history/:id/text", historyHandler.GetText)
			authed.GET("/history/:id/download", historyHandler.DownloadFile)
			authed.DELETE("/history/:id", historyHandler.DeleteEntry)
		}
	}
}
