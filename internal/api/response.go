package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"cvlm/internal/api/middleware"
	"cvlm/internal/domain"
	"cvlm/internal/errcode"
)

func Error(c *gin.Context, status, code int, msg string) {
	c.JSON(status, gin.H{"error": msg, "code": code})
}

func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": errcode.Unauthorized})
}

func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, errcode.InvalidInput, msg) }
func NotFound(c *gin.Context, msg string)   { Error(c, http.StatusNotFound, errcode.ResourceMissing, msg) }
func Internal(c *gin.Context, msg string)   { Error(c, http.StatusInternalServerError, errcode.SystemError, msg) }

// RespondError 把业务错误映射为稳定的状态码与错误码。
// 5xx 只返回通用消息，细节写入请求日志。
func RespondError(c *gin.Context, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		middleware.LoggerFromContext(c).Error("request failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	msg := de.Message
	if msg == "" {
		msg = string(de.Kind)
	}

	switch de.Kind {
	case domain.KindNotFound:
		Error(c, http.StatusNotFound, errcode.ResourceMissing, msg)
	case domain.KindAccessDenied:
		Error(c, http.StatusForbidden, errcode.AccessDenied, msg)
	case domain.KindInvalidInput:
		Error(c, http.StatusBadRequest, errcode.InvalidInput, msg)
	case domain.KindInsufficientCredits:
		code := errcode.InsufficientPDFCredits
		if de.Credit == domain.ResourceText {
			code = errcode.InsufficientTextCredits
		}
		Error(c, http.StatusPaymentRequired, code, msg)
	case domain.KindGone:
		Error(c, http.StatusGone, errcode.Gone, msg)
	default:
		middleware.LoggerFromContext(c).Error("request failed",
			slog.String("kind", string(de.Kind)),
			slog.String("stage", string(de.Stage)),
			slog.Any("error", err),
		)
		if de.Stage != "" {
			Error(c, http.StatusInternalServerError, errcode.GenerationFailed, "generation failed")
			return
		}
		Internal(c, "internal error")
	}
}

// currentUser 取出认证中间件写入的用户，缺失时直接返回 401。
func currentUser(c *gin.Context) (domain.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		AbortUnauthorized(c)
	}
	return user, ok
}
