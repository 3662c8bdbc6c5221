package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"cvlm/internal/auth"
	"cvlm/internal/domain"
	"cvlm/internal/errcode"
)

const (
	userIDKey = "userID"
	userKey   = "user"
)

type tokenValidator interface {
	ValidateToken(token string) (*auth.TokenClaims, error)
}

// UserResolver 根据令牌中的身份取得或创建用户。
type UserResolver interface {
	Resolve(ctx context.Context, userID, email string) (*domain.User, error)
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": errcode.Unauthorized})
}

// AuthMiddleware 校验访问令牌，读取最新的用户快照并注入上下文。
// 首次出现的用户会以默认额度创建。
func AuthMiddleware(tokens tokenValidator, users UserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c)
			return
		}

		claims, err := tokens.ValidateToken(parts[1])
		if err != nil {
			LoggerFromContext(c).Debug("reject access token", slog.Any("error", err))
			abortUnauthorized(c)
			return
		}

		user, err := users.Resolve(c.Request.Context(), claims.UserID, claims.Email)
		if err != nil {
			LoggerFromContext(c).Error("resolve user failed", slog.String("user_id", claims.UserID), slog.Any("error", err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": errcode.SystemError})
			return
		}

		c.Set(userIDKey, user.ID)
		c.Set(userKey, *user)
		c.Set(slogLoggerKey, LoggerFromContext(c).With(slog.String("user_id", user.ID)))
		c.Next()
	}
}

// CurrentUser 返回认证中间件写入的用户快照。
func CurrentUser(c *gin.Context) (domain.User, bool) {
	value, ok := c.Get(userKey)
	if !ok {
		return domain.User{}, false
	}
	user, ok := value.(domain.User)
	return user, ok
}

// SetUser 把用户写入上下文，供测试与内部调用使用。
func SetUser(c *gin.Context, user domain.User) {
	c.Set(userIDKey, user.ID)
	c.Set(userKey, user)
}
