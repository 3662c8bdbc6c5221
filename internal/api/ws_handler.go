package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"cvlm/internal/auth"
	"cvlm/internal/ports"
)

const (
	wsAuthTimeout  = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 5 * time.Second
)

type wsTokenValidator interface {
	ValidateToken(token string) (*auth.TokenClaims, error)
}

type generationEvents interface {
	Subscribe(ctx context.Context, userID string) (<-chan ports.GenerationEvent, error)
}

// WsHandler 鉴权 WebSocket 连接，并推送该用户的生成结果。
//
// 协议：客户端首条消息 {"type":"auth","token":...}；服务端回 {"type":"ready"}，
// 之后每个事件以 {"type":"generation","event":{...}} 下发。
type WsHandler struct {
	events         generationEvents
	authService    wsTokenValidator
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	allowedOrigins []string
	pingInterval   time.Duration
}

func NewWsHandler(events generationEvents, authService wsTokenValidator, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	h := &WsHandler{
		events:         events,
		authService:    authService,
		logger:         logger,
		allowedOrigins: allowedOrigins,
		pingInterval:   wsPingInterval,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

// 未配置白名单时只接受同源。
func (h *WsHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.allowedOrigins) == 0 {
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
	for _, allowed := range h.allowedOrigins {
		if strings.EqualFold(origin, strings.TrimRight(allowed, "/")) {
			return true
		}
	}
	return false
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type wsEnvelope struct {
	Type  string                 `json:"type"`
	Event *ports.GenerationEvent `json:"event,omitempty"`
}

// HandleConnection 升级连接，完成鉴权后转发事件直到任一端断开。
func (h *WsHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	log := h.logger.With(slog.String("client_ip", c.ClientIP()))

	userID, err := h.authenticate(conn)
	if err != nil {
		log.Warn("websocket authentication failed", slog.Any("error", err))
		return
	}
	log = log.With(slog.String("user_id", userID))

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	events, err := h.events.Subscribe(ctx, userID)
	if err != nil {
		writeClose(conn, websocket.CloseInternalServerErr, "notifications unavailable")
		log.Error("subscribe generation events failed", slog.Any("error", err))
		return
	}
	if err := writeEnvelope(conn, wsEnvelope{Type: "ready"}); err != nil {
		log.Info("websocket closed before ready", slog.Any("error", err))
		return
	}

	go h.discardInbound(conn, cancel)

	err = h.forward(ctx, conn, events)
	log.Info("websocket connection closed", slog.Any("reason", err))
}

// authenticate 在 wsAuthTimeout 内读取首条消息并校验访问令牌。
func (h *WsHandler) authenticate(conn *websocket.Conn) (string, error) {
	_ = conn.SetReadDeadline(time.Now().Add(wsAuthTimeout))

	var msg wsAuthMessage
	if err := conn.ReadJSON(&msg); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			writeClose(conn, websocket.ClosePolicyViolation, "auth timeout")
			return "", fmt.Errorf("auth timeout: %w", err)
		}
		writeClose(conn, websocket.ClosePolicyViolation, "invalid auth payload")
		return "", fmt.Errorf("read auth message: %w", err)
	}
	if msg.Type != "auth" || msg.Token == "" {
		writeClose(conn, websocket.ClosePolicyViolation, "auth required")
		return "", errors.New("first message is not an auth message")
	}

	claims, err := h.authService.ValidateToken(msg.Token)
	if err != nil {
		writeClose(conn, websocket.ClosePolicyViolation, "unauthorized")
		return "", fmt.Errorf("validate token: %w", err)
	}
	if claims.TokenType != "access" {
		writeClose(conn, websocket.ClosePolicyViolation, "access token required")
		return "", fmt.Errorf("invalid token type: %s", claims.TokenType)
	}
	return claims.UserID, nil
}

// discardInbound 丢弃鉴权后的客户端消息，连接断开或 pong 超时后取消 ctx。
func (h *WsHandler) discardInbound(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	idle := 2 * h.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(idle))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(idle))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

// forward 是连接上唯一的数据写入方。
func (h *WsHandler) forward(ctx context.Context, conn *websocket.Conn, events <-chan ports.GenerationEvent) error {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				writeClose(conn, websocket.CloseGoingAway, "notifications closed")
				return errors.New("event stream closed")
			}
			if err := writeEnvelope(conn, wsEnvelope{Type: "generation", Event: &event}); err != nil {
				return fmt.Errorf("write event: %w", err)
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return fmt.Errorf("write ping: %w", err)
			}
		}
	}
}

func writeEnvelope(conn *websocket.Conn, msg wsEnvelope) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(msg)
}

func writeClose(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteTimeout))
}
