package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"cvlm/internal/auth"
	"cvlm/internal/domain"
	"cvlm/internal/ports"
)

type fakeTokens map[string]*auth.TokenClaims

func (f fakeTokens) ValidateToken(token string) (*auth.TokenClaims, error) {
	claims, ok := f[token]
	if !ok {
		return nil, errors.New("bad token")
	}
	return claims, nil
}

type fakeEvents struct {
	ch       chan ports.GenerationEvent
	userIDCh chan string
}

func (f *fakeEvents) Subscribe(_ context.Context, userID string) (<-chan ports.GenerationEvent, error) {
	f.userIDCh <- userID
	return f.ch, nil
}

func newWsServer(t *testing.T, events *fakeEvents) string {
	t.Helper()
	tokens := fakeTokens{
		"good":    {UserID: "user-1", TokenType: "access"},
		"refresh": {UserID: "user-1", TokenType: "refresh"},
	}
	h := NewWsHandler(events, tokens, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	r := gin.New()
	r.GET("/ws", h.HandleConnection)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dialWs(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestWsForwardsGenerationEvents(t *testing.T) {
	events := &fakeEvents{ch: make(chan ports.GenerationEvent, 1), userIDCh: make(chan string, 1)}
	conn := dialWs(t, newWsServer(t, events))

	if err := conn.WriteJSON(wsAuthMessage{Type: "auth", Token: "good"}); err != nil {
		t.Fatalf("write auth: %v", err)
	}
	var ready wsEnvelope
	if err := conn.ReadJSON(&ready); err != nil {
		t.Fatalf("read ready: %v", err)
	}
	if ready.Type != "ready" || ready.Event != nil {
		t.Fatalf("unexpected first message %+v", ready)
	}
	if got := <-events.userIDCh; got != "user-1" {
		t.Fatalf("subscribed for %q", got)
	}

	events.ch <- ports.GenerationEvent{Type: domain.ResourcePDF, Status: domain.StatusSuccess, HistoryID: "h1", LetterID: "l1"}
	var msg wsEnvelope
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if msg.Type != "generation" || msg.Event == nil || msg.Event.LetterID != "l1" || msg.Event.Status != domain.StatusSuccess {
		t.Fatalf("unexpected event %+v", msg)
	}

	close(events.ch)
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}
}

func TestWsRejectsBadAuth(t *testing.T) {
	cases := []struct {
		name string
		msg  any
	}{
		{"wrong type", wsAuthMessage{Type: "hello", Token: "good"}},
		{"unknown token", wsAuthMessage{Type: "auth", Token: "nope"}},
		{"refresh token", wsAuthMessage{Type: "auth", Token: "refresh"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events := &fakeEvents{ch: make(chan ports.GenerationEvent), userIDCh: make(chan string, 1)}
			conn := dialWs(t, newWsServer(t, events))

			if err := conn.WriteJSON(tc.msg); err != nil {
				t.Fatalf("write auth: %v", err)
			}
			_, _, err := conn.ReadMessage()
			if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
				t.Fatalf("expected policy violation close, got %v", err)
			}
			select {
			case id := <-events.userIDCh:
				t.Fatalf("unauthenticated connection subscribed for %q", id)
			default:
			}
		})
	}
}
