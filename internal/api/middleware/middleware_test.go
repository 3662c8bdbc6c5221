package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"cvlm/internal/auth"
	"cvlm/internal/domain"
)

type fakeTokens struct{}

func (fakeTokens) ValidateToken(token string) (*auth.TokenClaims, error) {
	if token != "good" {
		return nil, errors.New("bad token")
	}
	return &auth.TokenClaims{UserID: "u1", Email: "u1@example.com", TokenType: "access"}, nil
}

type fakeResolver struct {
	err error
}

func (f fakeResolver) Resolve(_ context.Context, userID, email string) (*domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.User{ID: userID, Email: email, PDFCredits: 2, TextCredits: 1}, nil
}

func newEngine(resolver fakeResolver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CorrelationIDMiddleware(), AuthMiddleware(fakeTokens{}, resolver))
	r.GET("/me", func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": user.ID, "pdf": user.PDFCredits})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	cases := []struct {
		name   string
		header string
		res    fakeResolver
		want   int
	}{
		{"missing header", "", fakeResolver{}, http.StatusUnauthorized},
		{"wrong scheme", "Basic good", fakeResolver{}, http.StatusUnauthorized},
		{"bad token", "Bearer nope", fakeResolver{}, http.StatusUnauthorized},
		{"resolver failure", "Bearer good", fakeResolver{err: errors.New("db down")}, http.StatusInternalServerError},
		{"ok", "Bearer good", fakeResolver{}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			newEngine(tc.res).ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("expected %d got %d body=%s", tc.want, w.Code, w.Body.String())
			}
			if w.Header().Get("X-Correlation-ID") == "" {
				t.Fatalf("missing correlation id header")
			}
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://app.example.com/"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("unexpected allow origin %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign origin must not be allowed, got %q", got)
	}
}
