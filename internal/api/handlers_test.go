package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"cvlm/internal/api/middleware"
	"cvlm/internal/domain"
	"cvlm/internal/errcode"
	"cvlm/internal/history"
	"cvlm/internal/ports"
	"cvlm/internal/usecase"
)

var testUser = domain.User{ID: "user-1", Email: "user@example.com", PDFCredits: 3, TextCredits: 2}

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestEngine 注入固定用户，跳过令牌校验。
func newTestEngine() *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		middleware.SetUser(c, testUser)
		c.Next()
	})
	return r
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return body
}

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   int
	}{
		{"not found", domain.NotFound("cv"), http.StatusNotFound, errcode.ResourceMissing},
		{"denied", domain.AccessDenied("cv"), http.StatusForbidden, errcode.AccessDenied},
		{"invalid", domain.InvalidInput("bad url"), http.StatusBadRequest, errcode.InvalidInput},
		{"pdf credits", domain.InsufficientCredits(domain.ResourcePDF), http.StatusPaymentRequired, errcode.InsufficientPDFCredits},
		{"text credits", domain.InsufficientCredits(domain.ResourceText), http.StatusPaymentRequired, errcode.InsufficientTextCredits},
		{"gone", domain.Gone("expired"), http.StatusGone, errcode.Gone},
		{"stage failure", domain.StageError(domain.StageRendering, domain.KindRender, errors.New("chrome crashed")), http.StatusInternalServerError, errcode.GenerationFailed},
		{"plain error", errors.New("db exploded"), http.StatusInternalServerError, errcode.SystemError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/x", func(c *gin.Context) { RespondError(c, tc.err) })
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

			if w.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, w.Code)
			}
			body := decodeBody(t, w)
			if int(body["code"].(float64)) != tc.code {
				t.Fatalf("expected code %d got %v", tc.code, body["code"])
			}
			if tc.status == http.StatusInternalServerError && strings.Contains(w.Body.String(), "exploded") {
				t.Fatalf("internal detail leaked: %s", w.Body.String())
			}
		})
	}
}

type fakeCounter struct {
	mu      sync.Mutex
	counts  map[string]int64
	err     error
	expires int
}

func (f *fakeCounter) Incr(_ context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeCounter) Expire(_ context.Context, _ string, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	f.expires++
	f.mu.Unlock()
	return redis.NewBoolResult(true, nil)
}

func TestGenerationRateLimit(t *testing.T) {
	counter := &fakeCounter{}
	r := newTestEngine()
	r.POST("/gen", GenerationRateLimit(counter, 2), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/gen", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}
	if counter.expires != 1 {
		t.Fatalf("ttl should be set once, got %d", counter.expires)
	}
}

func TestGenerationRateLimitFailsOpen(t *testing.T) {
	counter := &fakeCounter{err: errors.New("redis down")}
	r := newTestEngine()
	r.POST("/gen", GenerationRateLimit(counter, 1), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/gen", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 got %d", i, w.Code)
		}
	}
}

type fakeGenerator struct {
	letterErr error
	textErr   error
	lastText  usecase.TextRequest
}

func (f *fakeGenerator) GenerateLetter(_ context.Context, user domain.User, req usecase.LetterRequest) (*usecase.LetterResult, error) {
	if f.letterErr != nil {
		return nil, f.letterErr
	}
	user.PDFCredits--
	return &usecase.LetterResult{
		Letter:       domain.Letter{ID: "letter-1", UserID: user.ID, CVID: req.CVID},
		History:      &domain.HistoryEntry{ID: "hist-1"},
		User:         user,
		DownloadName: "Acme_Dev.pdf",
	}, nil
}

func (f *fakeGenerator) GenerateText(_ context.Context, user domain.User, req usecase.TextRequest) (*usecase.TextResult, error) {
	f.lastText = req
	if f.textErr != nil {
		return nil, f.textErr
	}
	user.TextCredits--
	return &usecase.TextResult{Text: "Parce que.", CVFilename: "cv.pdf", User: user}, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []ports.GenerationEvent
}

func (f *fakeNotifier) NotifyGeneration(_ context.Context, _ string, event ports.GenerationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func postJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func newGenerationEngine(gen *fakeGenerator, notifier ports.Notifier) *gin.Engine {
	h := NewGenerationHandler(gen, notifier)
	r := newTestEngine()
	r.POST("/letters", h.GenerateLetter)
	r.POST("/texts", h.GenerateText)
	return r
}

func TestGenerateLetterSuccess(t *testing.T) {
	notifier := &fakeNotifier{}
	r := newGenerationEngine(&fakeGenerator{}, notifier)

	w := postJSON(r, "/letters", `{"cv_id":"cv-1","job_url":"https://example.com/job"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["download_url"] != "/v1/letters/letter-1/download" {
		t.Fatalf("unexpected download url %v", body["download_url"])
	}
	if body["history_id"] != "hist-1" {
		t.Fatalf("unexpected history id %v", body["history_id"])
	}
	if int(body["pdf_credits"].(float64)) != testUser.PDFCredits-1 {
		t.Fatalf("unexpected pdf credits %v", body["pdf_credits"])
	}
	if len(notifier.events) != 1 || notifier.events[0].Status != domain.StatusSuccess || notifier.events[0].LetterID != "letter-1" {
		t.Fatalf("unexpected events %+v", notifier.events)
	}
}

func TestGenerateLetterBadBody(t *testing.T) {
	notifier := &fakeNotifier{}
	r := newGenerationEngine(&fakeGenerator{}, notifier)

	w := postJSON(r, "/letters", `{"cv_id":""}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", w.Code)
	}
	if len(notifier.events) != 0 {
		t.Fatalf("no event expected, got %+v", notifier.events)
	}
}

func TestGenerateLetterFailureNotifications(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		notices int
	}{
		{"out of credits", domain.StageError(domain.StageValidating, domain.KindInsufficientCredits, domain.InsufficientCredits(domain.ResourcePDF)), http.StatusPaymentRequired, 0},
		{"render failure", domain.StageError(domain.StageRendering, domain.KindRender, errors.New("boom")), http.StatusInternalServerError, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			notifier := &fakeNotifier{}
			r := newGenerationEngine(&fakeGenerator{letterErr: tc.err}, notifier)

			w := postJSON(r, "/letters", `{"cv_id":"cv-1","job_url":"https://example.com/job"}`)
			if w.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, w.Code)
			}
			if len(notifier.events) != tc.notices {
				t.Fatalf("expected %d events got %+v", tc.notices, notifier.events)
			}
			if tc.notices > 0 && notifier.events[0].Status != domain.StatusFailed {
				t.Fatalf("expected failed event, got %+v", notifier.events[0])
			}
		})
	}
}

func TestGenerateTextDefaultsType(t *testing.T) {
	gen := &fakeGenerator{}
	r := newGenerationEngine(gen, nil)

	w := postJSON(r, "/texts", `{"cv_id":"cv-1","job_url":"https://example.com/job"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	if gen.lastText.TextType != usecase.TextTypeWhyJoin {
		t.Fatalf("expected default text type, got %q", gen.lastText.TextType)
	}
	body := decodeBody(t, w)
	if body["text"] != "Parce que." || body["history_id"] != nil {
		t.Fatalf("unexpected body %v", body)
	}
}

type fakeHistory struct {
	filter  ports.HistoryFilter
	entries []domain.HistoryEntry
	openErr error
}

func (f *fakeHistory) List(_ context.Context, _ domain.User, filter ports.HistoryFilter) (history.Page, error) {
	f.filter = filter
	return history.Page{Items: f.entries, Total: int64(len(f.entries)), Limit: 20, Offset: filter.Offset}, nil
}

func (f *fakeHistory) Stats(context.Context, domain.User) (ports.HistoryStats, error) {
	return ports.HistoryStats{Total: int64(len(f.entries))}, nil
}

func (f *fakeHistory) Text(context.Context, domain.User, string) (*domain.HistoryEntry, error) {
	return nil, domain.NotFound("history entry")
}

func (f *fakeHistory) Delete(context.Context, domain.User, string) error { return nil }

func (f *fakeHistory) OpenFile(context.Context, domain.User, string) (*history.Download, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &history.Download{Body: io.NopCloser(bytes.NewReader([]byte("%PDF-1.4"))), Filename: "Acme_Dev.pdf"}, nil
}

func (f *fakeHistory) Export(_ context.Context, user domain.User) (history.Export, error) {
	return history.Export{UserID: user.ID}, nil
}

func newHistoryEngine(svc *fakeHistory, now time.Time) *gin.Engine {
	h := NewHistoryHandler(svc)
	h.now = func() time.Time { return now }
	r := newTestEngine()
	r.GET("/history", h.ListHistory)
	r.GET("/history/export", h.ExportHistory)
	r.GET("/history/:id/text", h.GetText)
	r.GET("/history/:id/download", h.DownloadFile)
	r.DELETE("/history/:id", h.DeleteEntry)
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestListHistoryParsesFilter(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	expires := now.Add(10 * 24 * time.Hour)
	path := "letters/a.pdf"
	svc := &fakeHistory{entries: []domain.HistoryEntry{{
		ID: "h1", Type: domain.ResourcePDF, Status: domain.StatusSuccess,
		FilePath: &path, FileExpiresAt: &expires, CreatedAt: now,
	}}}
	r := newHistoryEngine(svc, now)

	w := get(r, "/history?type=pdf&status=success&search=acme&period_days=7&limit=5&offset=10")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	want := ports.HistoryFilter{Type: domain.ResourcePDF, Status: domain.StatusSuccess, Search: "acme", PeriodDays: 7, Limit: 5, Offset: 10}
	if svc.filter != want {
		t.Fatalf("unexpected filter %+v", svc.filter)
	}

	body := decodeBody(t, w)
	items := body["items"].([]any)
	item := items[0].(map[string]any)
	if item["is_downloadable"] != true || int(item["days_until_expiration"].(float64)) != 10 {
		t.Fatalf("unexpected item %v", item)
	}
}

func TestListHistoryRejectsBadNumbers(t *testing.T) {
	r := newHistoryEngine(&fakeHistory{}, time.Now())
	for _, q := range []string{"limit=abc", "offset=-1", "period_days=1.5"} {
		w := get(r, "/history?"+q)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", q, w.Code)
		}
	}
}

func TestHistoryDownload(t *testing.T) {
	r := newHistoryEngine(&fakeHistory{}, time.Now())
	w := get(r, "/history/h1/download")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "Acme_Dev.pdf") {
		t.Fatalf("unexpected disposition %q", cd)
	}

	r = newHistoryEngine(&fakeHistory{openErr: domain.Gone("file expired")}, time.Now())
	if w := get(r, "/history/h1/download"); w.Code != http.StatusGone {
		t.Fatalf("expected 410 got %d", w.Code)
	}
}

func TestHistoryExportAndText(t *testing.T) {
	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	r := newHistoryEngine(&fakeHistory{}, now)

	w := get(r, "/history/export")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "historique_generations_20250304.json") {
		t.Fatalf("unexpected disposition %q", cd)
	}

	if w := get(r, "/history/missing/text"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodDelete, "/history/h1", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", w.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	r := gin.New()
	r.GET("/ok", HealthHandler(map[string]HealthCheck{
		"db": func(context.Context) error { return nil },
	}))
	r.GET("/bad", HealthHandler(map[string]HealthCheck{
		"db":    func(context.Context) error { return nil },
		"redis": func(context.Context) error { return fmt.Errorf("dial tcp: refused") },
	}))

	if w := get(r, "/ok"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	w := get(r, "/bad")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "degraded" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestGetMeRequiresUser(t *testing.T) {
	r := gin.New()
	r.GET("/me", GetMe)
	if w := get(r, "/me"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", w.Code)
	}

	r = newTestEngine()
	r.GET("/me", GetMe)
	w := get(r, "/me")
	body := decodeBody(t, w)
	if body["id"] != testUser.ID || int(body["pdf_credits"].(float64)) != testUser.PDFCredits {
		t.Fatalf("unexpected body %v", body)
	}
}
