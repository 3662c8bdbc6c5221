package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestGinMiddleware_RecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/v1/letters/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/letters/abc", nil))

	got := testutil.ToFloat64(requestTotal.WithLabelValues(http.MethodGet, "/v1/letters/:id", "204"))
	if got != 1 {
		t.Fatalf("requests_total = %v, want 1", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if got := testutil.ToFloat64(requestTotal.WithLabelValues(http.MethodGet, "unmatched", "404")); got != 1 {
		t.Fatalf("unmatched requests_total = %v, want 1", got)
	}
}

func TestGenerationCounters(t *testing.T) {
	ObserveGeneration("pdf", "failed", "rendering")
	ObserveGeneration("pdf", "failed", "rendering")
	if got := testutil.ToFloat64(generationTotal.WithLabelValues("pdf", "failed", "rendering")); got != 2 {
		t.Fatalf("runs_total = %v, want 2", got)
	}

	CreditCommitted("text")
	if got := testutil.ToFloat64(creditsCommitted.WithLabelValues("text")); got != 1 {
		t.Fatalf("committed_total = %v, want 1", got)
	}

	before := testutil.ToFloat64(expiredFilesRemoved)
	ExpiredFilesRemoved(0)
	ExpiredFilesRemoved(3)
	if got := testutil.ToFloat64(expiredFilesRemoved) - before; got != 3 {
		t.Fatalf("expired_files_removed_total delta = %v, want 3", got)
	}

	ObserveStage("pdf", "generating", 2*time.Second)
}
