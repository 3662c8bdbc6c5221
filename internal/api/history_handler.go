package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"cvlm/internal/domain"
	"cvlm/internal/history"
	"cvlm/internal/ports"
	"cvlm/internal/storage"
)

type historyService interface {
	List(ctx context.Context, user domain.User, filter ports.HistoryFilter) (history.Page, error)
	Stats(ctx context.Context, user domain.User) (ports.HistoryStats, error)
	Text(ctx context.Context, user domain.User, id string) (*domain.HistoryEntry, error)
	Delete(ctx context.Context, user domain.User, id string) error
	OpenFile(ctx context.Context, user domain.User, id string) (*history.Download, error)
	Export(ctx context.Context, user domain.User) (history.Export, error)
}

// HistoryHandler 负责生成历史的查询、导出、下载与删除。
type HistoryHandler struct {
	history historyService
	now     func() time.Time
}

func NewHistoryHandler(svc historyService) *HistoryHandler {
	return &HistoryHandler{history: svc, now: time.Now}
}

type historyItem struct {
	ID                  string               `json:"id"`
	Type                domain.ResourceKind  `json:"type"`
	Status              domain.HistoryStatus `json:"status"`
	JobTitle            *string              `json:"job_title"`
	CompanyName         *string              `json:"company_name"`
	JobURL              string               `json:"job_url"`
	CVFilename          string               `json:"cv_filename"`
	LetterID            *string              `json:"letter_id,omitempty"`
	HasText             bool                 `json:"has_text"`
	ErrorMessage        *string              `json:"error_message,omitempty"`
	Metadata            map[string]any       `json:"metadata,omitempty"`
	CreatedAt           time.Time            `json:"created_at"`
	FileExpiresAt       *time.Time           `json:"file_expires_at,omitempty"`
	IsDownloadable      bool                 `json:"is_downloadable"`
	DaysUntilExpiration *int                 `json:"days_until_expiration"`
}

func newHistoryItem(e domain.HistoryEntry, now time.Time) historyItem {
	return historyItem{
		ID:                  e.ID,
		Type:                e.Type,
		Status:              e.Status,
		JobTitle:            e.JobTitle,
		CompanyName:         e.CompanyName,
		JobURL:              e.JobURL,
		CVFilename:          e.CVFilename,
		LetterID:            e.LetterID,
		HasText:             e.TextContent != nil,
		ErrorMessage:        e.ErrorMessage,
		Metadata:            e.Metadata,
		CreatedAt:           e.CreatedAt,
		FileExpiresAt:       e.FileExpiresAt,
		IsDownloadable:      history.IsDownloadable(e, now),
		DaysUntilExpiration: e.DaysUntilExpiration(now),
	}
}

// ListHistory 支持 type、status、search、period_days、limit、offset 查询参数。
func (h *HistoryHandler) ListHistory(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	filter := ports.HistoryFilter{
		Type:   history.ParseType(c.Query("type")),
		Status: domain.HistoryStatus(c.Query("status")),
		Search: c.Query("search"),
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"period_days", &filter.PeriodDays},
		{"limit", &filter.Limit},
		{"offset", &filter.Offset},
	} {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			BadRequest(c, "invalid "+p.name)
			return
		}
		*p.dst = v
	}

	page, err := h.history.List(c.Request.Context(), user, filter)
	if err != nil {
		RespondError(c, err)
		return
	}

	now := h.now()
	items := make([]historyItem, 0, len(page.Items))
	for _, e := range page.Items {
		items = append(items, newHistoryItem(e, now))
	}
	c.JSON(http.StatusOK, gin.H{
		"items":  items,
		"total":  page.Total,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

func (h *HistoryHandler) GetStats(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	stats, err := h.history.Stats(c.Request.Context(), user)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ExportHistory 以 JSON 附件导出全部历史。
func (h *HistoryHandler) ExportHistory(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	export, err := h.history.Export(c.Request.Context(), user)
	if err != nil {
		RespondError(c, err)
		return
	}
	filename := "historique_generations_" + h.now().UTC().Format("20060102") + ".json"
	c.Header("Content-Disposition", storage.ContentDisposition(filename))
	c.JSON(http.StatusOK, export)
}

func (h *HistoryHandler) GetText(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	entry, err := h.history.Text(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":           entry.ID,
		"text":         deref(entry.TextContent),
		"company_name": entry.CompanyName,
		"job_title":    entry.JobTitle,
		"created_at":   entry.CreatedAt,
	})
}

// DownloadFile 返回历史记录中的 PDF，过期返回 410。
func (h *HistoryHandler) DownloadFile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	dl, err := h.history.OpenFile(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	defer dl.Body.Close()

	c.DataFromReader(http.StatusOK, -1, "application/pdf", dl.Body, map[string]string{
		"Content-Disposition": storage.ContentDisposition(dl.Filename),
	})
}

func (h *HistoryHandler) DeleteEntry(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.history.Delete(c.Request.Context(), user, c.Param("id")); err != nil {
		RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
