package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cvlm/internal/domain"
	"cvlm/internal/storage"
	"cvlm/internal/usecase"
)

type letterService interface {
	List(ctx context.Context, user domain.User) ([]domain.Letter, error)
	Download(ctx context.Context, user domain.User, letterID string) (*usecase.LetterFile, error)
	Link(ctx context.Context, user domain.User, letterID string) (string, time.Time, error)
}

// LetterHandler 负责求职信的列表与下载。
type LetterHandler struct {
	letters letterService
}

func NewLetterHandler(letters letterService) *LetterHandler {
	return &LetterHandler{letters: letters}
}

type letterListItem struct {
	ID          string    `json:"id"`
	CVID        string    `json:"cv_id"`
	JobOfferURL string    `json:"job_offer_url"`
	Filename    string    `json:"filename"`
	FileSize    int64     `json:"file_size"`
	LLMProvider string    `json:"llm_provider"`
	CreatedAt   time.Time `json:"created_at"`
}

func (h *LetterHandler) ListLetters(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	letters, err := h.letters.List(c.Request.Context(), user)
	if err != nil {
		RespondError(c, err)
		return
	}
	items := make([]letterListItem, 0, len(letters))
	for _, l := range letters {
		items = append(items, letterListItem{
			ID:          l.ID,
			CVID:        l.CVID,
			JobOfferURL: l.JobOfferURL,
			Filename:    l.Filename,
			FileSize:    l.FileSize,
			LLMProvider: l.LLMProvider,
			CreatedAt:   l.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// DownloadLetter 以附件形式返回 PDF。
func (h *LetterHandler) DownloadLetter(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	file, err := h.letters.Download(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	defer file.Body.Close()

	size := file.Size
	if size <= 0 {
		size = -1
	}
	c.DataFromReader(http.StatusOK, size, "application/pdf", file.Body, map[string]string{
		"Content-Disposition": storage.ContentDisposition(file.Filename),
	})
}

// GetDownloadLink 生成求职信的预签名下载链接。
func (h *LetterHandler) GetDownloadLink(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	link, expires, err := h.letters.Link(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": link, "expires_at": expires.UTC()})
}
