package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cvlm/internal/domain"
)

type cvService interface {
	Upload(ctx context.Context, user domain.User, filename string, content []byte) (*domain.CV, error)
	List(ctx context.Context, user domain.User) ([]domain.CV, error)
	Delete(ctx context.Context, user domain.User, cvID string) error
	MaxBytes() int64
}

// CVHandler 负责简历上传、列表与删除。
type CVHandler struct {
	cvs cvService
}

func NewCVHandler(cvs cvService) *CVHandler {
	return &CVHandler{cvs: cvs}
}

type cvResponse struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	FileSize  int64     `json:"file_size"`
	HasText   bool      `json:"has_text"`
	CreatedAt time.Time `json:"created_at"`
}

func newCVResponse(cv domain.CV) cvResponse {
	return cvResponse{
		ID:        cv.ID,
		Filename:  cv.Filename,
		FileSize:  cv.FileSize,
		HasText:   cv.RawText != "",
		CreatedAt: cv.CreatedAt,
	}
}

// UploadCV 接收 multipart 字段 file 中的 PDF。
func (h *CVHandler) UploadCV(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	maxBytes := h.cvs.MaxBytes()
	// multipart 头部和边界需要额外空间。
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+1<<20)

	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			BadRequest(c, "file too large")
			return
		}
		BadRequest(c, "missing file")
		return
	}
	if file.Size > maxBytes {
		BadRequest(c, "file too large")
		return
	}

	reader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}
	defer reader.Close()

	content, err := io.ReadAll(io.LimitReader(reader, maxBytes+1))
	if err != nil {
		Internal(c, "failed to read file")
		return
	}

	cv, err := h.cvs.Upload(c.Request.Context(), user, file.Filename, content)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newCVResponse(*cv))
}

func (h *CVHandler) ListCVs(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	cvs, err := h.cvs.List(c.Request.Context(), user)
	if err != nil {
		RespondError(c, err)
		return
	}
	items := make([]cvResponse, 0, len(cvs))
	for _, cv := range cvs {
		items = append(items, newCVResponse(cv))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *CVHandler) DeleteCV(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.cvs.Delete(c.Request.Context(), user, c.Param("id")); err != nil {
		RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
