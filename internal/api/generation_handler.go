package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cvlm/internal/api/middleware"
	"cvlm/internal/domain"
	"cvlm/internal/ports"
	"cvlm/internal/usecase"
)

const notifyTimeout = 3 * time.Second

type generator interface {
	GenerateLetter(ctx context.Context, user domain.User, req usecase.LetterRequest) (*usecase.LetterResult, error)
	GenerateText(ctx context.Context, user domain.User, req usecase.TextRequest) (*usecase.TextResult, error)
}

// GenerationHandler 同步执行生成流程，结束后推送一条通知。
type GenerationHandler struct {
	orchestrator generator
	notifier     ports.Notifier
}

// NewGenerationHandler 构造处理器，notifier 可以为 nil。
func NewGenerationHandler(orchestrator generator, notifier ports.Notifier) *GenerationHandler {
	return &GenerationHandler{orchestrator: orchestrator, notifier: notifier}
}

type generateLetterRequest struct {
	CVID        string `json:"cv_id" binding:"required"`
	JobURL      string `json:"job_url" binding:"required"`
	LLMProvider string `json:"llm_provider"`
}

type generateTextRequest struct {
	CVID        string `json:"cv_id" binding:"required"`
	JobURL      string `json:"job_url" binding:"required"`
	TextType    string `json:"text_type"`
	LLMProvider string `json:"llm_provider"`
}

type letterCreatedResponse struct {
	LetterID    string  `json:"letter_id"`
	Filename    string  `json:"filename"`
	DownloadURL string  `json:"download_url"`
	HistoryID   *string `json:"history_id"`
	PDFCredits  int     `json:"pdf_credits"`
	TextCredits int     `json:"text_credits"`
}

type textResponse struct {
	Text        string  `json:"text"`
	TextType    string  `json:"text_type"`
	CVFilename  string  `json:"cv_filename"`
	HistoryID   *string `json:"history_id"`
	PDFCredits  int     `json:"pdf_credits"`
	TextCredits int     `json:"text_credits"`
}

// GenerateLetter 生成 PDF 求职信。成功后额度已经扣减。
func (h *GenerationHandler) GenerateLetter(c *gin.Context) {
	var req generateLetterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	user, ok := currentUser(c)
	if !ok {
		return
	}

	res, err := h.orchestrator.GenerateLetter(c.Request.Context(), user, usecase.LetterRequest{
		CVID:     req.CVID,
		JobURL:   req.JobURL,
		Provider: req.LLMProvider,
	})
	if err != nil {
		h.notifyFailure(c, user, domain.ResourcePDF, err)
		RespondError(c, err)
		return
	}

	historyID := historyIDOf(res.History)
	h.notify(c, user.ID, ports.GenerationEvent{
		Type:      domain.ResourcePDF,
		Status:    domain.StatusSuccess,
		HistoryID: deref(historyID),
		LetterID:  res.Letter.ID,
	})

	c.JSON(http.StatusCreated, letterCreatedResponse{
		LetterID:    res.Letter.ID,
		Filename:    res.DownloadName,
		DownloadURL: "/v1/letters/" + res.Letter.ID + "/download",
		HistoryID:   historyID,
		PDFCredits:  res.User.PDFCredits,
		TextCredits: res.User.TextCredits,
	})
}

// GenerateText 生成纯文本回答。
func (h *GenerationHandler) GenerateText(c *gin.Context) {
	var req generateTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if req.TextType == "" {
		req.TextType = usecase.TextTypeWhyJoin
	}

	res, err := h.orchestrator.GenerateText(c.Request.Context(), user, usecase.TextRequest{
		CVID:     req.CVID,
		JobURL:   req.JobURL,
		TextType: req.TextType,
		Provider: req.LLMProvider,
	})
	if err != nil {
		h.notifyFailure(c, user, domain.ResourceText, err)
		RespondError(c, err)
		return
	}

	historyID := historyIDOf(res.History)
	h.notify(c, user.ID, ports.GenerationEvent{
		Type:      domain.ResourceText,
		Status:    domain.StatusSuccess,
		HistoryID: deref(historyID),
	})

	c.JSON(http.StatusOK, textResponse{
		Text:        res.Text,
		TextType:    req.TextType,
		CVFilename:  res.CVFilename,
		HistoryID:   historyID,
		PDFCredits:  res.User.PDFCredits,
		TextCredits: res.User.TextCredits,
	})
}

// notifyFailure 只为真正开始执行过的流程推送失败事件，校验拒绝不推送。
func (h *GenerationHandler) notifyFailure(c *gin.Context, user domain.User, kind domain.ResourceKind, err error) {
	var de *domain.Error
	if !errors.As(err, &de) || de.Stage == "" || de.Stage == domain.StageValidating {
		return
	}
	h.notify(c, user.ID, ports.GenerationEvent{Type: kind, Status: domain.StatusFailed})
}

func (h *GenerationHandler) notify(c *gin.Context, userID string, event ports.GenerationEvent) {
	if h.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), notifyTimeout)
	defer cancel()
	if err := h.notifier.NotifyGeneration(ctx, userID, event); err != nil {
		middleware.LoggerFromContext(c).Warn("publish generation notification failed", slog.Any("error", err))
	}
}

func historyIDOf(entry *domain.HistoryEntry) *string {
	if entry == nil || entry.ID == "" {
		return nil
	}
	id := entry.ID
	return &id
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
