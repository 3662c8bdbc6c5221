package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"cvlm/internal/domain"
	"cvlm/internal/ownership"
	"cvlm/internal/ports"
)

// DefaultMaxCVBytes 是简历上传的默认大小上限。
const DefaultMaxCVBytes int64 = 10 << 20

// CVService 负责简历的上传、列表与删除。
type CVService struct {
	cvs       ports.CVRepository
	files     ports.FileStore
	owner     *ownership.Validator
	extractor ports.DocumentTextExtractor
	scanner   ports.UploadScanner
	maxBytes  int64
	timeouts  Timeouts
	logger    *slog.Logger
}

type CVServiceDeps struct {
	CVs       ports.CVRepository
	Files     ports.FileStore
	Owner     *ownership.Validator
	Extractor ports.DocumentTextExtractor
	Scanner   ports.UploadScanner
	MaxBytes  int64
	Timeouts  Timeouts
	Logger    *slog.Logger
}

func NewCVService(deps CVServiceDeps) *CVService {
	if deps.MaxBytes <= 0 {
		deps.MaxBytes = DefaultMaxCVBytes
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &CVService{
		cvs:       deps.CVs,
		files:     deps.Files,
		owner:     deps.Owner,
		extractor: deps.Extractor,
		scanner:   deps.Scanner,
		maxBytes:  deps.MaxBytes,
		timeouts:  deps.Timeouts,
		logger:    deps.Logger,
	}
}

// MaxBytes 返回允许的上传大小，HTTP 层据此限制请求体。
func (s *CVService) MaxBytes() int64 { return s.maxBytes }

// CVKey 返回简历在文件存储中的 key，与用户上传的文件名无关。
func CVKey(userID, cvID string) string {
	return fmt.Sprintf("cvs/%s/%s.pdf", userID, cvID)
}

// Upload 校验并保存一份 PDF 简历。文本抽取失败不会拒绝上传，生成时会再次尝试。
func (s *CVService) Upload(ctx context.Context, user domain.User, filename string, content []byte) (*domain.CV, error) {
	name := filepath.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return nil, domain.InvalidInput("filename is required")
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return nil, domain.InvalidInput("invalid file type, accepted: .pdf")
	}
	if len(content) == 0 {
		return nil, domain.InvalidInput("file is empty")
	}
	if int64(len(content)) > s.maxBytes {
		return nil, domain.InvalidInput("file too large, max %d MB", s.maxBytes>>20)
	}
	if http.DetectContentType(content) != "application/pdf" {
		return nil, domain.InvalidInput("file content is not a pdf")
	}

	log := s.logger.With(slog.String("user_id", user.ID), slog.String("filename", name))

	if s.scanner != nil {
		infected, signature, err := s.scanner.Scan(ctx, bytes.NewReader(content))
		if err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		if infected {
			log.Warn("cv upload rejected by antivirus", slog.String("signature", signature))
			return nil, domain.InvalidInput("malicious file detected")
		}
	}

	rawText := ""
	if s.extractor != nil {
		extractCtx, cancel := withTimeout(ctx, s.timeouts.Extract)
		text, err := s.extractor.Extract(extractCtx, content)
		cancel()
		if err != nil {
			log.Warn("cv text extraction failed at upload", slog.Any("error", err))
		} else {
			rawText = text
		}
	}

	cv := &domain.CV{
		ID:       uuid.NewString(),
		UserID:   user.ID,
		Filename: name,
		FileSize: int64(len(content)),
		RawText:  rawText,
	}
	cv.FilePath = CVKey(user.ID, cv.ID)

	storageCtx, cancel := withTimeout(ctx, s.timeouts.Storage)
	_, err := s.files.Save(storageCtx, cv.FilePath, bytes.NewReader(content), cv.FileSize, "application/pdf")
	cancel()
	if err != nil {
		return nil, &domain.Error{Kind: domain.KindPersistence, Message: "store cv file", Err: err}
	}

	if err := s.cvs.Create(ctx, cv); err != nil {
		// 记录写入失败时删除刚写入的对象。
		if _, delErr := s.files.Delete(context.WithoutCancel(ctx), cv.FilePath); delErr != nil {
			log.Warn("remove orphaned cv file failed", slog.String("key", cv.FilePath), slog.Any("error", delErr))
		}
		return nil, &domain.Error{Kind: domain.KindPersistence, Message: "insert cv", Err: err}
	}

	log.Info("cv uploaded", slog.String("cv_id", cv.ID), slog.Int64("size", cv.FileSize), slog.Bool("has_text", rawText != ""))
	return cv, nil
}

func (s *CVService) List(ctx context.Context, user domain.User) ([]domain.CV, error) {
	cvs, err := s.cvs.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list cvs: %w", err)
	}
	return cvs, nil
}

// Delete 在同一事务里删除记录和文件，文件删除失败时记录回滚。
// 归属校验不检查文件，文件已丢失的记录也能删除。
func (s *CVService) Delete(ctx context.Context, user domain.User, cvID string) error {
	cv, err := s.owner.CVRecord(ctx, cvID, user)
	if err != nil {
		return err
	}

	err = s.cvs.Delete(ctx, cv.ID, func(ctx context.Context) error {
		storageCtx, cancel := withTimeout(ctx, s.timeouts.Storage)
		defer cancel()
		if _, err := s.files.Delete(storageCtx, cv.FilePath); err != nil {
			return fmt.Errorf("delete cv file: %w", err)
		}
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, ports.ErrNoRows):
		return domain.NotFound("cv")
	default:
		return &domain.Error{Kind: domain.KindPersistence, Message: "delete cv", Err: err}
	}

	s.logger.Info("cv deleted", slog.String("user_id", user.ID), slog.String("cv_id", cv.ID))
	return nil
}
