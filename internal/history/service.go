package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"cvlm/internal/domain"
	"cvlm/internal/ownership"
	"cvlm/internal/ports"
)

// Service 提供历史记录的查询、下载、导出与过期清理。
type Service struct {
	repo   ports.HistoryRepository
	files  ports.FileStore
	owner  *ownership.Validator
	now    func() time.Time
	logger *slog.Logger
}

func NewService(repo ports.HistoryRepository, files ports.FileStore, owner *ownership.Validator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, files: files, owner: owner, now: time.Now, logger: logger}
}

// WithClock 替换时间源。
func (s *Service) WithClock(now func() time.Time) *Service {
	cp := *s
	cp.now = now
	return &cp
}

// Page 是一页历史记录及总数。
type Page struct {
	Items  []domain.HistoryEntry
	Total  int64
	Limit  int
	Offset int
}

func (s *Service) List(ctx context.Context, user domain.User, filter ports.HistoryFilter) (Page, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return Page{}, domain.InvalidInput("unknown history type %q", filter.Type)
	}
	if filter.Status != "" && filter.Status != domain.StatusSuccess && filter.Status != domain.StatusFailed {
		return Page{}, domain.InvalidInput("unknown history status %q", filter.Status)
	}
	if filter.PeriodDays < 0 {
		return Page{}, domain.InvalidInput("period_days must not be negative")
	}
	filter.Limit = clampLimit(filter.Limit)

	items, total, err := s.repo.List(ctx, user.ID, filter, s.now())
	if err != nil {
		return Page{}, fmt.Errorf("list history: %w", err)
	}
	return Page{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func (s *Service) Stats(ctx context.Context, user domain.User) (ports.HistoryStats, error) {
	stats, err := s.repo.Stats(ctx, user.ID, s.now())
	if err != nil {
		return ports.HistoryStats{}, fmt.Errorf("history stats: %w", err)
	}
	return stats, nil
}

// Text 返回文本类记录的生成内容。
func (s *Service) Text(ctx context.Context, user domain.User, id string) (*domain.HistoryEntry, error) {
	entry, err := s.owner.History(ctx, id, user)
	if err != nil {
		return nil, err
	}
	if entry.Type != domain.ResourceText || entry.TextContent == nil {
		return nil, domain.NotFound("history text")
	}
	return entry, nil
}

// Delete 删除一条记录，关联文件尽力删除。
func (s *Service) Delete(ctx context.Context, user domain.User, id string) error {
	entry, err := s.owner.History(ctx, id, user)
	if err != nil {
		return err
	}
	if key := entry.FileRef(); key != "" {
		if _, err := s.files.Delete(ctx, key); err != nil {
			s.logger.Warn("delete history file failed",
				slog.String("history_id", id),
				slog.String("key", key),
				slog.Any("error", err),
			)
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete history entry: %w", err)
	}
	return nil
}

// Download 是可下载文件的流与展示用文件名。
type Download struct {
	Body     io.ReadCloser
	Filename string
	Entry    *domain.HistoryEntry
}

// OpenFile 打开历史记录对应的 PDF。过期或已清理的记录返回 Gone。
func (s *Service) OpenFile(ctx context.Context, user domain.User, id string) (*Download, error) {
	entry, err := s.owner.History(ctx, id, user)
	if err != nil {
		return nil, err
	}
	if entry.Type != domain.ResourcePDF {
		return nil, domain.InvalidInput("history entry %s has no file", id)
	}
	if !IsDownloadable(*entry, s.now()) {
		return nil, domain.Gone("history file expired")
	}
	if err := s.owner.RequireFile(ctx, "history entry", entry.FileRef()); err != nil {
		return nil, err
	}

	body, err := s.files.Open(ctx, entry.FileRef())
	if err != nil {
		if errors.Is(err, ports.ErrObjectNotFound) {
			return nil, domain.NotFound("history file")
		}
		return nil, fmt.Errorf("open history file: %w", err)
	}
	return &Download{
		Body:     body,
		Filename: domain.DownloadFilename(entry.CompanyName, entry.JobTitle),
		Entry:    entry,
	}, nil
}

// ExportItem 是导出文件中的单条记录。
type ExportItem struct {
	ID                  string               `json:"id"`
	Type                domain.ResourceKind  `json:"type"`
	Status              domain.HistoryStatus `json:"status"`
	JobTitle            *string              `json:"job_title"`
	CompanyName         *string              `json:"company_name"`
	JobURL              string               `json:"job_url"`
	CVFilename          string               `json:"cv_filename"`
	TextContent         *string              `json:"text_content"`
	ErrorMessage        *string              `json:"error_message,omitempty"`
	CreatedAt           time.Time            `json:"created_at"`
	IsDownloadable      bool                 `json:"is_downloadable"`
	DaysUntilExpiration *int                 `json:"days_until_expiration"`
}

// Export 是用户全部历史的导出内容。
type Export struct {
	ExportDate       time.Time    `json:"export_date"`
	UserID           string       `json:"user_id"`
	TotalGenerations int64        `json:"total_generations"`
	Generations      []ExportItem `json:"generations"`
}

// Export 分页读取用户的全部历史。
func (s *Service) Export(ctx context.Context, user domain.User) (Export, error) {
	now := s.now()
	out := Export{ExportDate: now.UTC(), UserID: user.ID, Generations: []ExportItem{}}

	for offset := 0; ; offset += maxLimit {
		items, total, err := s.repo.List(ctx, user.ID, ports.HistoryFilter{Limit: maxLimit, Offset: offset}, now)
		if err != nil {
			return Export{}, fmt.Errorf("export history: %w", err)
		}
		out.TotalGenerations = total
		for _, e := range items {
			item := ExportItem{
				ID:                  e.ID,
				Type:                e.Type,
				Status:              e.Status,
				JobTitle:            e.JobTitle,
				CompanyName:         e.CompanyName,
				JobURL:              e.JobURL,
				CVFilename:          e.CVFilename,
				ErrorMessage:        e.ErrorMessage,
				CreatedAt:           e.CreatedAt,
				IsDownloadable:      IsDownloadable(e, now),
				DaysUntilExpiration: e.DaysUntilExpiration(now),
			}
			if e.Type == domain.ResourceText {
				item.TextContent = e.TextContent
			}
			out.Generations = append(out.Generations, item)
		}
		if len(items) < maxLimit {
			break
		}
	}
	return out, nil
}

// CleanupExpired 删除过期文件并清空记录中的路径，返回处理的记录数。
// 单条失败只记录日志，不会中断整批清理。
func (s *Service) CleanupExpired(ctx context.Context, batch int) (int, error) {
	expired, err := s.repo.ListExpired(ctx, s.now(), batch)
	if err != nil {
		return 0, fmt.Errorf("list expired history: %w", err)
	}

	cleaned := 0
	for _, entry := range expired {
		logger := s.logger.With(slog.String("history_id", entry.ID), slog.String("key", entry.FileRef()))
		if _, err := s.files.Delete(ctx, entry.FileRef()); err != nil {
			logger.Error("delete expired file failed", slog.Any("error", err))
			continue
		}
		if err := s.repo.ClearFilePath(ctx, entry.ID); err != nil {
			logger.Error("clear expired file path failed", slog.Any("error", err))
			continue
		}
		cleaned++
	}

	if len(expired) > 0 {
		s.logger.Info("expired history files cleaned",
			slog.Int("found", len(expired)),
			slog.Int("cleaned", cleaned),
		)
	}
	return cleaned, nil
}

const (
	defaultLimit = 50
	maxLimit     = 100
)

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultLimit
	case limit > maxLimit:
		return maxLimit
	default:
		return limit
	}
}

// ParseType 把查询参数转换为记录类型，空串表示不过滤。
func ParseType(raw string) domain.ResourceKind {
	return domain.ResourceKind(strings.ToLower(strings.TrimSpace(raw)))
}
