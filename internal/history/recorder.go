package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cvlm/internal/domain"
	"cvlm/internal/ports"
)

// Attempt 描述一次生成尝试，Recorder 据此追加历史记录。
type Attempt struct {
	UserID      string
	Type        domain.ResourceKind
	Status      domain.HistoryStatus
	CVID        string
	CVFilename  string
	JobURL      string
	JobInfo     domain.JobInfo
	LetterID    string
	FilePath    string
	TextContent string
	Err         error
	Metadata    map[string]any
}

// Recorder 追加不可变的生成记录。记录失败只会写日志，永远不会影响主流程。
type Recorder struct {
	repo      ports.HistoryRepository
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewRecorder 创建记录器，retention 不大于 0 时使用默认保留期。
func NewRecorder(repo ports.HistoryRepository, retention time.Duration, logger *slog.Logger) *Recorder {
	if retention <= 0 {
		retention = domain.DefaultRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{repo: repo, retention: retention, now: time.Now, logger: logger}
}

// WithClock 替换时间源。
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	cp := *r
	cp.now = now
	return &cp
}

// Record 写入一条历史记录，失败时返回 nil。
func (r *Recorder) Record(ctx context.Context, a Attempt) *domain.HistoryEntry {
	entry := r.build(a)
	err := bestEffort(func() error { return r.repo.Create(ctx, entry) })
	if err != nil {
		r.logger.Warn("record generation history failed",
			slog.String("user_id", a.UserID),
			slog.String("type", string(a.Type)),
			slog.String("status", string(a.Status)),
			slog.Any("error", err),
		)
		return nil
	}
	return entry
}

// Retract 撤回一条尚未对外生效的成功记录，只在额度提交失败的补偿路径上使用。
func (r *Recorder) Retract(ctx context.Context, entry *domain.HistoryEntry) {
	if entry == nil || entry.ID == "" {
		return
	}
	if err := bestEffort(func() error { return r.repo.Delete(ctx, entry.ID) }); err != nil {
		r.logger.Warn("retract generation history failed",
			slog.String("history_id", entry.ID),
			slog.Any("error", err),
		)
	}
}

// IsDownloadable 按当前时间判断记录的 PDF 是否仍可下载。
func (r *Recorder) IsDownloadable(entry domain.HistoryEntry) bool {
	return IsDownloadable(entry, r.now())
}

// IsDownloadable 仅当记录为 PDF、文件路径未被清理且未过保留期时返回 true。
func IsDownloadable(entry domain.HistoryEntry, now time.Time) bool {
	if entry.Type != domain.ResourcePDF || entry.FilePath == nil || *entry.FilePath == "" {
		return false
	}
	if entry.FileExpiresAt == nil {
		return false
	}
	return now.Before(*entry.FileExpiresAt)
}

func (r *Recorder) build(a Attempt) *domain.HistoryEntry {
	now := r.now().UTC()
	entry := &domain.HistoryEntry{
		UserID:      a.UserID,
		Type:        a.Type,
		Status:      a.Status,
		JobTitle:    a.JobInfo.JobTitle,
		CompanyName: a.JobInfo.CompanyName,
		JobURL:      a.JobURL,
		CVID:        a.CVID,
		CVFilename:  a.CVFilename,
		Metadata:    a.Metadata,
		CreatedAt:   now,
	}
	if a.LetterID != "" {
		id := a.LetterID
		entry.LetterID = &id
	}
	if a.Type == domain.ResourcePDF && a.Status == domain.StatusSuccess && a.FilePath != "" {
		path := a.FilePath
		expires := now.Add(r.retention)
		entry.FilePath = &path
		entry.FileExpiresAt = &expires
	}
	if a.Type == domain.ResourceText && a.TextContent != "" {
		text := a.TextContent
		entry.TextContent = &text
	}
	if a.Err != nil {
		msg := a.Err.Error()
		entry.ErrorMessage = &msg
	}
	return entry
}

// bestEffort 执行旁路操作，把 panic 也转换成错误。
func bestEffort(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn()
}
