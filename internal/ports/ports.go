package ports

import (
	"context"
	"errors"
	"io"
	"time"

	"cvlm/internal/domain"
)

// DocumentTextExtractor 从上传的文档中提取纯文本。
type DocumentTextExtractor interface {
	Extract(ctx context.Context, content []byte) (string, error)
}

// JobOfferFetcher 抓取职位页面正文。调用方把失败视为空文本。
type JobOfferFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// TextGenerator 调用大模型生成文本，空响应视为失败。
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// TextGenerators 根据请求中的提供方名称选择生成器。
type TextGenerators interface {
	Get(provider string) (TextGenerator, error)
	Default() string
}

// PdfRenderer 把文本渲染为 PDF，写入 destination 并返回最终文件路径。
type PdfRenderer interface {
	Render(ctx context.Context, text string, destination string) (string, error)
}

// FileStore 以不透明 key 寻址的文件存储。Delete 对不存在的对象返回 false 且不报错，
// Open 对不存在的对象返回包装了 ErrObjectNotFound 的错误。
type FileStore interface {
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	PresignedURL(ctx context.Context, key string, ttl time.Duration, downloadName string) (string, error)
}

// UploadScanner 在文件入库前做病毒扫描，发现感染时返回 infected=true。
type UploadScanner interface {
	Scan(ctx context.Context, r io.Reader) (infected bool, signature string, err error)
}

// Notifier 推送生成完成事件，失败由调用方吞掉。
type Notifier interface {
	NotifyGeneration(ctx context.Context, userID string, event GenerationEvent) error
}

// GenerationEvent 是推送给前端的生成结果摘要。
type GenerationEvent struct {
	Type      domain.ResourceKind  `json:"type"`
	Status    domain.HistoryStatus `json:"status"`
	HistoryID string               `json:"history_id,omitempty"`
	LetterID  string               `json:"letter_id,omitempty"`
}

var (
	// ErrNoRows 由仓储在记录不存在时返回。
	ErrNoRows = errors.New("record not found")
	// ErrObjectNotFound 由 FileStore.Open 在对象不存在时返回。
	ErrObjectNotFound = errors.New("object not found")
	// ErrNoCredit 由 UserRepository.DecrementCredit 在额度不足时返回。
	ErrNoCredit = errors.New("no credit left")
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// DecrementCredit 以单条条件更新扣减一个额度，额度不大于 0 时返回 ErrNoCredit。
	DecrementCredit(ctx context.Context, id string, kind domain.ResourceKind) (*domain.User, error)
	SetCredits(ctx context.Context, id string, pdf, text int) (*domain.User, error)
}

type CVRepository interface {
	Create(ctx context.Context, cv *domain.CV) error
	GetByID(ctx context.Context, id string) (*domain.CV, error)
	ListByUser(ctx context.Context, userID string) ([]domain.CV, error)
	// Delete 在事务中删除记录，并在提交前执行 beforeCommit；其返回错误时回滚。
	Delete(ctx context.Context, id string, beforeCommit func(context.Context) error) error
}

type LetterRepository interface {
	Create(ctx context.Context, letter *domain.Letter) error
	GetByID(ctx context.Context, id string) (*domain.Letter, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Letter, error)
	Delete(ctx context.Context, id string) error
}

// HistoryFilter 描述历史记录查询条件。
type HistoryFilter struct {
	Type       domain.ResourceKind
	Status     domain.HistoryStatus
	Search     string
	PeriodDays int
	Limit      int
	Offset     int
}

// HistoryStats 是用户维度的生成统计。
type HistoryStats struct {
	Total           int64      `json:"total"`
	PDFCount        int64      `json:"pdf_count"`
	TextCount       int64      `json:"text_count"`
	SuccessCount    int64      `json:"success_count"`
	SuccessRate     float64    `json:"success_rate"`
	ThisMonth       int64      `json:"this_month"`
	LastGeneration  *time.Time `json:"last_generation"`
	UniqueCompanies int64      `json:"unique_companies"`
}

type HistoryRepository interface {
	Create(ctx context.Context, entry *domain.HistoryEntry) error
	GetByID(ctx context.Context, id string) (*domain.HistoryEntry, error)
	List(ctx context.Context, userID string, filter HistoryFilter, now time.Time) ([]domain.HistoryEntry, int64, error)
	Stats(ctx context.Context, userID string, now time.Time) (HistoryStats, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.HistoryEntry, error)
	ClearFilePath(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}
