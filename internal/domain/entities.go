package domain

import "time"

// ResourceKind 表示可消耗的额度类型，同时也是生成记录的类型。
type ResourceKind string

const (
	ResourcePDF  ResourceKind = "pdf"
	ResourceText ResourceKind = "text"
)

// Valid 判断额度类型是否受支持。
func (k ResourceKind) Valid() bool {
	return k == ResourcePDF || k == ResourceText
}

// HistoryStatus 表示一次生成尝试的结果。
type HistoryStatus string

const (
	StatusSuccess HistoryStatus = "success"
	StatusFailed  HistoryStatus = "failed"
)

// 新用户默认额度。
const (
	DefaultPDFCredits  = 10
	DefaultTextCredits = 10
)

// DefaultRetention 是 PDF 文件在历史记录中可下载的保留期。
const DefaultRetention = 90 * 24 * time.Hour

// User 表示账号及其两类独立额度。
type User struct {
	ID          string
	Email       string
	Name        string
	PDFCredits  int
	TextCredits int
	CreatedAt   time.Time
}

// Credits 返回指定类型的剩余额度。
func (u User) Credits(kind ResourceKind) int {
	switch kind {
	case ResourcePDF:
		return u.PDFCredits
	case ResourceText:
		return u.TextCredits
	default:
		return 0
	}
}

// CV 是用户上传的源文档。
type CV struct {
	ID        string
	UserID    string
	Filename  string
	FilePath  string
	FileSize  int64
	RawText   string
	CreatedAt time.Time
}

func (c CV) OwnerID() string { return c.UserID }
func (c CV) FileRef() string { return c.FilePath }

// Letter 是生成成功并已落盘的求职信。
type Letter struct {
	ID          string
	UserID      string
	CVID        string
	JobOfferURL string
	Filename    string
	FilePath    string
	FileSize    int64
	RawText     string
	LLMProvider string
	CreatedAt   time.Time
}

func (l Letter) OwnerID() string { return l.UserID }
func (l Letter) FileRef() string { return l.FilePath }

// HistoryEntry 是一次生成尝试的审计记录，除过期清理外不可修改。
type HistoryEntry struct {
	ID            string
	UserID        string
	Type          ResourceKind
	Status        HistoryStatus
	JobTitle      *string
	CompanyName   *string
	JobURL        string
	CVID          string
	CVFilename    string
	LetterID      *string
	FilePath      *string
	TextContent   *string
	ErrorMessage  *string
	Metadata      map[string]any
	CreatedAt     time.Time
	FileExpiresAt *time.Time
}

func (h HistoryEntry) OwnerID() string { return h.UserID }

// FileRef 返回记录引用的文件，已过期清理或文本记录返回空串。
func (h HistoryEntry) FileRef() string {
	if h.FilePath == nil {
		return ""
	}
	return *h.FilePath
}

// IsFileExpired 判断 PDF 文件是否已超过保留期。
func (h HistoryEntry) IsFileExpired(now time.Time) bool {
	if h.Type != ResourcePDF || h.FileExpiresAt == nil {
		return false
	}
	return !now.Before(*h.FileExpiresAt)
}

// DaysUntilExpiration 返回距离文件过期的天数，非 PDF 记录返回 nil。
func (h HistoryEntry) DaysUntilExpiration(now time.Time) *int {
	if h.Type != ResourcePDF || h.FileExpiresAt == nil {
		return nil
	}
	days := int(h.FileExpiresAt.Sub(now).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return &days
}

// JobInfo 是从职位链接中推断出的元数据，无法识别时字段为 nil。
type JobInfo struct {
	CompanyName *string
	JobTitle    *string
}

// Owned 由带有归属用户的资源实现。
type Owned interface {
	OwnerID() string
}

// FileBacked 由引用了存储对象的资源实现。
type FileBacked interface {
	Owned
	FileRef() string
}
