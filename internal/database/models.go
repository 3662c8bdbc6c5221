package database

import (
	"time"

	"gorm.io/datatypes"
)

// User 表示账号及其额度，额度只能通过条件更新扣减。
type User struct {
	ID          string    `gorm:"primaryKey;size:36"`
	Email       string    `gorm:"uniqueIndex;size:255;not null"`
	Name        string    `gorm:"size:255"`
	PDFCredits  int       `gorm:"column:pdf_credits;not null;check:chk_users_pdf_credits,pdf_credits >= 0"`
	TextCredits int       `gorm:"column:text_credits;not null;check:chk_users_text_credits,text_credits >= 0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CV 表示用户上传的简历文件及其提取文本。
type CV struct {
	ID        string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"index;size:36;not null"`
	User      User   `gorm:"constraint:OnDelete:CASCADE"`
	Filename  string `gorm:"size:255"`
	FilePath  string `gorm:"size:512"`
	FileSize  int64
	RawText   string `gorm:"type:text"`
	CreatedAt time.Time
}

func (CV) TableName() string { return "cvs" }

// Letter 表示生成成功的求职信，FilePath 为对象存储 key。
type Letter struct {
	ID          string `gorm:"primaryKey;size:36"`
	UserID      string `gorm:"index;size:36;not null"`
	User        User   `gorm:"constraint:OnDelete:CASCADE"`
	CVID        string `gorm:"column:cv_id;index;size:36"`
	JobOfferURL string `gorm:"size:2048"`
	Filename    string `gorm:"size:255"`
	FilePath    string `gorm:"size:512"`
	FileSize    int64
	RawText     string `gorm:"type:text"`
	LLMProvider string `gorm:"column:llm_provider;size:32"`
	CreatedAt   time.Time
}

// GenerationHistory 是生成尝试的审计记录。
// 过期清理只会把 FilePath 置空，其余字段保留。
type GenerationHistory struct {
	ID            string         `gorm:"primaryKey;size:36"`
	UserID        string         `gorm:"index:idx_history_user_created,priority:1;size:36;not null"`
	Type          string         `gorm:"size:16;not null"`
	Status        string         `gorm:"size:16;not null"`
	JobTitle      *string        `gorm:"size:255"`
	CompanyName   *string        `gorm:"size:255"`
	JobURL        string         `gorm:"size:2048"`
	CVID          string         `gorm:"column:cv_id;size:36"`
	CVFilename    string         `gorm:"column:cv_filename;size:255"`
	LetterID      *string        `gorm:"size:36"`
	FilePath      *string        `gorm:"size:512"`
	TextContent   *string        `gorm:"type:text"`
	ErrorMessage  *string        `gorm:"type:text"`
	Metadata      datatypes.JSON
	CreatedAt     time.Time      `gorm:"index:idx_history_user_created,priority:2"`
	FileExpiresAt *time.Time     `gorm:"index"`
}

func (GenerationHistory) TableName() string { return "generation_history" }

// Models 返回需要自动迁移的全部模型。
func Models() []any {
	return []any{&User{}, &CV{}, &Letter{}, &GenerationHistory{}}
}
