package repository

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"gorm.io/gorm"

	"cvlm/internal/database"
	"cvlm/internal/domain"
	"cvlm/internal/ports"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// HistoryRepository 基于 GORM 实现 ports.HistoryRepository。
type HistoryRepository struct {
	db *gorm.DB
}

var _ ports.HistoryRepository = (*HistoryRepository)(nil)

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) Create(ctx context.Context, entry *domain.HistoryEntry) error {
	ensureID(&entry.ID)
	ensureCreatedAt(&entry.CreatedAt)
	row, err := fromHistory(entry)
	if err != nil {
		return fmt.Errorf("encode history metadata: %w", err)
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create history entry: %w", err)
	}
	return nil
}

func (r *HistoryRepository) GetByID(ctx context.Context, id string) (*domain.HistoryEntry, error) {
	var row database.GenerationHistory
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	entry := toHistory(row)
	return &entry, nil
}

// likeEscaper 转义 LIKE 通配符，搜索词按字面匹配。
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// List 按创建时间倒序（同一时间按 id 倒序）分页查询，返回当前页与满足条件的总数。
func (r *HistoryRepository) List(ctx context.Context, userID string, filter ports.HistoryFilter, now time.Time) ([]domain.HistoryEntry, int64, error) {
	q := r.db.WithContext(ctx).Model(&database.GenerationHistory{}).Where("user_id = ?", userID)
	if filter.Type != "" {
		q = q.Where("type = ?", string(filter.Type))
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		like := "%" + likeEscaper.Replace(search) + "%"
		q = q.Where(
			`(LOWER(COALESCE(company_name, '')) LIKE ? ESCAPE '\' OR LOWER(COALESCE(job_title, '')) LIKE ? ESCAPE '\' OR LOWER(cv_filename) LIKE ? ESCAPE '\')`,
			like, like, like,
		)
	}
	if filter.PeriodDays > 0 {
		q = q.Where("created_at >= ?", now.UTC().AddDate(0, 0, -filter.PeriodDays))
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count history: %w", err)
	}

	limit := filter.Limit
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var rows []database.GenerationHistory
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list history: %w", err)
	}

	out := make([]domain.HistoryEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, toHistory(row))
	}
	return out, total, nil
}

func (r *HistoryRepository) Stats(ctx context.Context, userID string, now time.Time) (ports.HistoryStats, error) {
	var stats ports.HistoryStats
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&database.GenerationHistory{}).Where("user_id = ?", userID)
	}

	counts := []struct {
		dst   *int64
		query *gorm.DB
	}{
		{&stats.Total, base()},
		{&stats.PDFCount, base().Where("type = ?", string(domain.ResourcePDF))},
		{&stats.TextCount, base().Where("type = ?", string(domain.ResourceText))},
		{&stats.SuccessCount, base().Where("status = ?", string(domain.StatusSuccess))},
	}
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).UTC()
	counts = append(counts, struct {
		dst   *int64
		query *gorm.DB
	}{&stats.ThisMonth, base().Where("created_at >= ?", monthStart)})

	for _, c := range counts {
		if err := c.query.Count(c.dst).Error; err != nil {
			return ports.HistoryStats{}, fmt.Errorf("count history stats: %w", err)
		}
	}

	if err := base().
		Where("company_name IS NOT NULL AND company_name <> ''").
		Distinct("company_name").
		Count(&stats.UniqueCompanies).Error; err != nil {
		return ports.HistoryStats{}, fmt.Errorf("count unique companies: %w", err)
	}

	if stats.Total > 0 {
		var latest database.GenerationHistory
		if err := base().Select("created_at").Order("created_at DESC").Limit(1).Take(&latest).Error; err != nil {
			return ports.HistoryStats{}, fmt.Errorf("load last generation: %w", err)
		}
		last := latest.CreatedAt
		stats.LastGeneration = &last
		rate := float64(stats.SuccessCount) / float64(stats.Total) * 100
		stats.SuccessRate = math.Round(rate*10) / 10
	}

	return stats, nil
}

// ListExpired 返回文件已过保留期但尚未清理的记录。
func (r *HistoryRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 500
	}
	var rows []database.GenerationHistory
	err := r.db.WithContext(ctx).
		Where("file_path IS NOT NULL AND file_expires_at IS NOT NULL AND file_expires_at < ?", now.UTC()).
		Order("file_expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list expired history: %w", err)
	}
	out := make([]domain.HistoryEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, toHistory(row))
	}
	return out, nil
}

func (r *HistoryRepository) ClearFilePath(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&database.GenerationHistory{}).
		Where("id = ?", id).
		Update("file_path", nil)
	if res.Error != nil {
		return fmt.Errorf("clear history file path: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ports.ErrNoRows
	}
	return nil
}

func (r *HistoryRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&database.GenerationHistory{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete history entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ports.ErrNoRows
	}
	return nil
}
