package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cvlm/internal/database"
	"cvlm/internal/domain"
	"cvlm/internal/ports"
)

// CVRepository 基于 GORM 实现 ports.CVRepository。
type CVRepository struct {
	db *gorm.DB
}

var _ ports.CVRepository = (*CVRepository)(nil)

func NewCVRepository(db *gorm.DB) *CVRepository {
	return &CVRepository{db: db}
}

func (r *CVRepository) Create(ctx context.Context, cv *domain.CV) error {
	ensureID(&cv.ID)
	ensureCreatedAt(&cv.CreatedAt)
	row := database.CV{
		ID:        cv.ID,
		UserID:    cv.UserID,
		Filename:  cv.Filename,
		FilePath:  cv.FilePath,
		FileSize:  cv.FileSize,
		RawText:   cv.RawText,
		CreatedAt: cv.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error; err != nil {
		return fmt.Errorf("create cv: %w", err)
	}
	return nil
}

func (r *CVRepository) GetByID(ctx context.Context, id string) (*domain.CV, error) {
	var row database.CV
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	cv := toCV(row)
	return &cv, nil
}

func (r *CVRepository) ListByUser(ctx context.Context, userID string) ([]domain.CV, error) {
	var rows []database.CV
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list cvs: %w", err)
	}
	out := make([]domain.CV, 0, len(rows))
	for _, row := range rows {
		out = append(out, toCV(row))
	}
	return out, nil
}

func (r *CVRepository) Delete(ctx context.Context, id string, beforeCommit func(context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&database.CV{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("delete cv: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ports.ErrNoRows
		}
		if beforeCommit != nil {
			return beforeCommit(ctx)
		}
		return nil
	})
}
