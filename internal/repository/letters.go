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

// LetterRepository 基于 GORM 实现 ports.LetterRepository。
type LetterRepository struct {
	db *gorm.DB
}

var _ ports.LetterRepository = (*LetterRepository)(nil)

func NewLetterRepository(db *gorm.DB) *LetterRepository {
	return &LetterRepository{db: db}
}

func (r *LetterRepository) Create(ctx context.Context, letter *domain.Letter) error {
	ensureID(&letter.ID)
	ensureCreatedAt(&letter.CreatedAt)
	row := database.Letter{
		ID:          letter.ID,
		UserID:      letter.UserID,
		CVID:        letter.CVID,
		JobOfferURL: letter.JobOfferURL,
		Filename:    letter.Filename,
		FilePath:    letter.FilePath,
		FileSize:    letter.FileSize,
		RawText:     letter.RawText,
		LLMProvider: letter.LLMProvider,
		CreatedAt:   letter.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error; err != nil {
		return fmt.Errorf("create letter: %w", err)
	}
	return nil
}

func (r *LetterRepository) GetByID(ctx context.Context, id string) (*domain.Letter, error) {
	var row database.Letter
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	letter := toLetter(row)
	return &letter, nil
}

func (r *LetterRepository) ListByUser(ctx context.Context, userID string) ([]domain.Letter, error) {
	var rows []database.Letter
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list letters: %w", err)
	}
	out := make([]domain.Letter, 0, len(rows))
	for _, row := range rows {
		out = append(out, toLetter(row))
	}
	return out, nil
}

func (r *LetterRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&database.Letter{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete letter: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ports.ErrNoRows
	}
	return nil
}
