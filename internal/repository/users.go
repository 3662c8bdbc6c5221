package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"cvlm/internal/database"
	"cvlm/internal/domain"
	"cvlm/internal/ports"
)

// UserRepository 基于 GORM 实现 ports.UserRepository。
type UserRepository struct {
	db *gorm.DB
}

var _ ports.UserRepository = (*UserRepository)(nil)

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	ensureID(&user.ID)
	ensureCreatedAt(&user.CreatedAt)
	row := database.User{
		ID:          user.ID,
		Email:       strings.ToLower(strings.TrimSpace(user.Email)),
		Name:        user.Name,
		PDFCredits:  user.PDFCredits,
		TextCredits: user.TextCredits,
		CreatedAt:   user.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	user.Email = row.Email
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var row database.User
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return toUser(row), nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var row database.User
	err := r.db.WithContext(ctx).
		First(&row, "email = ?", strings.ToLower(strings.TrimSpace(email))).Error
	if err != nil {
		return nil, translate(err)
	}
	return toUser(row), nil
}

// DecrementCredit 用一条 `WHERE <col> > 0` 的条件更新扣减额度。
// 条件更新本身是同一用户多次提交之间的线性化点，额度永远不会变为负数。
func (r *UserRepository) DecrementCredit(ctx context.Context, id string, kind domain.ResourceKind) (*domain.User, error) {
	column, err := creditColumn(kind)
	if err != nil {
		return nil, err
	}

	var updated *domain.User
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&database.User{}).
			Where("id = ? AND "+column+" > 0", id).
			Updates(map[string]any{
				column:       gorm.Expr(column + " - 1"),
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return fmt.Errorf("decrement %s: %w", column, res.Error)
		}

		var row database.User
		if err := tx.First(&row, "id = ?", id).Error; err != nil {
			return translate(err)
		}
		if res.RowsAffected == 0 {
			return ports.ErrNoCredit
		}
		updated = toUser(row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetCredits 直接设置两类额度，仅供运维工具使用。
func (r *UserRepository) SetCredits(ctx context.Context, id string, pdf, text int) (*domain.User, error) {
	if pdf < 0 || text < 0 {
		return nil, domain.InvalidInput("credits must not be negative")
	}
	res := r.db.WithContext(ctx).Model(&database.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"pdf_credits":  pdf,
			"text_credits": text,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("set credits: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ports.ErrNoRows
	}
	return r.GetByID(ctx, id)
}

func creditColumn(kind domain.ResourceKind) (string, error) {
	switch kind {
	case domain.ResourcePDF:
		return "pdf_credits", nil
	case domain.ResourceText:
		return "text_credits", nil
	default:
		return "", domain.InvalidInput("unknown credit kind %q", kind)
	}
}
