package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cvlm/internal/domain"
	"cvlm/internal/ports"
)

// AccountService 在首次认证时创建用户，并为每个请求读取最新的用户快照。
type AccountService struct {
	users              ports.UserRepository
	defaultPDFCredits  int
	defaultTextCredits int
	logger             *slog.Logger
}

func NewAccountService(users ports.UserRepository, pdfCredits, textCredits int, logger *slog.Logger) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		users:              users,
		defaultPDFCredits:  pdfCredits,
		defaultTextCredits: textCredits,
		logger:             logger,
	}
}

// Resolve 按令牌中的用户 ID 读取用户，不存在时以默认额度创建。
func (s *AccountService) Resolve(ctx context.Context, userID, email string) (*domain.User, error) {
	if userID == "" {
		return nil, domain.InvalidInput("user id is required")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ports.ErrNoRows) {
		return nil, fmt.Errorf("load user: %w", err)
	}

	// 邮箱列唯一，令牌未携带邮箱时用 ID 占位。
	if email == "" {
		email = userID + "@users.cvlm.invalid"
	}
	created := &domain.User{
		ID:          userID,
		Email:       email,
		PDFCredits:  s.defaultPDFCredits,
		TextCredits: s.defaultTextCredits,
	}
	if err := s.users.Create(ctx, created); err != nil {
		// 并发的首次请求可能已经建好了用户。
		if existing, getErr := s.users.GetByID(ctx, userID); getErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user provisioned on first authentication",
		slog.String("user_id", created.ID),
		slog.Int("pdf_credits", created.PDFCredits),
		slog.Int("text_credits", created.TextCredits),
	)
	return created, nil
}

// Provision 供运维 CLI 使用：按邮箱查找或创建用户，pdf/text 为负数时保持默认或原值。
func (s *AccountService) Provision(ctx context.Context, email, name string, pdf, text int) (*domain.User, bool, error) {
	if email == "" {
		return nil, false, domain.InvalidInput("email is required")
	}
	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if pdf < 0 && text < 0 {
			return user, false, nil
		}
		if pdf < 0 {
			pdf = user.PDFCredits
		}
		if text < 0 {
			text = user.TextCredits
		}
		updated, err := s.users.SetCredits(ctx, user.ID, pdf, text)
		if err != nil {
			return nil, false, fmt.Errorf("set credits: %w", err)
		}
		return updated, false, nil
	case errors.Is(err, ports.ErrNoRows):
	default:
		return nil, false, fmt.Errorf("load user by email: %w", err)
	}

	if pdf < 0 {
		pdf = s.defaultPDFCredits
	}
	if text < 0 {
		text = s.defaultTextCredits
	}
	created := &domain.User{Email: email, Name: name, PDFCredits: pdf, TextCredits: text}
	if err := s.users.Create(ctx, created); err != nil {
		return nil, false, fmt.Errorf("create user: %w", err)
	}
	return created, true, nil
}
