package credit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cvlm/internal/domain"
	"cvlm/internal/ports"
)

// Ledger 是唯一允许修改用户额度的组件。
type Ledger struct {
	users  ports.UserRepository
	logger *slog.Logger
}

func NewLedger(users ports.UserRepository, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{users: users, logger: logger}
}

// CommitDecrement 在生成成功后扣减一个额度并返回更新后的用户。
// 以存储中的权威值为准，提交时额度已不大于 0 则返回 InsufficientCredits。
func (l *Ledger) CommitDecrement(ctx context.Context, user domain.User, kind domain.ResourceKind) (*domain.User, error) {
	if !kind.Valid() {
		return nil, domain.InvalidInput("unknown credit kind %q", kind)
	}

	updated, err := l.users.DecrementCredit(ctx, user.ID, kind)
	switch {
	case err == nil:
	case errors.Is(err, ports.ErrNoCredit):
		l.logger.Warn("credit commit rejected, balance exhausted",
			slog.String("user_id", user.ID),
			slog.String("kind", string(kind)),
		)
		return nil, domain.InsufficientCredits(kind)
	case errors.Is(err, ports.ErrNoRows):
		return nil, domain.NotFound("user")
	default:
		return nil, fmt.Errorf("commit %s credit: %w", kind, err)
	}

	l.logger.Info("credit committed",
		slog.String("user_id", user.ID),
		slog.String("kind", string(kind)),
		slog.Int("remaining", updated.Credits(kind)),
	)
	return updated, nil
}
