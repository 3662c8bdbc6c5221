package credit

import "cvlm/internal/domain"

// Guard 只读地判断用户快照上是否还有可用额度。
// 它只是预检查，真正的扣减由 Ledger 在流程末尾完成，两者之间的竞争窗口是可接受的。
type Guard struct{}

// HasCredit 不访问存储，调用方需要传入新鲜的 User。
func (Guard) HasCredit(user domain.User, kind domain.ResourceKind) bool {
	return user.Credits(kind) > 0
}

// Require 在额度不足时返回 InsufficientCredits 错误。
func (g Guard) Require(user domain.User, kind domain.ResourceKind) error {
	if !kind.Valid() {
		return domain.InvalidInput("unknown credit kind %q", kind)
	}
	if !g.HasCredit(user, kind) {
		return domain.InsufficientCredits(kind)
	}
	return nil
}
