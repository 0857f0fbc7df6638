package application

import (
	"context"
	"errors"
	"strings"

	"github.com/wyfcoding/bankledger/internal/ledger/domain"
)

// RecipientResolver 按手机号或账号查找收款账户，只返回活跃账户
// 返回完整账号，是否脱敏由展示层决定
type RecipientResolver struct {
	deps Deps
}

// NewRecipientResolver 创建收款人查找
func NewRecipientResolver(deps Deps) *RecipientResolver {
	return &RecipientResolver{deps: deps}
}

// FindByPhone 无匹配时返回空切片而不是错误
func (r *RecipientResolver) FindByPhone(ctx context.Context, phone string) ([]*domain.Account, error) {
	normalized, err := domain.NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	owners, err := r.deps.Owners.FindByPhone(ctx, normalized)
	if err != nil {
		return nil, err
	}
	out := []*domain.Account{}
	for _, o := range owners {
		accounts, err := r.deps.Accounts.ListByOwner(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		for _, a := range accounts {
			if a.IsActive() {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

// FindByAccountNumber 无匹配或账户已销户时返回空切片
func (r *RecipientResolver) FindByAccountNumber(ctx context.Context, number string) ([]*domain.Account, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, domain.ErrMissingField
	}
	acc, err := r.deps.Accounts.GetByNumber(ctx, number)
	if errors.Is(err, domain.ErrNotFound) {
		return []*domain.Account{}, nil
	}
	if err != nil {
		return nil, err
	}
	if !acc.IsActive() {
		return []*domain.Account{}, nil
	}
	return []*domain.Account{acc}, nil
}
