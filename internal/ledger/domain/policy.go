package domain

import (
	"context"
	"fmt"
)

// PolicyInput 开户策略的判定输入
type PolicyInput struct {
	OwnerID string
	Tier    string
	Type    string
	// 户主当前同类型活跃账户数
	ActiveOfType int
	// 户主当前活跃账户总数
	ActiveTotal    int
	InitialBalance float64
}

// AccountPolicy 开户前置条件，可按产品等级替换
type AccountPolicy interface {
	Allow(ctx context.Context, in PolicyInput) error
}

// OnePerTypePolicy 每个户主每种类型最多一个活跃账户
type OnePerTypePolicy struct{}

// Allow 实现 AccountPolicy
func (OnePerTypePolicy) Allow(_ context.Context, in PolicyInput) error {
	if in.ActiveOfType > 0 {
		return ErrDuplicateAccountType
	}
	return nil
}

// UnlimitedPolicy 不限制
type UnlimitedPolicy struct{}

// Allow 实现 AccountPolicy
func (UnlimitedPolicy) Allow(context.Context, PolicyInput) error { return nil }

// TieredPolicy 按客户等级限制同类型活跃账户数
type TieredPolicy struct {
	Limits map[string]int
	// 等级未配置时的上限
	Default int
}

// Allow 实现 AccountPolicy
func (p TieredPolicy) Allow(_ context.Context, in PolicyInput) error {
	limit, ok := p.Limits[in.Tier]
	if !ok {
		limit = p.Default
	}
	if in.ActiveOfType >= limit {
		return fmt.Errorf("%w (tier %q allows %d)", ErrDuplicateAccountType, in.Tier, limit)
	}
	return nil
}
