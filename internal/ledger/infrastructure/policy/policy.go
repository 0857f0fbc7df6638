// Package policy 按配置构造开户策略
package policy

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
	"github.com/wyfcoding/bankledger/pkg/config"
)

// ExprPolicy 以表达式描述的开户规则，结果为 false 时拒绝
// 可用变量：OwnerID, Tier, Type, ActiveOfType, ActiveTotal, InitialBalance
type ExprPolicy struct {
	source  string
	program *vm.Program
}

// NewExprPolicy 编译规则表达式
func NewExprPolicy(source string) (*ExprPolicy, error) {
	program, err := expr.Compile(source, expr.Env(domain.PolicyInput{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile account policy %q: %w", source, err)
	}
	return &ExprPolicy{source: source, program: program}, nil
}

// Allow 实现 domain.AccountPolicy
func (p *ExprPolicy) Allow(_ context.Context, in domain.PolicyInput) error {
	out, err := expr.Run(p.program, in)
	if err != nil {
		return fmt.Errorf("failed to evaluate account policy: %w", err)
	}
	if allowed, _ := out.(bool); !allowed {
		return fmt.Errorf("%w (rule %q)", domain.ErrDuplicateAccountType, p.source)
	}
	return nil
}

// FromConfig 根据配置选择策略
func FromConfig(cfg config.LedgerConfig) (domain.AccountPolicy, error) {
	switch cfg.AccountPolicy {
	case "", "one_per_type":
		return domain.OnePerTypePolicy{}, nil
	case "unlimited":
		return domain.UnlimitedPolicy{}, nil
	case "tiered":
		return domain.TieredPolicy{Limits: cfg.TierLimits, Default: 1}, nil
	case "expr":
		return NewExprPolicy(cfg.PolicyExpr)
	default:
		return nil, fmt.Errorf("unknown account policy: %s", cfg.AccountPolicy)
	}
}

var _ domain.AccountPolicy = (*ExprPolicy)(nil)
