// Package application 账本用例：转账处理、开销户、查询、分析与收款人查找
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
	"github.com/wyfcoding/bankledger/pkg/config"
	"github.com/wyfcoding/bankledger/pkg/contextx"
	"github.com/wyfcoding/bankledger/pkg/idgen"
	"github.com/wyfcoding/bankledger/pkg/metrics"
)

// DefaultCurrency 开户未指定币种时使用
const DefaultCurrency = "USD"

// Deps 应用层依赖的端口
type Deps struct {
	Accounts     domain.AccountStore
	Transactions domain.TransactionLog
	Owners       domain.OwnerStore
	UoW          domain.UnitOfWork
	Locker       domain.Locker
	IDs          *idgen.Generator
	Notifier     Notifier
	Metrics      *metrics.Metrics
	// 为空时使用 time.Now
	Clock func() time.Time
}

func (d Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}

// Options 业务参数
type Options struct {
	MinBalance    map[domain.AccountType]decimal.Decimal
	Policy        domain.AccountPolicy
	LockTimeout   time.Duration
	RecordFailed  bool
	TopCategories int
	CacheTTL      time.Duration
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		MinBalance: map[domain.AccountType]decimal.Decimal{
			domain.AccountTypeInvestment: decimal.NewFromInt(100),
		},
		Policy:        domain.OnePerTypePolicy{},
		LockTimeout:   3 * time.Second,
		RecordFailed:  true,
		TopCategories: 5,
		CacheTTL:      30 * time.Second,
	}
}

// OptionsFromConfig 从配置构造业务参数，policy 由调用方按配置创建
func OptionsFromConfig(cfg config.LedgerConfig, policy domain.AccountPolicy) (Options, error) {
	opts := DefaultOptions()
	opts.MinBalance = make(map[domain.AccountType]decimal.Decimal, len(cfg.MinBalance))
	for typ, raw := range cfg.MinBalance {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return Options{}, fmt.Errorf("invalid ledger.min_balance.%s %q: %w", typ, raw, err)
		}
		opts.MinBalance[domain.AccountType(typ)] = v
	}
	if policy != nil {
		opts.Policy = policy
	}
	if cfg.LockTimeout > 0 {
		opts.LockTimeout = time.Duration(cfg.LockTimeout) * time.Millisecond
	}
	opts.RecordFailed = cfg.RecordFailed
	if cfg.TopCategories > 0 {
		opts.TopCategories = cfg.TopCategories
	}
	opts.CacheTTL = time.Duration(cfg.AnalyticsCacheTTL) * time.Second
	return opts, nil
}

// authorize 有调用方身份时要求其为户主本人
func authorize(ctx context.Context, ownerID string) error {
	caller := contextx.UserID(ctx)
	if caller != "" && caller != ownerID {
		return domain.ErrForbidden
	}
	return nil
}
