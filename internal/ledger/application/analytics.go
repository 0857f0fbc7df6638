package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
	"github.com/wyfcoding/bankledger/pkg/logger"
)

// 分类统计的方向
const (
	FlowIncome  = "income"
	FlowExpense = "expense"
)

const (
	uncategorized = "Uncategorized"
	otherCategory = "Other"
)

var hundred = decimal.NewFromInt(100)

// ProjectionCache 可重算结果的缓存，未命中时调用 load 并回填
type ProjectionCache interface {
	Fetch(ctx context.Context, key string, dest any, load func(ctx context.Context) (any, error)) error
}

// MonthlyDelta 账户本月余额变化
type MonthlyDelta struct {
	AccountID            string          `json:"account_id"`
	Currency             string          `json:"currency"`
	AsOf                 time.Time       `json:"as_of"`
	CurrentBalance       decimal.Decimal `json:"current_balance"`
	PreviousMonthBalance decimal.Decimal `json:"previous_month_balance"`
	ChangeAmount         decimal.Decimal `json:"change_amount"`
	ChangePercent        decimal.Decimal `json:"change_percent"`
}

// CategoryBucket 单个分类的统计
type CategoryBucket struct {
	Category   string          `json:"category"`
	Type       string          `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage decimal.Decimal `json:"percentage"`
	Count      int             `json:"count"`
}

// CategoryBreakdown 户主在区间内的收支分类
type CategoryBreakdown struct {
	OwnerID      string           `json:"owner_id"`
	From         time.Time        `json:"from"`
	To           time.Time        `json:"to"`
	TotalIncome  decimal.Decimal  `json:"total_income"`
	TotalExpense decimal.Decimal  `json:"total_expense"`
	Buckets      []CategoryBucket `json:"buckets"`
}

// AnalyticsService 从交易日志重放得到的只读统计，不写任何存储
type AnalyticsService struct {
	deps  Deps
	opts  Options
	cache ProjectionCache
}

// NewAnalyticsService 创建分析服务，cache 可为空
func NewAnalyticsService(deps Deps, opts Options, cache ProjectionCache) *AnalyticsService {
	return &AnalyticsService{deps: deps, opts: opts, cache: cache}
}

// MonthlyDelta 上月末余额 = 当前余额 - 本月以来已完成交易的净额
// 只在交易不可修改、创建时间不回填的前提下成立
// 余额与本月流水在账户锁和同一事务内读取，避免中间插入的入账只计入一侧
func (s *AnalyticsService) MonthlyDelta(ctx context.Context, accountID string, asOf time.Time) (*MonthlyDelta, error) {
	if asOf.IsZero() {
		asOf = s.deps.now()
	}
	asOf = asOf.UTC()
	monthStart := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, time.UTC)

	lockCtx, cancel := context.WithTimeout(ctx, s.opts.LockTimeout)
	defer cancel()
	unlock, err := s.deps.Locker.Lock(lockCtx, accountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		acc  *domain.Account
		rows []*domain.Transaction
	)
	err = s.deps.UoW.Transact(ctx, func(ctx context.Context) error {
		var err error
		if acc, err = s.deps.Accounts.Get(ctx, accountID); err != nil {
			return err
		}
		if err := authorize(ctx, acc.OwnerID); err != nil {
			return err
		}
		rows, _, err = s.deps.Transactions.List(ctx, domain.TransactionQuery{
			AccountIDs: []string{accountID},
			Status:     domain.TxStatusCompleted,
			From:       &monthStart,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	// asOf 之后的交易从当前余额中扣回
	var sinceMonthStart, afterAsOf decimal.Decimal
	for _, tx := range rows {
		signed := tx.SignedAmountFor(accountID)
		sinceMonthStart = sinceMonthStart.Add(signed)
		if tx.CreatedAt.After(asOf) {
			afterAsOf = afterAsOf.Add(signed)
		}
	}

	current := acc.Balance.Sub(afterAsOf)
	previous := acc.Balance.Sub(sinceMonthStart)
	if !acc.CreatedAt.Before(monthStart) {
		previous = decimal.Zero
	}
	change := current.Sub(previous)

	return &MonthlyDelta{
		AccountID:            accountID,
		Currency:             acc.Currency,
		AsOf:                 asOf,
		CurrentBalance:       current,
		PreviousMonthBalance: previous,
		ChangeAmount:         change,
		ChangePercent:        changePercent(change, previous),
	}, nil
}

// changePercent 上期为零时按变化方向取 ±100 或 0
func changePercent(change, previous decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		switch change.Sign() {
		case 1:
			return hundred
		case -1:
			return hundred.Neg()
		}
		return decimal.Zero
	}
	return change.Div(previous.Abs()).Mul(hundred).Round(2)
}

// CategoryBreakdown 按收入/支出分别统计分类占比，超出前 N 项的合并为 Other
// 同一户主账户之间的转账既不算收入也不算支出
func (s *AnalyticsService) CategoryBreakdown(ctx context.Context, ownerID string, period Period) (*CategoryBreakdown, error) {
	if ownerID == "" {
		return nil, domain.ErrMissingField
	}
	if err := authorize(ctx, ownerID); err != nil {
		return nil, err
	}
	now := s.deps.now().UTC()
	if period.From.IsZero() && period.To.IsZero() {
		period.From = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		period.To = period.From.AddDate(0, 1, 0)
	}
	if period.To.IsZero() {
		period.To = now
	}
	if !period.From.Before(period.To) {
		return nil, fmt.Errorf("%w: period start must be before end", domain.ErrValidation)
	}

	// 已结束的区间结果不会再变化，可以缓存
	if s.cache != nil && !period.To.After(now) {
		key := fmt.Sprintf("ledger:analytics:breakdown:%s:%d:%d:%d", ownerID, period.From.Unix(), period.To.Unix(), s.opts.TopCategories)
		var out CategoryBreakdown
		err := s.cache.Fetch(ctx, key, &out, func(ctx context.Context) (any, error) {
			return s.computeBreakdown(ctx, ownerID, period)
		})
		if err == nil {
			return &out, nil
		}
		logger.Warn(ctx, "analytics cache unavailable, computing directly", "owner_id", ownerID, "error", err)
	}
	return s.computeBreakdown(ctx, ownerID, period)
}

func (s *AnalyticsService) computeBreakdown(ctx context.Context, ownerID string, period Period) (*CategoryBreakdown, error) {
	accounts, err := s.deps.Accounts.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	owned := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		owned[a.ID] = true
	}

	p := pool.NewWithResults[[]*domain.Transaction]().WithMaxGoroutines(4).WithContext(ctx).WithCancelOnError()
	for _, a := range accounts {
		p.Go(func(ctx context.Context) ([]*domain.Transaction, error) {
			rows, _, err := s.deps.Transactions.List(ctx, domain.TransactionQuery{
				AccountIDs: []string{a.ID},
				Status:     domain.TxStatusCompleted,
				From:       &period.From,
				To:         &period.To,
			})
			return rows, err
		})
	}
	perAccount, err := p.Wait()
	if err != nil {
		return nil, err
	}

	type key struct{ flow, category string }
	buckets := make(map[key]*CategoryBucket)
	totals := map[string]decimal.Decimal{FlowIncome: decimal.Zero, FlowExpense: decimal.Zero}
	seen := make(map[string]bool)

	for _, rows := range perAccount {
		for _, tx := range rows {
			if seen[tx.TransactionID] {
				continue
			}
			seen[tx.TransactionID] = true
			if owned[tx.FromAccountID] && owned[tx.ToAccountID] {
				continue
			}
			side := tx.FromAccountID
			if !owned[side] {
				side = tx.ToAccountID
			}
			flow := FlowExpense
			if tx.PerspectiveType(side).IsCredit() {
				flow = FlowIncome
			}
			category := tx.Category
			if category == "" {
				category = uncategorized
			}
			k := key{flow, category}
			b, ok := buckets[k]
			if !ok {
				b = &CategoryBucket{Category: category, Type: flow}
				buckets[k] = b
			}
			b.Amount = b.Amount.Add(tx.Amount)
			b.Count++
			totals[flow] = totals[flow].Add(tx.Amount)
		}
	}

	out := &CategoryBreakdown{
		OwnerID:      ownerID,
		From:         period.From,
		To:           period.To,
		TotalIncome:  totals[FlowIncome],
		TotalExpense: totals[FlowExpense],
		Buckets:      []CategoryBucket{},
	}
	for _, flow := range []string{FlowIncome, FlowExpense} {
		var list []CategoryBucket
		for k, b := range buckets {
			if k.flow == flow {
				list = append(list, *b)
			}
		}
		out.Buckets = append(out.Buckets, topN(list, s.opts.TopCategories, totals[flow])...)
	}
	return out, nil
}

// topN 按金额降序保留前 n 项，其余合并为 Other 并排在最后，占比以同方向合计为分母
// 用户自填的 Other 分类并入同一个 Other 桶
func topN(list []CategoryBucket, n int, total decimal.Decimal) []CategoryBucket {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].Amount.Equal(list[j].Amount) {
			return list[i].Amount.GreaterThan(list[j].Amount)
		}
		return list[i].Category < list[j].Category
	})

	var other *CategoryBucket
	named := make([]CategoryBucket, 0, len(list))
	for _, b := range list {
		if b.Category == otherCategory {
			other = &CategoryBucket{Category: otherCategory, Type: b.Type, Amount: b.Amount, Count: b.Count}
			continue
		}
		named = append(named, b)
	}
	if n > 0 && len(named) > n {
		if other == nil {
			other = &CategoryBucket{Category: otherCategory, Type: named[0].Type}
		}
		for _, b := range named[n:] {
			other.Amount = other.Amount.Add(b.Amount)
			other.Count += b.Count
		}
		named = named[:n:n]
	}
	if other != nil {
		named = append(named, *other)
	}

	for i := range named {
		if total.IsPositive() {
			named[i].Percentage = named[i].Amount.Div(total).Mul(hundred).Round(2)
		}
	}
	return named
}
