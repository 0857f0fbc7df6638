package application

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
	"github.com/wyfcoding/bankledger/pkg/logger"
)

var monthsPerYear = decimal.NewFromInt(12)

// monthlyInterest 余额 × 年利率 / 12，按币种精度四舍五入
func monthlyInterest(acc *domain.Account) decimal.Decimal {
	if acc.InterestRate == nil || !acc.Balance.IsPositive() {
		return decimal.Zero
	}
	return acc.Balance.Mul(*acc.InterestRate).Div(monthsPerYear).Round(domain.CurrencyScale(acc.Currency))
}

// InterestAccrualJob 按月为设置了年利率的活跃账户入账利息
// 交易号 INT-<账户>-<yyyymm> 保证同一账户每月只入账一次
type InterestAccrualJob struct {
	deps      Deps
	processor *TransferProcessor
	interval  time.Duration
}

// NewInterestAccrualJob 创建计息任务
func NewInterestAccrualJob(deps Deps, processor *TransferProcessor, interval time.Duration) *InterestAccrualJob {
	return &InterestAccrualJob{deps: deps, processor: processor, interval: interval}
}

// Start 定时执行直到 ctx 结束
func (j *InterestAccrualJob) Start(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	logger.Info(ctx, "interest accrual job started", "interval", j.interval.String())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil {
				logger.Error(ctx, "interest accrual run failed", "error", err)
			}
		}
	}
}

// RunOnce 执行一轮计息，返回本轮新入账的笔数
func (j *InterestAccrualJob) RunOnce(ctx context.Context) (int, error) {
	accounts, err := j.deps.Accounts.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	period := j.deps.now().UTC().Format("200601")

	var posted atomic.Int64
	p := pool.New().WithMaxGoroutines(4).WithContext(ctx)
	for _, acc := range accounts {
		if acc.InterestRate == nil || !acc.InterestRate.IsPositive() {
			continue
		}
		txID := fmt.Sprintf("INT-%s-%s", acc.ID, period)
		p.Go(func(ctx context.Context) error {
			if _, err := j.deps.Transactions.GetByTransactionID(ctx, txID); err == nil {
				return nil
			}
			// 金额由处理器在账户锁内按最新余额计算
			_, err := j.processor.AccrueInterest(ctx, txID, acc.ID, period)
			switch {
			case err == nil:
				posted.Add(1)
			case errors.Is(err, domain.ErrDuplicateTransaction), errors.Is(err, errNothingDue):
				// 本月已入账或无利息
			default:
				logger.Error(ctx, "failed to accrue interest", "account_id", acc.ID, "error", err)
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return int(posted.Load()), err
	}
	return int(posted.Load()), nil
}
