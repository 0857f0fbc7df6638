package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
	"github.com/wyfcoding/bankledger/pkg/contextx"
	"github.com/wyfcoding/bankledger/pkg/logger"
)

// Notifier 交易完成通知，必须立即返回，不得影响资金操作
type Notifier interface {
	Notify(ctx context.Context, tx *domain.Transaction)
}

// posting 一次余额变动请求
type posting struct {
	id          string
	typ         domain.TransactionType
	amount      decimal.Decimal
	from        string
	to          string
	category    string
	description string
	reversalOf  string
	// 非空时金额在锁内按账户当前状态计算，忽略 amount
	derive func(acc *domain.Account) decimal.Decimal
}

// errNothingDue 锁内计算出的金额不为正，不入账
var errNothingDue = errors.New("nothing due")

func (p posting) accounts() []string {
	out := make([]string, 0, 2)
	for _, id := range []string{p.from, p.to} {
		if id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// TransferProcessor 校验并原子地执行转账、存入与取出
// 同一账户的操作在账户锁内串行，余额检查与扣减在同一个存储事务中完成
type TransferProcessor struct {
	deps Deps
	opts Options
}

// NewTransferProcessor 创建转账处理器
func NewTransferProcessor(deps Deps, opts Options) *TransferProcessor {
	return &TransferProcessor{deps: deps, opts: opts}
}

// Transfer 账户间转账，交易以 transfer_out 类型存储
func (p *TransferProcessor) Transfer(ctx context.Context, cmd TransferCommand) (*domain.Transaction, error) {
	if cmd.FromAccountID == "" || cmd.ToAccountID == "" {
		return nil, domain.ErrMissingField
	}
	if cmd.FromAccountID == cmd.ToAccountID {
		return nil, domain.ErrSameAccount
	}
	return p.execute(ctx, posting{
		id:          cmd.TransactionID,
		typ:         domain.TxTransferOut,
		amount:      cmd.Amount,
		from:        cmd.FromAccountID,
		to:          cmd.ToAccountID,
		category:    cmd.Category,
		description: cmd.Description,
	})
}

// Deposit 单边入账
func (p *TransferProcessor) Deposit(ctx context.Context, cmd DepositCommand) (*domain.Transaction, error) {
	if cmd.AccountID == "" {
		return nil, domain.ErrMissingField
	}
	typ := domain.TxDeposit
	if cmd.Type != "" {
		typ = domain.TransactionType(cmd.Type)
	}
	if !typ.IsCredit() || typ == domain.TxTransferIn {
		return nil, domain.ErrInvalidTxType
	}
	return p.execute(ctx, posting{
		id:          cmd.TransactionID,
		typ:         typ,
		amount:      cmd.Amount,
		to:          cmd.AccountID,
		category:    cmd.Category,
		description: cmd.Description,
	})
}

// Withdraw 单边出账
func (p *TransferProcessor) Withdraw(ctx context.Context, cmd WithdrawCommand) (*domain.Transaction, error) {
	if cmd.AccountID == "" {
		return nil, domain.ErrMissingField
	}
	typ := domain.TxWithdrawal
	if cmd.Type != "" {
		typ = domain.TransactionType(cmd.Type)
	}
	if !typ.Valid() || typ.IsCredit() || typ == domain.TxTransferOut {
		return nil, domain.ErrInvalidTxType
	}
	return p.execute(ctx, posting{
		id:          cmd.TransactionID,
		typ:         typ,
		amount:      cmd.Amount,
		from:        cmd.AccountID,
		category:    cmd.Category,
		description: cmd.Description,
	})
}

// Reverse 以新的 refund 交易冲正已完成的转账或单边出账，原交易不变
// 冲正交易号固定为 REV-<原交易号>，重复冲正按幂等重放处理
func (p *TransferProcessor) Reverse(ctx context.Context, cmd ReverseCommand) (*domain.Transaction, error) {
	orig, err := p.deps.Transactions.GetByTransactionID(ctx, cmd.TransactionID)
	if err != nil {
		return nil, err
	}
	if orig.Status != domain.TxStatusCompleted || orig.ReversalOf != "" {
		return nil, domain.ErrNotReversible
	}

	var from, to string
	switch {
	case orig.IsTransfer():
		from, to = orig.ToAccountID, orig.FromAccountID
	case orig.FromAccountID != "":
		acc, err := p.deps.Accounts.Get(ctx, orig.FromAccountID)
		if err != nil {
			return nil, err
		}
		if err := authorize(ctx, acc.OwnerID); err != nil {
			return nil, err
		}
		to = orig.FromAccountID
	default:
		return nil, domain.ErrNotReversible
	}

	description := cmd.Reason
	if description == "" {
		description = "reversal of " + orig.TransactionID
	}
	return p.execute(ctx, posting{
		id:          "REV-" + orig.TransactionID,
		typ:         domain.TxRefund,
		amount:      orig.Amount,
		from:        from,
		to:          to,
		category:    domain.CategoryReversal,
		description: description,
		reversalOf:  orig.TransactionID,
	})
}

// AccrueInterest 按锁内余额与年利率计算当月利息并入账，余额为零或未设利率时返回 errNothingDue
func (p *TransferProcessor) AccrueInterest(ctx context.Context, txID, accountID, period string) (*domain.Transaction, error) {
	if accountID == "" || txID == "" {
		return nil, domain.ErrMissingField
	}
	return p.execute(ctx, posting{
		id:          txID,
		typ:         domain.TxInterest,
		to:          accountID,
		category:    domain.CategoryInterest,
		description: "monthly interest " + period,
		derive:      monthlyInterest,
	})
}

func (p *TransferProcessor) execute(ctx context.Context, req posting) (*domain.Transaction, error) {
	start := time.Now()
	if req.derive == nil && !req.amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	supplied := req.id != ""
	if supplied {
		if tx, found, err := p.replay(ctx, req); found {
			return tx, err
		}
	} else {
		req.id = p.deps.IDs.Next("TXN")
	}

	lockCtx, cancel := context.WithTimeout(ctx, p.opts.LockTimeout)
	defer cancel()
	waitStart := time.Now()
	unlock, err := p.deps.Locker.Lock(lockCtx, req.accounts()...)
	p.deps.Metrics.ObserveLockWait(time.Since(waitStart).Seconds())
	if err != nil {
		p.finish(ctx, req, nil, err, start)
		return nil, err
	}
	defer unlock()

	// 持锁后再查一次，同一幂等键的并发请求只有一个会真正执行
	if supplied {
		if tx, found, err := p.replay(ctx, req); found {
			return tx, err
		}
	}

	var (
		tx       *domain.Transaction
		currency string
	)
	err = p.deps.UoW.Transact(ctx, func(ctx context.Context) error {
		var err error
		tx, currency, err = p.apply(ctx, req)
		return err
	})
	if errors.Is(err, errNothingDue) {
		return nil, err
	}
	if errors.Is(err, domain.ErrDuplicateTransaction) {
		if orig, found, rerr := p.replay(ctx, req); found {
			return orig, rerr
		}
	}
	if err != nil {
		if domain.IsBusinessRejection(err) && p.opts.RecordFailed && currency != "" {
			p.recordFailed(ctx, req, currency, err)
		}
		p.finish(ctx, req, nil, err, start)
		return nil, err
	}

	p.finish(ctx, req, tx, nil, start)
	if p.deps.Notifier != nil {
		p.deps.Notifier.Notify(ctx, tx.Clone())
	}
	return tx, nil
}

// apply 在存储事务内执行；返回的币种用于记录失败交易
func (p *TransferProcessor) apply(ctx context.Context, req posting) (*domain.Transaction, string, error) {
	loaded := make(map[string]*domain.Account, 2)
	for _, id := range req.accounts() {
		acc, err := p.deps.Accounts.GetForUpdate(ctx, id)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %s", err, id)
		}
		loaded[id] = acc
	}
	from, to := loaded[req.from], loaded[req.to]

	if from != nil {
		if err := authorize(ctx, from.OwnerID); err != nil {
			return nil, "", err
		}
	}

	var currency string
	switch {
	case from != nil && to != nil:
		if from.Currency != to.Currency {
			return nil, "", domain.ErrCurrencyMismatch
		}
		currency = from.Currency
	case from != nil:
		currency = from.Currency
	default:
		currency = to.Currency
	}

	if req.derive != nil {
		if req.amount = req.derive(to); !req.amount.IsPositive() {
			return nil, currency, errNothingDue
		}
	}
	amount, err := domain.NormalizeAmount(req.amount, currency)
	if err != nil {
		return nil, "", err
	}

	for _, acc := range []*domain.Account{from, to} {
		if acc == nil {
			continue
		}
		if err := acc.EnsureActive(); err != nil {
			return nil, currency, fmt.Errorf("%w: %s", err, acc.ID)
		}
	}
	if from != nil {
		if err := from.CanDebit(amount); err != nil {
			return nil, currency, err
		}
		if err := p.checkLimits(ctx, from, amount); err != nil {
			return nil, currency, err
		}
	}

	tx := domain.NewTransaction(req.id, req.typ, amount, currency, req.from, req.to, req.category, req.description)
	tx.ReversalOf = req.reversalOf
	tx.CreatedAt = p.deps.now()
	if err := tx.Complete(ctx); err != nil {
		return nil, currency, err
	}

	if from != nil {
		if _, err := p.deps.Accounts.AdjustBalance(ctx, from.ID, amount.Neg(), &from.Balance); err != nil {
			return nil, currency, err
		}
	}
	if to != nil {
		if _, err := p.deps.Accounts.AdjustBalance(ctx, to.ID, amount, &to.Balance); err != nil {
			return nil, currency, err
		}
	}
	if err := p.deps.Transactions.Append(ctx, tx); err != nil {
		return nil, currency, err
	}
	return tx, currency, nil
}

// checkLimits 当日与当月出账合计（含本笔）不得超过账户限额
func (p *TransferProcessor) checkLimits(ctx context.Context, acc *domain.Account, amount decimal.Decimal) error {
	if acc.DailyLimit == nil && acc.MonthlyLimit == nil {
		return nil
	}
	now := p.deps.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	rows, _, err := p.deps.Transactions.List(ctx, domain.TransactionQuery{
		AccountIDs: []string{acc.ID},
		Side:       domain.SideSource,
		Status:     domain.TxStatusCompleted,
		From:       &monthStart,
	})
	if err != nil {
		return err
	}

	day, month := amount, amount
	for _, tx := range rows {
		month = month.Add(tx.Amount)
		if !tx.CreatedAt.Before(dayStart) {
			day = day.Add(tx.Amount)
		}
	}
	if acc.DailyLimit != nil && day.GreaterThan(*acc.DailyLimit) {
		return fmt.Errorf("%w: daily limit %s", domain.ErrLimitExceeded, acc.DailyLimit.String())
	}
	if acc.MonthlyLimit != nil && month.GreaterThan(*acc.MonthlyLimit) {
		return fmt.Errorf("%w: monthly limit %s", domain.ErrLimitExceeded, acc.MonthlyLimit.String())
	}
	return nil
}

// replay 按幂等键查找已有交易；参数不一致或原交易失败时返回 ErrDuplicateTransaction
func (p *TransferProcessor) replay(ctx context.Context, req posting) (*domain.Transaction, bool, error) {
	orig, err := p.deps.Transactions.GetByTransactionID(ctx, req.id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, true, err
	}
	if orig.Status != domain.TxStatusCompleted ||
		orig.Type != req.typ ||
		(req.derive == nil && !orig.Amount.Equal(req.amount)) ||
		orig.FromAccountID != req.from ||
		orig.ToAccountID != req.to {
		return orig, true, domain.ErrDuplicateTransaction
	}
	logger.Info(ctx, "idempotent replay", "transaction_id", req.id)
	return orig, true, nil
}

// recordFailed 在回滚后的事务之外追加 failed 交易用于审计
func (p *TransferProcessor) recordFailed(ctx context.Context, req posting, currency string, cause error) {
	tx := domain.NewTransaction(req.id, req.typ, req.amount, currency, req.from, req.to, req.category, req.description)
	tx.ReversalOf = req.reversalOf
	tx.CreatedAt = p.deps.now()
	if err := tx.Fail(ctx, cause.Error()); err != nil {
		return
	}
	if err := p.deps.Transactions.Append(ctx, tx); err != nil && !errors.Is(err, domain.ErrDuplicateTransaction) {
		logger.Error(ctx, "failed to record failed transaction", "transaction_id", req.id, "error", err)
	}
}

func (p *TransferProcessor) finish(ctx context.Context, req posting, tx *domain.Transaction, err error, start time.Time) {
	elapsed := time.Since(start).Seconds()
	attrs := []any{
		"transaction_id", req.id,
		"type", string(req.typ),
		"from_account_id", req.from,
		"to_account_id", req.to,
		"amount", req.amount.String(),
		"caller", contextx.UserID(ctx),
	}
	switch {
	case err == nil:
		p.deps.Metrics.RecordTransaction(string(tx.Type), string(domain.TxStatusCompleted), elapsed)
		logger.Info(ctx, "transaction completed", attrs...)
	case domain.IsRetryable(err):
		p.deps.Metrics.RecordTransaction(string(req.typ), "retryable", elapsed)
		logger.Warn(ctx, "transaction aborted", append(attrs, "error", err)...)
	case domain.IsBusinessRejection(err),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrForbidden):
		p.deps.Metrics.RecordTransaction(string(req.typ), "rejected", elapsed)
		logger.Warn(ctx, "transaction rejected", append(attrs, "error", err)...)
	default:
		p.deps.Metrics.RecordTransaction(string(req.typ), "error", elapsed)
		logger.Error(ctx, "transaction failed", append(attrs, "error", err)...)
	}
}
