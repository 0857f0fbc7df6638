package application

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
	"github.com/wyfcoding/bankledger/pkg/contextx"
	"github.com/wyfcoding/bankledger/pkg/logger"
)

const (
	accountNumberDigits   = 12
	accountNumberAttempts = 5
)

// AccountService 开户、销户、改名与户主资料
type AccountService struct {
	deps Deps
	opts Options
}

// NewAccountService 创建账户服务
func NewAccountService(deps Deps, opts Options) *AccountService {
	return &AccountService{deps: deps, opts: opts}
}

// CreateAccount 开户；初始金额以 opening_balance 存款交易在同一事务内入账
func (s *AccountService) CreateAccount(ctx context.Context, cmd CreateAccountCommand) (*domain.Account, error) {
	if cmd.OwnerID == "" {
		return nil, domain.ErrMissingField
	}
	if err := authorize(ctx, cmd.OwnerID); err != nil {
		return nil, err
	}
	typ := domain.AccountType(cmd.Type)
	if !typ.Valid() {
		return nil, domain.ErrInvalidAccountType
	}
	currency := DefaultCurrency
	if cmd.Currency != "" {
		c, err := domain.NormalizeCurrency(cmd.Currency)
		if err != nil {
			return nil, err
		}
		currency = c
	}

	initial := cmd.InitialBalance
	if initial.IsNegative() {
		return nil, domain.ErrInvalidAmount
	}
	if initial.IsPositive() {
		v, err := domain.NormalizeAmount(initial, currency)
		if err != nil {
			return nil, err
		}
		initial = v
	}
	if initial.LessThan(s.opts.MinBalance[typ]) {
		return nil, fmt.Errorf("%w: minimum for %s is %s", domain.ErrBelowMinimumBalance, typ, s.opts.MinBalance[typ].String())
	}

	// 同一户主的开户串行执行，策略检查与创建之间不会插入其他开户
	lockCtx, cancel := context.WithTimeout(ctx, s.opts.LockTimeout)
	defer cancel()
	unlock, err := s.deps.Locker.Lock(lockCtx, "owner:"+cmd.OwnerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.checkPolicy(ctx, cmd.OwnerID, typ, initial); err != nil {
		logger.Warn(ctx, "account creation rejected by policy", "owner_id", cmd.OwnerID, "type", string(typ), "error", err)
		return nil, err
	}

	var acc *domain.Account
	for attempt := 0; attempt < accountNumberAttempts; attempt++ {
		number, err := newAccountNumber()
		if err != nil {
			return nil, err
		}
		acc, err = domain.NewAccount(s.deps.IDs.Next("ACC"), cmd.OwnerID, number, typ, cmd.Name, currency)
		if err != nil {
			return nil, err
		}
		acc.InterestRate = cmd.InterestRate
		acc.DailyLimit = cmd.DailyLimit
		acc.MonthlyLimit = cmd.MonthlyLimit

		var opening *domain.Transaction
		err = s.deps.UoW.Transact(ctx, func(ctx context.Context) error {
			var err error
			opening, err = s.open(ctx, acc, initial)
			return err
		})
		if errors.Is(err, domain.ErrAccountNumberTaken) {
			continue
		}
		if err != nil {
			logger.Error(ctx, "failed to create account", "owner_id", cmd.OwnerID, "error", err)
			return nil, err
		}

		logger.Info(ctx, "account created",
			"account_id", acc.ID,
			"owner_id", acc.OwnerID,
			"type", string(acc.Type),
			"amount", initial.String(),
		)
		if opening != nil && s.deps.Notifier != nil {
			s.deps.Notifier.Notify(ctx, opening.Clone())
		}
		return s.deps.Accounts.Get(ctx, acc.ID)
	}
	return nil, domain.ErrAccountNumberTaken
}

func (s *AccountService) open(ctx context.Context, acc *domain.Account, initial decimal.Decimal) (*domain.Transaction, error) {
	if err := s.deps.Accounts.Create(ctx, acc); err != nil {
		return nil, err
	}
	if !initial.IsPositive() {
		return nil, nil
	}
	tx := domain.NewTransaction(s.deps.IDs.Next("TXN"), domain.TxDeposit, initial, acc.Currency, "", acc.ID,
		domain.CategoryOpeningBalance, "opening balance")
	tx.CreatedAt = s.deps.now()
	if err := tx.Complete(ctx); err != nil {
		return nil, err
	}
	if _, err := s.deps.Accounts.AdjustBalance(ctx, acc.ID, initial, nil); err != nil {
		return nil, err
	}
	if err := s.deps.Transactions.Append(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *AccountService) checkPolicy(ctx context.Context, ownerID string, typ domain.AccountType, initial decimal.Decimal) error {
	tier := domain.TierStandard
	owner, err := s.deps.Owners.Get(ctx, ownerID)
	switch {
	case err == nil:
		tier = owner.Tier
	case !errors.Is(err, domain.ErrNotFound):
		return err
	}

	accounts, err := s.deps.Accounts.ListByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	in := domain.PolicyInput{OwnerID: ownerID, Tier: tier, Type: string(typ), InitialBalance: initial.InexactFloat64()}
	for _, a := range accounts {
		if !a.IsActive() {
			continue
		}
		in.ActiveTotal++
		if a.Type == typ {
			in.ActiveOfType++
		}
	}
	return s.opts.Policy.Allow(ctx, in)
}

// CloseAccount 余额为零时销户
func (s *AccountService) CloseAccount(ctx context.Context, accountID string) error {
	return s.mutate(ctx, accountID, func(acc *domain.Account) error { return acc.Close() })
}

// RenameAccount 修改账户名称
func (s *AccountService) RenameAccount(ctx context.Context, accountID, name string) (*domain.Account, error) {
	if err := s.mutate(ctx, accountID, func(acc *domain.Account) error { return acc.Rename(name) }); err != nil {
		return nil, err
	}
	return s.deps.Accounts.Get(ctx, accountID)
}

// mutate 持账户锁修改非余额字段，与该账户上的转账互斥
func (s *AccountService) mutate(ctx context.Context, accountID string, fn func(acc *domain.Account) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.opts.LockTimeout)
	defer cancel()
	unlock, err := s.deps.Locker.Lock(lockCtx, accountID)
	if err != nil {
		return err
	}
	defer unlock()

	err = s.deps.UoW.Transact(ctx, func(ctx context.Context) error {
		acc, err := s.deps.Accounts.GetForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if err := authorize(ctx, acc.OwnerID); err != nil {
			return err
		}
		if err := fn(acc); err != nil {
			return err
		}
		return s.deps.Accounts.Update(ctx, acc)
	})
	if err != nil {
		logger.Warn(ctx, "account update rejected", "account_id", accountID, "error", err)
		return err
	}
	logger.Info(ctx, "account updated", "account_id", accountID)
	return nil
}

// GetAccount 查询账户
func (s *AccountService) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	acc, err := s.deps.Accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, acc.OwnerID); err != nil {
		return nil, err
	}
	return acc, nil
}

// ListAccounts 户主名下全部账户
func (s *AccountService) ListAccounts(ctx context.Context, ownerID string) ([]*domain.Account, error) {
	if ownerID == "" {
		return nil, domain.ErrMissingField
	}
	if err := authorize(ctx, ownerID); err != nil {
		return nil, err
	}
	return s.deps.Accounts.ListByOwner(ctx, ownerID)
}

// UpsertOwner 保存户主资料，手机号统一为纯数字
// 等级只能由内部调用方（无用户身份）设置，户主本人更新资料时保留原等级
func (s *AccountService) UpsertOwner(ctx context.Context, cmd UpsertOwnerCommand) (*domain.Owner, error) {
	if err := authorize(ctx, cmd.OwnerID); err != nil {
		return nil, err
	}
	tier := cmd.Tier
	if contextx.UserID(ctx) != "" {
		tier = domain.TierStandard
		existing, err := s.deps.Owners.Get(ctx, cmd.OwnerID)
		switch {
		case err == nil:
			tier = existing.Tier
		case !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
		if cmd.Tier != "" && cmd.Tier != tier {
			logger.Warn(ctx, "ignoring self-assigned tier", "owner_id", cmd.OwnerID, "requested", cmd.Tier, "kept", tier)
		}
	}
	owner, err := domain.NewOwner(cmd.OwnerID, cmd.Phone, cmd.FullName, tier)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Owners.Upsert(ctx, owner); err != nil {
		return nil, err
	}
	return owner, nil
}

// newAccountNumber 12 位随机账号，首位非零
func newAccountNumber() (string, error) {
	var b strings.Builder
	for i := 0; i < accountNumberDigits; i++ {
		limit := int64(10)
		if i == 0 {
			limit = 9
		}
		n, err := rand.Int(rand.Reader, big.NewInt(limit))
		if err != nil {
			return "", fmt.Errorf("failed to generate account number: %w", err)
		}
		d := n.Int64()
		if i == 0 {
			d++
		}
		b.WriteByte(byte('0' + d))
	}
	return b.String(), nil
}
