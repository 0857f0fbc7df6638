package application

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
)

const transientRetries = 3

// LedgerService 对外接口使用的门面：参数校验、幂等键分配与瞬时错误重试
type LedgerService struct {
	Accounts  *AccountService
	Processor *TransferProcessor
	Queries   *QueryService
	Analytics *AnalyticsService
	Resolver  *RecipientResolver

	deps     Deps
	validate *validator.Validate
}

// NewLedgerService 组装全部用例
func NewLedgerService(deps Deps, opts Options, cache ProjectionCache) *LedgerService {
	return &LedgerService{
		Accounts:  NewAccountService(deps, opts),
		Processor: NewTransferProcessor(deps, opts),
		Queries:   NewQueryService(deps),
		Analytics: NewAnalyticsService(deps, opts, cache),
		Resolver:  NewRecipientResolver(deps),
		deps:      deps,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *LedgerService) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrValidation, err.Error())
	}
	return nil
}

// CreateAccount 开户
func (s *LedgerService) CreateAccount(ctx context.Context, cmd CreateAccountCommand) (*domain.Account, error) {
	if err := s.check(cmd); err != nil {
		return nil, err
	}
	return RetryTransient(ctx, transientRetries, func(ctx context.Context) (*domain.Account, error) {
		return s.Accounts.CreateAccount(ctx, cmd)
	})
}

// CloseAccount 销户
func (s *LedgerService) CloseAccount(ctx context.Context, accountID string) error {
	_, err := RetryTransient(ctx, transientRetries, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.Accounts.CloseAccount(ctx, accountID)
	})
	return err
}

// RenameAccount 改名
func (s *LedgerService) RenameAccount(ctx context.Context, accountID, name string) (*domain.Account, error) {
	return RetryTransient(ctx, transientRetries, func(ctx context.Context) (*domain.Account, error) {
		return s.Accounts.RenameAccount(ctx, accountID, name)
	})
}

// GetAccount 查询账户
func (s *LedgerService) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	return s.Accounts.GetAccount(ctx, accountID)
}

// ListAccounts 户主名下账户
func (s *LedgerService) ListAccounts(ctx context.Context, ownerID string) ([]*domain.Account, error) {
	return s.Accounts.ListAccounts(ctx, ownerID)
}

// UpsertOwner 保存户主资料
func (s *LedgerService) UpsertOwner(ctx context.Context, cmd UpsertOwnerCommand) (*domain.Owner, error) {
	if err := s.check(cmd); err != nil {
		return nil, err
	}
	return s.Accounts.UpsertOwner(ctx, cmd)
}

// Transfer 转账；未提供幂等键时在重试前分配，重试不会重复入账
func (s *LedgerService) Transfer(ctx context.Context, cmd TransferCommand) (*domain.Transaction, error) {
	if err := s.check(cmd); err != nil {
		return nil, err
	}
	if cmd.TransactionID == "" {
		cmd.TransactionID = s.deps.IDs.Next("TXN")
	}
	return RetryTransient(ctx, transientRetries, func(ctx context.Context) (*domain.Transaction, error) {
		return s.Processor.Transfer(ctx, cmd)
	})
}

// Deposit 存入
func (s *LedgerService) Deposit(ctx context.Context, cmd DepositCommand) (*domain.Transaction, error) {
	if err := s.check(cmd); err != nil {
		return nil, err
	}
	if cmd.TransactionID == "" {
		cmd.TransactionID = s.deps.IDs.Next("TXN")
	}
	return RetryTransient(ctx, transientRetries, func(ctx context.Context) (*domain.Transaction, error) {
		return s.Processor.Deposit(ctx, cmd)
	})
}

// Withdraw 取出
func (s *LedgerService) Withdraw(ctx context.Context, cmd WithdrawCommand) (*domain.Transaction, error) {
	if err := s.check(cmd); err != nil {
		return nil, err
	}
	if cmd.TransactionID == "" {
		cmd.TransactionID = s.deps.IDs.Next("TXN")
	}
	return RetryTransient(ctx, transientRetries, func(ctx context.Context) (*domain.Transaction, error) {
		return s.Processor.Withdraw(ctx, cmd)
	})
}

// Reverse 冲正
func (s *LedgerService) Reverse(ctx context.Context, cmd ReverseCommand) (*domain.Transaction, error) {
	if err := s.check(cmd); err != nil {
		return nil, err
	}
	return RetryTransient(ctx, transientRetries, func(ctx context.Context) (*domain.Transaction, error) {
		return s.Processor.Reverse(ctx, cmd)
	})
}

// GetTransaction 查询单笔交易
func (s *LedgerService) GetTransaction(ctx context.Context, transactionID string) (*TransactionView, error) {
	return s.Queries.GetTransaction(ctx, transactionID)
}

// ListTransactions 分页查询交易
func (s *LedgerService) ListTransactions(ctx context.Context, q ListTransactionsQuery) (*TransactionPage, error) {
	if err := s.check(q); err != nil {
		return nil, err
	}
	return s.Queries.ListTransactions(ctx, q)
}

// MonthlyDelta 本月余额变化
func (s *LedgerService) MonthlyDelta(ctx context.Context, accountID string, asOf time.Time) (*MonthlyDelta, error) {
	return s.Analytics.MonthlyDelta(ctx, accountID, asOf)
}

// CategoryBreakdown 收支分类
func (s *LedgerService) CategoryBreakdown(ctx context.Context, ownerID string, period Period) (*CategoryBreakdown, error) {
	return s.Analytics.CategoryBreakdown(ctx, ownerID, period)
}

// FindRecipient 手机号与账号必须且只能提供一个
func (s *LedgerService) FindRecipient(ctx context.Context, phone, accountNumber string) ([]*domain.Account, error) {
	switch {
	case phone != "" && accountNumber != "":
		return nil, fmt.Errorf("%w: provide either phone or account number", domain.ErrValidation)
	case phone != "":
		return s.Resolver.FindByPhone(ctx, phone)
	case accountNumber != "":
		return s.Resolver.FindByAccountNumber(ctx, accountNumber)
	default:
		return nil, domain.ErrMissingField
	}
}
