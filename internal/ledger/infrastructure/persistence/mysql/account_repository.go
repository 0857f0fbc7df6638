package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AccountRepository 账户仓储实现
type AccountRepository struct {
	baseRepository
	tm *TransactionManager
}

// NewAccountRepository 创建账户仓储
func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{baseRepository: baseRepository{db: db}, tm: NewTransactionManager(db)}
}

// Create 保存新账户
func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	po := toAccountPO(account)
	po.Version = 1
	if err := r.getDB(ctx).Create(po).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrAccountNumberTaken
		}
		return fmt.Errorf("failed to create account: %w", mapError(err))
	}
	account.Version = po.Version
	account.CreatedAt = po.CreatedAt
	account.UpdatedAt = po.UpdatedAt
	return nil
}

func (r *AccountRepository) first(db *gorm.DB, query string, arg any) (*domain.Account, error) {
	var po AccountPO
	if err := db.Where(query, arg).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to load account: %w", mapError(err))
	}
	return toAccount(&po), nil
}

// Get 按内部 ID 查询
func (r *AccountRepository) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	return r.first(r.getDB(ctx), "account_id = ?", accountID)
}

// GetByNumber 按对外账号查询
func (r *AccountRepository) GetByNumber(ctx context.Context, number string) (*domain.Account, error) {
	return r.first(r.getDB(ctx), "number = ?", number)
}

// GetForUpdate SELECT ... FOR UPDATE，必须在事务中调用
func (r *AccountRepository) GetForUpdate(ctx context.Context, accountID string) (*domain.Account, error) {
	db := r.getDB(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
	return r.first(db, "account_id = ?", accountID)
}

// AdjustBalance 行锁读取后按版本号条件更新
func (r *AccountRepository) AdjustBalance(ctx context.Context, accountID string, delta decimal.Decimal, expectedPrior *decimal.Decimal) (*domain.Account, error) {
	var result *domain.Account
	err := r.tm.Transact(ctx, func(ctx context.Context) error {
		acc, err := r.GetForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if err := acc.EnsureActive(); err != nil {
			return err
		}
		if expectedPrior != nil && !acc.Balance.Equal(*expectedPrior) {
			return domain.ErrConcurrentModification
		}
		next := acc.Balance.Add(delta)
		if next.IsNegative() {
			return domain.ErrInsufficientFunds
		}

		res := r.getDB(ctx).Model(&AccountPO{}).
			Where("account_id = ? AND version = ?", accountID, acc.Version).
			Updates(map[string]any{
				"balance": next,
				"version": acc.Version + 1,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update balance: %w", mapError(res.Error))
		}
		if res.RowsAffected == 0 {
			return domain.ErrConcurrentModification
		}

		acc.Balance = next
		acc.Version++
		result = acc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Update 保存非余额字段（带乐观锁）
func (r *AccountRepository) Update(ctx context.Context, account *domain.Account) error {
	res := r.getDB(ctx).Model(&AccountPO{}).
		Where("account_id = ? AND version = ?", account.ID, account.Version).
		Updates(map[string]any{
			"name":          account.Name,
			"status":        string(account.Status),
			"interest_rate": toNull(account.InterestRate),
			"daily_limit":   toNull(account.DailyLimit),
			"monthly_limit": toNull(account.MonthlyLimit),
			"version":       account.Version + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update account: %w", mapError(res.Error))
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, account.ID); err != nil {
			return err
		}
		return domain.ErrConcurrentModification
	}
	account.Version++
	return nil
}

func (r *AccountRepository) list(db *gorm.DB) ([]*domain.Account, error) {
	var pos []*AccountPO
	if err := db.Order("created_at ASC, id ASC").Find(&pos).Error; err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", mapError(err))
	}
	out := make([]*domain.Account, len(pos))
	for i, po := range pos {
		out[i] = toAccount(po)
	}
	return out, nil
}

// ListByOwner 户主的全部账户
func (r *AccountRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Account, error) {
	return r.list(r.getDB(ctx).Where("owner_id = ?", ownerID))
}

// ListActive 全部活跃账户
func (r *AccountRepository) ListActive(ctx context.Context) ([]*domain.Account, error) {
	return r.list(r.getDB(ctx).Where("status = ?", string(domain.AccountStatusActive)))
}

var _ domain.AccountStore = (*AccountRepository)(nil)
