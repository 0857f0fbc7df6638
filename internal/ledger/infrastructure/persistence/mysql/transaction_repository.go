package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wyfcoding/bankledger/internal/ledger/domain"
	"gorm.io/gorm"
)

// TransactionRepository 交易日志实现，只插入不更新
type TransactionRepository struct {
	baseRepository
}

// NewTransactionRepository 创建交易日志仓储
func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{baseRepository: baseRepository{db: db}}
}

// Append 追加交易，transaction_id 唯一索引冲突即重复提交
func (r *TransactionRepository) Append(ctx context.Context, tx *domain.Transaction) error {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	po := toTransactionPO(tx)
	if err := r.getDB(ctx).Create(po).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateTransaction
		}
		return fmt.Errorf("failed to append transaction: %w", mapError(err))
	}
	tx.ID = po.ID
	return nil
}

// GetByTransactionID 按交易号查询
func (r *TransactionRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	var po TransactionPO
	if err := r.getDB(ctx).Where("transaction_id = ?", transactionID).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to load transaction: %w", mapError(err))
	}
	return toTransaction(&po), nil
}

// List 按条件分页查询，创建时间倒序
func (r *TransactionRepository) List(ctx context.Context, q domain.TransactionQuery) ([]*domain.Transaction, int64, error) {
	query := r.getDB(ctx).Model(&TransactionPO{})

	if len(q.AccountIDs) > 0 {
		switch q.Side {
		case domain.SideSource:
			query = query.Where("from_account_id IN ?", q.AccountIDs)
		case domain.SideDestination:
			query = query.Where("to_account_id IN ?", q.AccountIDs)
		default:
			query = query.Where("(from_account_id IN ? OR to_account_id IN ?)", q.AccountIDs, q.AccountIDs)
		}
	}
	if q.Status != "" {
		query = query.Where("status = ?", string(q.Status))
	}
	if len(q.Types) > 0 {
		types := make([]string, len(q.Types))
		for i, t := range q.Types {
			types[i] = string(t)
		}
		query = query.Where("type IN ?", types)
	}
	if q.Category != "" {
		query = query.Where("category = ?", q.Category)
	}
	if q.From != nil {
		query = query.Where("created_at >= ?", *q.From)
	}
	if q.To != nil {
		query = query.Where("created_at < ?", *q.To)
	}
	if q.MinAmount != nil {
		query = query.Where("amount >= ?", *q.MinAmount)
	}
	if q.MaxAmount != nil {
		query = query.Where("amount <= ?", *q.MaxAmount)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", mapError(err))
	}

	query = query.Order("created_at DESC, id DESC")
	if q.Offset > 0 {
		query = query.Offset(q.Offset)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var pos []*TransactionPO
	if err := query.Find(&pos).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", mapError(err))
	}

	out := make([]*domain.Transaction, len(pos))
	for i, po := range pos {
		out[i] = toTransaction(po)
	}
	return out, total, nil
}

var _ domain.TransactionLog = (*TransactionRepository)(nil)
