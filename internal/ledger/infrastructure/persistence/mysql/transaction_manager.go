// Package mysql 基于 GORM 的账本存储，兼容 MySQL 与 PostgreSQL
package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/wyfcoding/bankledger/internal/ledger/domain"
	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"
)

// baseRepository 事务感知的仓储基类
type baseRepository struct {
	db *gorm.DB
}

// getDB context 中有事务时使用事务连接
func (r *baseRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return r.db.WithContext(ctx)
}

// TransactionManager 实现 UnitOfWork，一次调用对应一个数据库事务
type TransactionManager struct {
	db *gorm.DB
}

// NewTransactionManager 创建事务管理器
func NewTransactionManager(db *gorm.DB) *TransactionManager {
	return &TransactionManager{db: db}
}

// Transact 嵌套调用复用外层事务
func (tm *TransactionManager) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return fn(ctx)
	}
	err := tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(contextx.WithTx(ctx, tx))
	})
	return mapError(err)
}

// mapError 把驱动与上下文错误归入领域错误类别
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		if errors.Is(err, domain.ErrTimeout) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	default:
		return err
	}
}

// AutoMigrate 建表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

var _ domain.UnitOfWork = (*TransactionManager)(nil)
