package mysql

import "gorm.io/gorm"

// Store 汇总账本所需的全部仓储，共享同一个连接
type Store struct {
	Accounts     *AccountRepository
	Transactions *TransactionRepository
	Owners       *OwnerRepository
	TM           *TransactionManager
}

// NewStore 创建数据库存储
func NewStore(db *gorm.DB) *Store {
	return &Store{
		Accounts:     NewAccountRepository(db),
		Transactions: NewTransactionRepository(db),
		Owners:       NewOwnerRepository(db),
		TM:           NewTransactionManager(db),
	}
}
