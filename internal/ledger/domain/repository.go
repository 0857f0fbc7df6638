package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AccountStore 账户存储，余额的唯一所有者
type AccountStore interface {
	// Create 保存新账户，账号重复时返回错误
	Create(ctx context.Context, account *Account) error
	// Get 按内部 ID 查询
	Get(ctx context.Context, accountID string) (*Account, error)
	// GetByNumber 按对外账号查询
	GetByNumber(ctx context.Context, number string) (*Account, error)
	// GetForUpdate 在事务中读取并锁定账户行
	GetForUpdate(ctx context.Context, accountID string) (*Account, error)
	// AdjustBalance 余额唯一的修改入口，expectedPrior 不为空时做比较交换
	AdjustBalance(ctx context.Context, accountID string, delta decimal.Decimal, expectedPrior *decimal.Decimal) (*Account, error)
	// Update 保存名称与状态等非余额字段，按版本号检测并发修改
	Update(ctx context.Context, account *Account) error
	// ListByOwner 户主的全部账户
	ListByOwner(ctx context.Context, ownerID string) ([]*Account, error)
	// ListActive 全部活跃账户
	ListActive(ctx context.Context) ([]*Account, error)
}

// Side 交易查询中账户所处的一侧
type Side int

const (
	SideAny Side = iota
	SideSource
	SideDestination
)

// TransactionQuery 交易查询条件，零值字段不参与过滤
type TransactionQuery struct {
	AccountIDs []string
	Side       Side
	Status     TransactionStatus
	Types      []TransactionType
	Category   string
	// [From, To)
	From      *time.Time
	To        *time.Time
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	// 0 表示不分页
	Limit  int
	Offset int
}

// TransactionLog 只追加的交易日志
type TransactionLog interface {
	// Append 追加交易，交易号重复时返回 ErrDuplicateTransaction
	Append(ctx context.Context, tx *Transaction) error
	// GetByTransactionID 按交易号查询
	GetByTransactionID(ctx context.Context, transactionID string) (*Transaction, error)
	// List 按创建时间倒序返回一页结果与总数
	List(ctx context.Context, q TransactionQuery) ([]*Transaction, int64, error)
}

// OwnerStore 户主资料存储
type OwnerStore interface {
	Upsert(ctx context.Context, owner *Owner) error
	Get(ctx context.Context, ownerID string) (*Owner, error)
	FindByPhone(ctx context.Context, phone string) ([]*Owner, error)
}

// UnitOfWork 单个存储事务，fn 内的所有写入要么全部生效要么全部回滚
type UnitOfWork interface {
	Transact(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker 按键加锁，多个键按固定顺序获取以避免死锁
type Locker interface {
	// Lock 获取全部键的锁，ctx 到期时返回 ErrTimeout
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

// EventPublisher 交易事件发布
type EventPublisher interface {
	PublishTransactionCompleted(ctx context.Context, event TransactionCompletedEvent) error
}
