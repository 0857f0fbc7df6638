package application

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateAccountCommand 开户命令
type CreateAccountCommand struct {
	OwnerID        string `validate:"required,max=64"`
	Type           string `validate:"required,oneof=savings current investment"`
	Name           string `validate:"required,max=64"`
	Currency       string `validate:"omitempty,len=3"`
	InitialBalance decimal.Decimal
	InterestRate   *decimal.Decimal
	DailyLimit     *decimal.Decimal
	MonthlyLimit   *decimal.Decimal
}

// UpsertOwnerCommand 户主资料
type UpsertOwnerCommand struct {
	OwnerID  string `validate:"required,max=64"`
	Phone    string `validate:"omitempty,max=32"`
	FullName string `validate:"max=128"`
	Tier     string `validate:"omitempty,oneof=standard premium"`
}

// TransferCommand 账户间转账
type TransferCommand struct {
	// 调用方提供的幂等键，为空时自动生成
	TransactionID string `validate:"omitempty,max=64"`
	FromAccountID string `validate:"required"`
	ToAccountID   string `validate:"required"`
	Amount        decimal.Decimal
	Category      string `validate:"max=64"`
	Description   string `validate:"max=255"`
}

// DepositCommand 单边入账：deposit、refund、interest
type DepositCommand struct {
	TransactionID string `validate:"omitempty,max=64"`
	AccountID     string `validate:"required"`
	Amount        decimal.Decimal
	// 为空时为 deposit
	Type        string `validate:"omitempty,oneof=deposit refund interest"`
	Category    string `validate:"max=64"`
	Description string `validate:"max=255"`
}

// WithdrawCommand 单边出账：withdrawal、card_payment、fee
type WithdrawCommand struct {
	TransactionID string `validate:"omitempty,max=64"`
	AccountID     string `validate:"required"`
	Amount        decimal.Decimal
	// 为空时为 withdrawal
	Type        string `validate:"omitempty,oneof=withdrawal card_payment fee"`
	Category    string `validate:"max=64"`
	Description string `validate:"max=255"`
}

// ReverseCommand 冲正已完成交易
type ReverseCommand struct {
	TransactionID string `validate:"required"`
	Reason        string `validate:"max=255"`
}

// ListTransactionsQuery 交易查询，AccountID 与 OwnerID 二选一
type ListTransactionsQuery struct {
	AccountID string
	OwnerID   string
	Status    string `validate:"omitempty,oneof=pending completed failed"`
	Type      string
	Category  string
	From      *time.Time
	To        *time.Time
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	Limit     int `validate:"min=0"`
	Offset    int `validate:"min=0"`
}

// Period 统计区间 [From, To)
type Period struct {
	From time.Time
	To   time.Time
}
