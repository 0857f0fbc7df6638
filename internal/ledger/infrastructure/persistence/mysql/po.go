package mysql

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
	"gorm.io/gorm"
)

// AccountPO 账户表
type AccountPO struct {
	gorm.Model
	AccountID    string              `gorm:"column:account_id;type:varchar(40);uniqueIndex;not null"`
	OwnerID      string              `gorm:"column:owner_id;type:varchar(64);index;not null"`
	Number       string              `gorm:"column:number;type:varchar(20);uniqueIndex;not null"`
	Type         string              `gorm:"column:type;type:varchar(20);not null"`
	Name         string              `gorm:"column:name;type:varchar(64);not null"`
	Balance      decimal.Decimal     `gorm:"column:balance;type:decimal(32,4);default:0;not null"`
	Currency     string              `gorm:"column:currency;type:varchar(3);not null"`
	Status       string              `gorm:"column:status;type:varchar(10);index;not null"`
	InterestRate decimal.NullDecimal `gorm:"column:interest_rate;type:decimal(10,6)"`
	DailyLimit   decimal.NullDecimal `gorm:"column:daily_limit;type:decimal(32,4)"`
	MonthlyLimit decimal.NullDecimal `gorm:"column:monthly_limit;type:decimal(32,4)"`
	Version      int64               `gorm:"column:version;default:1;not null"`
}

// TableName 表名
func (AccountPO) TableName() string {
	return "ledger_accounts"
}

// TransactionPO 交易表，只插入不更新
type TransactionPO struct {
	ID            uint            `gorm:"primarykey"`
	CreatedAt     time.Time       `gorm:"column:created_at;index;not null"`
	TransactionID string          `gorm:"column:transaction_id;type:varchar(64);uniqueIndex;not null"`
	Type          string          `gorm:"column:type;type:varchar(20);index;not null"`
	Amount        decimal.Decimal `gorm:"column:amount;type:decimal(32,4);not null"`
	Currency      string          `gorm:"column:currency;type:varchar(3);not null"`
	FromAccountID *string         `gorm:"column:from_account_id;type:varchar(40);index"`
	ToAccountID   *string         `gorm:"column:to_account_id;type:varchar(40);index"`
	Status        string          `gorm:"column:status;type:varchar(10);index;not null"`
	Category      string          `gorm:"column:category;type:varchar(64);index"`
	Description   string          `gorm:"column:description;type:varchar(255)"`
	FailureReason string          `gorm:"column:failure_reason;type:varchar(255)"`
	ReversalOf    *string         `gorm:"column:reversal_of;type:varchar(64)"`
}

// TableName 表名
func (TransactionPO) TableName() string {
	return "ledger_transactions"
}

// OwnerPO 户主表
type OwnerPO struct {
	gorm.Model
	OwnerID  string `gorm:"column:owner_id;type:varchar(64);uniqueIndex;not null"`
	Phone    string `gorm:"column:phone;type:varchar(20);index"`
	FullName string `gorm:"column:full_name;type:varchar(128)"`
	Tier     string `gorm:"column:tier;type:varchar(20);not null"`
}

// TableName 表名
func (OwnerPO) TableName() string {
	return "ledger_owners"
}

// Models 需要迁移的全部表
func Models() []any {
	return []any{&AccountPO{}, &TransactionPO{}, &OwnerPO{}}
}

func toNull(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func fromNull(n decimal.NullDecimal) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	v := n.Decimal
	return &v
}

func toPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func fromPtr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toAccountPO(a *domain.Account) *AccountPO {
	return &AccountPO{
		AccountID:    a.ID,
		OwnerID:      a.OwnerID,
		Number:       a.Number,
		Type:         string(a.Type),
		Name:         a.Name,
		Balance:      a.Balance,
		Currency:     a.Currency,
		Status:       string(a.Status),
		InterestRate: toNull(a.InterestRate),
		DailyLimit:   toNull(a.DailyLimit),
		MonthlyLimit: toNull(a.MonthlyLimit),
		Version:      a.Version,
	}
}

func toAccount(po *AccountPO) *domain.Account {
	return &domain.Account{
		ID:           po.AccountID,
		OwnerID:      po.OwnerID,
		Number:       po.Number,
		Type:         domain.AccountType(po.Type),
		Name:         po.Name,
		Balance:      po.Balance,
		Currency:     po.Currency,
		Status:       domain.AccountStatus(po.Status),
		InterestRate: fromNull(po.InterestRate),
		DailyLimit:   fromNull(po.DailyLimit),
		MonthlyLimit: fromNull(po.MonthlyLimit),
		Version:      po.Version,
		CreatedAt:    po.CreatedAt,
		UpdatedAt:    po.UpdatedAt,
	}
}

func toTransactionPO(t *domain.Transaction) *TransactionPO {
	return &TransactionPO{
		ID:            t.ID,
		CreatedAt:     t.CreatedAt,
		TransactionID: t.TransactionID,
		Type:          string(t.Type),
		Amount:        t.Amount,
		Currency:      t.Currency,
		FromAccountID: toPtr(t.FromAccountID),
		ToAccountID:   toPtr(t.ToAccountID),
		Status:        string(t.Status),
		Category:      t.Category,
		Description:   t.Description,
		FailureReason: t.FailureReason,
		ReversalOf:    toPtr(t.ReversalOf),
	}
}

func toTransaction(po *TransactionPO) *domain.Transaction {
	return &domain.Transaction{
		ID:            po.ID,
		TransactionID: po.TransactionID,
		Type:          domain.TransactionType(po.Type),
		Amount:        po.Amount,
		Currency:      po.Currency,
		FromAccountID: fromPtr(po.FromAccountID),
		ToAccountID:   fromPtr(po.ToAccountID),
		Status:        domain.TransactionStatus(po.Status),
		Category:      po.Category,
		Description:   po.Description,
		FailureReason: po.FailureReason,
		ReversalOf:    fromPtr(po.ReversalOf),
		CreatedAt:     po.CreatedAt,
	}
}

func toOwner(po *OwnerPO) *domain.Owner {
	return &domain.Owner{
		ID:        po.OwnerID,
		Phone:     po.Phone,
		FullName:  po.FullName,
		Tier:      po.Tier,
		CreatedAt: po.CreatedAt,
		UpdatedAt: po.UpdatedAt,
	}
}
