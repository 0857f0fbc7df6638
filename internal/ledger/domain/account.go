// Package domain 账本的领域模型：账户、交易、户主及其仓储端口
package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// AccountType 账户类型
type AccountType string

const (
	AccountTypeSavings    AccountType = "savings"
	AccountTypeCurrent    AccountType = "current"
	AccountTypeInvestment AccountType = "investment"
)

// Valid 是否为已知类型
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeSavings, AccountTypeCurrent, AccountTypeInvestment:
		return true
	}
	return false
}

// AccountStatus 账户状态
type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusClosed AccountStatus = "closed"
)

// Account 账户实体
// 余额只由已完成的交易改变，账户存储是余额的唯一所有者
type Account struct {
	// 内部 ID，不可变
	ID      string
	OwnerID string
	// 对外账号，签发后不可变
	Number   string
	Type     AccountType
	Name     string
	Balance  decimal.Decimal
	Currency string
	Status   AccountStatus
	// 年利率，例如 0.035
	InterestRate *decimal.Decimal
	DailyLimit   *decimal.Decimal
	MonthlyLimit *decimal.Decimal
	// 乐观锁版本号，每次写入递增
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccount 创建零余额的活跃账户，开户金额通过开户存款交易入账
func NewAccount(id, ownerID, number string, typ AccountType, name, currency string) (*Account, error) {
	if id == "" || ownerID == "" || number == "" {
		return nil, ErrMissingField
	}
	if !typ.Valid() {
		return nil, ErrInvalidAccountType
	}
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	return &Account{
		ID:       id,
		OwnerID:  ownerID,
		Number:   number,
		Type:     typ,
		Name:     name,
		Balance:  decimal.Zero,
		Currency: currency,
		Status:   AccountStatusActive,
	}, nil
}

// IsActive 是否活跃
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// EnsureActive 已销户的账户拒绝一切交易
func (a *Account) EnsureActive() error {
	if !a.IsActive() {
		return ErrAccountClosed
	}
	return nil
}

// CanDebit 检查余额是否足够扣减
func (a *Account) CanDebit(amount decimal.Decimal) error {
	if a.Balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	return nil
}

// Close 只有余额为零的活跃账户可以销户
func (a *Account) Close() error {
	if err := a.EnsureActive(); err != nil {
		return err
	}
	if !a.Balance.IsZero() {
		return ErrBalanceNotZero
	}
	a.Status = AccountStatusClosed
	return nil
}

// Rename 修改账户名称
func (a *Account) Rename(name string) error {
	name, err := normalizeName(name)
	if err != nil {
		return err
	}
	a.Name = name
	return nil
}

// Clone 深拷贝
func (a *Account) Clone() *Account {
	c := *a
	c.InterestRate = cloneDecimal(a.InterestRate)
	c.DailyLimit = cloneDecimal(a.DailyLimit)
	c.MonthlyLimit = cloneDecimal(a.MonthlyLimit)
	return &c
}

// MaskAccountNumber 只保留末四位
func MaskAccountNumber(number string) string {
	if len(number) <= 4 {
		return number
	}
	return strings.Repeat("*", len(number)-4) + number[len(number)-4:]
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > 64 {
		return "", ErrInvalidName
	}
	return name, nil
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
