package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/fsm"
)

// TransactionType 交易类型
type TransactionType string

const (
	TxDeposit     TransactionType = "deposit"
	TxWithdrawal  TransactionType = "withdrawal"
	TxTransferIn  TransactionType = "transfer_in"
	TxTransferOut TransactionType = "transfer_out"
	TxRefund      TransactionType = "refund"
	TxInterest    TransactionType = "interest"
	TxCardPayment TransactionType = "card_payment"
	TxFee         TransactionType = "fee"
)

// creditTypes 入账类交易的唯一定义，余额计算、校验、统计都以此为准
var creditTypes = map[TransactionType]struct{}{
	TxDeposit:    {},
	TxRefund:     {},
	TxTransferIn: {},
	TxInterest:   {},
}

// IsCredit 是否为入账类
func (t TransactionType) IsCredit() bool {
	_, ok := creditTypes[t]
	return ok
}

// Valid 是否为已知类型
func (t TransactionType) Valid() bool {
	switch t {
	case TxDeposit, TxWithdrawal, TxTransferIn, TxTransferOut, TxRefund, TxInterest, TxCardPayment, TxFee:
		return true
	}
	return false
}

// TransactionStatus 交易状态
type TransactionStatus string

const (
	TxStatusPending   TransactionStatus = "pending"
	TxStatusCompleted TransactionStatus = "completed"
	TxStatusFailed    TransactionStatus = "failed"
)

// 特殊分类
const (
	CategoryOpeningBalance = "opening_balance"
	CategoryInterest       = "interest"
	CategoryReversal       = "reversal"
)

// Transaction 交易记录
// 只追加，完成或失败后不可修改，冲正以新的反向交易表示
type Transaction struct {
	// 内部自增 ID
	ID uint
	// 对外交易号，全局唯一，同时作为幂等键
	TransactionID string
	Type          TransactionType
	Amount        decimal.Decimal
	Currency      string
	// 为空表示纯存入
	FromAccountID string
	// 为空表示纯取出
	ToAccountID   string
	Status        TransactionStatus
	Category      string
	Description   string
	FailureReason string
	// 冲正交易指向原交易号
	ReversalOf string
	CreatedAt  time.Time
}

// NewTransaction 创建 pending 交易
func NewTransaction(transactionID string, typ TransactionType, amount decimal.Decimal, currency, from, to, category, description string) *Transaction {
	return &Transaction{
		TransactionID: transactionID,
		Type:          typ,
		Amount:        amount,
		Currency:      currency,
		FromAccountID: from,
		ToAccountID:   to,
		Status:        TxStatusPending,
		Category:      category,
		Description:   description,
	}
}

const (
	eventComplete = "COMPLETE"
	eventFail     = "FAIL"
)

// newStatusMachine 交易状态机，只允许 pending 出发的两条边
func newStatusMachine(current TransactionStatus) *fsm.Machine {
	m := fsm.NewMachine(fsm.State(current))
	m.AddTransition(fsm.State(TxStatusPending), eventComplete, fsm.State(TxStatusCompleted))
	m.AddTransition(fsm.State(TxStatusPending), eventFail, fsm.State(TxStatusFailed))
	return m
}

func (t *Transaction) trigger(ctx context.Context, event string) error {
	if err := newStatusMachine(t.Status).Trigger(ctx, fsm.Event(event)); err != nil {
		return fmt.Errorf("%w: %s from %s: %v", ErrInvalidTransition, event, t.Status, err)
	}
	return nil
}

// Complete pending -> completed
func (t *Transaction) Complete(ctx context.Context) error {
	if err := t.trigger(ctx, eventComplete); err != nil {
		return err
	}
	t.Status = TxStatusCompleted
	return nil
}

// Fail pending -> failed
func (t *Transaction) Fail(ctx context.Context, reason string) error {
	if err := t.trigger(ctx, eventFail); err != nil {
		return err
	}
	t.Status = TxStatusFailed
	t.FailureReason = reason
	return nil
}

// IsTransfer 同时有转出和转入账户
func (t *Transaction) IsTransfer() bool {
	return t.FromAccountID != "" && t.ToAccountID != ""
}

// Touches 是否涉及该账户
func (t *Transaction) Touches(accountID string) bool {
	return accountID != "" && (t.FromAccountID == accountID || t.ToAccountID == accountID)
}

// PerspectiveType 从某个账户视角看到的交易类型
// 转入方看到入账类原类型或 transfer_in，转出方看到出账类原类型或 transfer_out
func (t *Transaction) PerspectiveType(accountID string) TransactionType {
	if !t.IsTransfer() {
		return t.Type
	}
	switch accountID {
	case t.ToAccountID:
		if t.Type.IsCredit() {
			return t.Type
		}
		return TxTransferIn
	case t.FromAccountID:
		if !t.Type.IsCredit() {
			return t.Type
		}
		return TxTransferOut
	}
	return t.Type
}

// SignedAmountFor 该交易对账户余额的影响，未完成或无关时为零
func (t *Transaction) SignedAmountFor(accountID string) decimal.Decimal {
	if t.Status != TxStatusCompleted || !t.Touches(accountID) {
		return decimal.Zero
	}
	if t.PerspectiveType(accountID).IsCredit() {
		return t.Amount
	}
	return t.Amount.Neg()
}

// Clone 拷贝
func (t *Transaction) Clone() *Transaction {
	c := *t
	return &c
}
