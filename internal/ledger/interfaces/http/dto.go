package http

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/bankledger/internal/ledger/application"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
)

// IdempotencyKeyHeader 请求体未携带交易号时使用的幂等键头
const IdempotencyKeyHeader = "Idempotency-Key"

type createAccountRequest struct {
	OwnerID        string           `json:"owner_id" binding:"required"`
	Type           string           `json:"type" binding:"required"`
	Name           string           `json:"name" binding:"required"`
	Currency       string           `json:"currency"`
	InitialBalance decimal.Decimal  `json:"initial_balance"`
	InterestRate   *decimal.Decimal `json:"interest_rate"`
	DailyLimit     *decimal.Decimal `json:"daily_limit"`
	MonthlyLimit   *decimal.Decimal `json:"monthly_limit"`
}

type upsertOwnerRequest struct {
	Phone    string `json:"phone"`
	FullName string `json:"full_name"`
	Tier     string `json:"tier"`
}

type renameRequest struct {
	Name string `json:"name" binding:"required"`
}

type transferRequest struct {
	TransactionID string          `json:"transaction_id"`
	FromAccountID string          `json:"from_account_id" binding:"required"`
	ToAccountID   string          `json:"to_account_id" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Category      string          `json:"category"`
	Description   string          `json:"description"`
}

// movementRequest 存入与取出共用
type movementRequest struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Type          string          `json:"type"`
	Category      string          `json:"category"`
	Description   string          `json:"description"`
}

type reverseRequest struct {
	Reason string `json:"reason"`
}

type listTransactionsRequest struct {
	AccountID string     `form:"account_id"`
	OwnerID   string     `form:"owner_id"`
	Status    string     `form:"status"`
	Type      string     `form:"type"`
	Category  string     `form:"category"`
	From      *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To        *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	MinAmount string     `form:"min_amount"`
	MaxAmount string     `form:"max_amount"`
	Limit     int        `form:"limit"`
	Offset    int        `form:"offset"`
}

type periodRequest struct {
	From time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To   time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

type asOfRequest struct {
	AsOf time.Time `form:"as_of" time_format:"2006-01-02T15:04:05Z07:00"`
}

type accountResponse struct {
	ID           string           `json:"id"`
	OwnerID      string           `json:"owner_id"`
	Number       string           `json:"number"`
	Type         string           `json:"type"`
	Name         string           `json:"name"`
	Balance      decimal.Decimal  `json:"balance"`
	Currency     string           `json:"currency"`
	Status       string           `json:"status"`
	InterestRate *decimal.Decimal `json:"interest_rate,omitempty"`
	DailyLimit   *decimal.Decimal `json:"daily_limit,omitempty"`
	MonthlyLimit *decimal.Decimal `json:"monthly_limit,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func toAccountResponse(a *domain.Account) accountResponse {
	return accountResponse{
		ID:           a.ID,
		OwnerID:      a.OwnerID,
		Number:       a.Number,
		Type:         string(a.Type),
		Name:         a.Name,
		Balance:      a.Balance,
		Currency:     a.Currency,
		Status:       string(a.Status),
		InterestRate: a.InterestRate,
		DailyLimit:   a.DailyLimit,
		MonthlyLimit: a.MonthlyLimit,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

// recipientResponse 收款人只暴露脱敏账号
type recipientResponse struct {
	AccountID string `json:"account_id"`
	Number    string `json:"number"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Currency  string `json:"currency"`
}

func toRecipientResponse(a *domain.Account) recipientResponse {
	return recipientResponse{
		AccountID: a.ID,
		Number:    domain.MaskAccountNumber(a.Number),
		Name:      a.Name,
		Type:      string(a.Type),
		Currency:  a.Currency,
	}
}

type ownerResponse struct {
	ID       string `json:"id"`
	Phone    string `json:"phone,omitempty"`
	FullName string `json:"full_name,omitempty"`
	Tier     string `json:"tier"`
}

type transactionResponse struct {
	TransactionID string          `json:"transaction_id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	FromAccountID string          `json:"from_account_id,omitempty"`
	ToAccountID   string          `json:"to_account_id,omitempty"`
	Status        string          `json:"status"`
	Category      string          `json:"category,omitempty"`
	Description   string          `json:"description,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	ReversalOf    string          `json:"reversal_of,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	// 以下字段只在按账户视角返回时填充
	AccountID    string           `json:"account_id,omitempty"`
	DisplayType  string           `json:"display_type,omitempty"`
	SignedAmount *decimal.Decimal `json:"signed_amount,omitempty"`
}

func toTransactionResponse(tx *domain.Transaction) transactionResponse {
	return transactionResponse{
		TransactionID: tx.TransactionID,
		Type:          string(tx.Type),
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		FromAccountID: tx.FromAccountID,
		ToAccountID:   tx.ToAccountID,
		Status:        string(tx.Status),
		Category:      tx.Category,
		Description:   tx.Description,
		FailureReason: tx.FailureReason,
		ReversalOf:    tx.ReversalOf,
		CreatedAt:     tx.CreatedAt,
	}
}

func toViewResponse(v application.TransactionView) transactionResponse {
	out := toTransactionResponse(v.Transaction)
	out.AccountID = v.AccountID
	out.DisplayType = string(v.DisplayType)
	signed := v.SignedAmount
	out.SignedAmount = &signed
	return out
}

type pageResponse struct {
	Items  []transactionResponse `json:"items"`
	Total  int64                 `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}
