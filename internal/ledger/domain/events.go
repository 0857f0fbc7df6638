package domain

import "time"

// TransactionCompletedEvent 交易完成事件，通知服务订阅
type TransactionCompletedEvent struct {
	TransactionID string    `json:"transaction_id"`
	Type          string    `json:"type"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	FromAccountID string    `json:"from_account_id,omitempty"`
	ToAccountID   string    `json:"to_account_id,omitempty"`
	Category      string    `json:"category,omitempty"`
	ReversalOf    string    `json:"reversal_of,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewTransactionCompletedEvent 从已完成交易生成事件
func NewTransactionCompletedEvent(tx *Transaction) TransactionCompletedEvent {
	return TransactionCompletedEvent{
		TransactionID: tx.TransactionID,
		Type:          string(tx.Type),
		Amount:        tx.Amount.String(),
		Currency:      tx.Currency,
		FromAccountID: tx.FromAccountID,
		ToAccountID:   tx.ToAccountID,
		Category:      tx.Category,
		ReversalOf:    tx.ReversalOf,
		OccurredAt:    tx.CreatedAt,
	}
}
