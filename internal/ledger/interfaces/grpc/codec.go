package grpc

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"github.com/wyfcoding/bankledger/internal/ledger/application"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
	"google.golang.org/protobuf/types/known/structpb"
)

// args 请求字段的宽松读取，数字与字符串均可
type args map[string]any

func argsOf(in *structpb.Struct) args {
	if in == nil {
		return args{}
	}
	return args(in.AsMap())
}

func (a args) str(key string) string {
	return cast.ToString(a[key])
}

func (a args) integer(key string) (int, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return 0, nil
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, invalid(key, err)
	}
	return n, nil
}

func (a args) amount(key string) (decimal.Decimal, error) {
	p, err := a.optionalAmount(key)
	if err != nil || p == nil {
		return decimal.Zero, err
	}
	return *p, nil
}

func (a args) optionalAmount(key string) (*decimal.Decimal, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, nil
	}
	raw, err := cast.ToStringE(v)
	if err != nil {
		return nil, invalid(key, err)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, invalid(key, err)
	}
	return &d, nil
}

func (a args) optionalTime(key string) (*time.Time, error) {
	v, ok := a[key]
	if !ok || v == nil || v == "" {
		return nil, nil
	}
	t, err := cast.ToTimeE(v)
	if err != nil {
		return nil, invalid(key, err)
	}
	t = t.UTC()
	return &t, nil
}

func (a args) timeOrZero(key string) (time.Time, error) {
	t, err := a.optionalTime(key)
	if err != nil || t == nil {
		return time.Time{}, err
	}
	return *t, nil
}

func invalid(key string, err error) error {
	return fmt.Errorf("%w: field %s: %s", domain.ErrValidation, key, err.Error())
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func optionalDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func encodeAccount(a *domain.Account) map[string]any {
	return map[string]any{
		"id":            a.ID,
		"owner_id":      a.OwnerID,
		"number":        a.Number,
		"type":          string(a.Type),
		"name":          a.Name,
		"balance":       a.Balance.String(),
		"currency":      a.Currency,
		"status":        string(a.Status),
		"interest_rate": optionalDecimal(a.InterestRate),
		"daily_limit":   optionalDecimal(a.DailyLimit),
		"monthly_limit": optionalDecimal(a.MonthlyLimit),
		"created_at":    timestamp(a.CreatedAt),
		"updated_at":    timestamp(a.UpdatedAt),
	}
}

func encodeRecipient(a *domain.Account) map[string]any {
	return map[string]any{
		"account_id": a.ID,
		"number":     domain.MaskAccountNumber(a.Number),
		"name":       a.Name,
		"type":       string(a.Type),
		"currency":   a.Currency,
	}
}

func encodeTransaction(tx *domain.Transaction) map[string]any {
	return map[string]any{
		"transaction_id":  tx.TransactionID,
		"type":            string(tx.Type),
		"amount":          tx.Amount.String(),
		"currency":        tx.Currency,
		"from_account_id": tx.FromAccountID,
		"to_account_id":   tx.ToAccountID,
		"status":          string(tx.Status),
		"category":        tx.Category,
		"description":     tx.Description,
		"failure_reason":  tx.FailureReason,
		"reversal_of":     tx.ReversalOf,
		"created_at":      timestamp(tx.CreatedAt),
	}
}

func encodeView(v application.TransactionView) map[string]any {
	out := encodeTransaction(v.Transaction)
	out["account_id"] = v.AccountID
	out["display_type"] = string(v.DisplayType)
	out["signed_amount"] = v.SignedAmount.String()
	return out
}

func encodeDelta(d *application.MonthlyDelta) map[string]any {
	return map[string]any{
		"account_id":             d.AccountID,
		"currency":               d.Currency,
		"as_of":                  timestamp(d.AsOf),
		"current_balance":        d.CurrentBalance.String(),
		"previous_month_balance": d.PreviousMonthBalance.String(),
		"change_amount":          d.ChangeAmount.String(),
		"change_percent":         d.ChangePercent.String(),
	}
}

func encodeBreakdown(b *application.CategoryBreakdown) map[string]any {
	buckets := make([]any, len(b.Buckets))
	for i, c := range b.Buckets {
		buckets[i] = map[string]any{
			"category":   c.Category,
			"type":       c.Type,
			"amount":     c.Amount.String(),
			"percentage": c.Percentage.String(),
			"count":      c.Count,
		}
	}
	return map[string]any{
		"owner_id":      b.OwnerID,
		"from":          timestamp(b.From),
		"to":            timestamp(b.To),
		"total_income":  b.TotalIncome.String(),
		"total_expense": b.TotalExpense.String(),
		"buckets":       buckets,
	}
}
