package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
)

func TestRetryTransient(t *testing.T) {
	ctx := context.Background()

	calls := 0
	v, err := RetryTransient(ctx, 3, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, domain.ErrConcurrentModification
		}
		return 42, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)

	calls = 0
	_, err = RetryTransient(ctx, 3, func(context.Context) (int, error) {
		calls++
		return 0, domain.ErrInsufficientFunds
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, 1, calls)

	calls = 0
	_, err = RetryTransient(ctx, 2, func(context.Context) (int, error) {
		calls++
		return 0, domain.ErrTimeout
	})
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, 2, calls)
}

func TestLedgerService_ValidatesCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Transfer(ctx, TransferCommand{ToAccountID: "x", Amount: dec("1")})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.svc.Withdraw(ctx, WithdrawCommand{AccountID: "x", Amount: dec("1"), Type: "deposit"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.svc.Reverse(ctx, ReverseCommand{})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.svc.ListTransactions(ctx, ListTransactionsQuery{AccountID: "x", Limit: -1})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
