package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreditClassification(t *testing.T) {
	for _, typ := range []TransactionType{TxDeposit, TxRefund, TxTransferIn, TxInterest} {
		assert.True(t, typ.IsCredit(), typ)
	}
	for _, typ := range []TransactionType{TxWithdrawal, TxTransferOut, TxCardPayment, TxFee, "salary"} {
		assert.False(t, typ.IsCredit(), typ)
	}
}

func TestPerspectiveAndSignedAmount(t *testing.T) {
	transfer := NewTransaction("T1", TxTransferOut, dec("200"), "USD", "A", "B", "rent", "")
	require.NoError(t, transfer.Complete(context.Background()))

	assert.Equal(t, TxTransferOut, transfer.PerspectiveType("A"))
	assert.Equal(t, TxTransferIn, transfer.PerspectiveType("B"))
	assert.True(t, transfer.SignedAmountFor("A").Equal(dec("-200")))
	assert.True(t, transfer.SignedAmountFor("B").Equal(dec("200")))
	assert.True(t, transfer.SignedAmountFor("C").IsZero())

	// 两侧之和为零
	assert.True(t, transfer.SignedAmountFor("A").Add(transfer.SignedAmountFor("B")).IsZero())

	refund := NewTransaction("T2", TxRefund, dec("50"), "USD", "B", "A", CategoryReversal, "")
	require.NoError(t, refund.Complete(context.Background()))
	assert.Equal(t, TxTransferOut, refund.PerspectiveType("B"))
	assert.Equal(t, TxRefund, refund.PerspectiveType("A"))
	assert.True(t, refund.SignedAmountFor("A").Equal(dec("50")))

	deposit := NewTransaction("T3", TxDeposit, dec("10"), "USD", "", "A", "", "")
	assert.True(t, deposit.SignedAmountFor("A").IsZero(), "pending rows do not move balance")
	require.NoError(t, deposit.Complete(context.Background()))
	assert.True(t, deposit.SignedAmountFor("A").Equal(dec("10")))
}

func TestTransactionLifecycle(t *testing.T) {
	tx := NewTransaction("T1", TxWithdrawal, dec("1"), "USD", "A", "", "", "")
	require.NoError(t, tx.Fail(context.Background(), "insufficient funds"))
	assert.ErrorIs(t, tx.Complete(context.Background()), ErrInvalidTransition)
	assert.ErrorIs(t, tx.Fail(context.Background(), "again"), ErrValidation)
	assert.Equal(t, TxStatusFailed, tx.Status)
	assert.Equal(t, "insufficient funds", tx.FailureReason)

	done := NewTransaction("T2", TxDeposit, dec("1"), "USD", "", "A", "", "")
	require.NoError(t, done.Complete(context.Background()))
	assert.ErrorIs(t, done.Fail(context.Background(), "late"), ErrInvalidTransition)
	assert.ErrorIs(t, done.Complete(context.Background()), ErrInvalidTransition)
	assert.Equal(t, TxStatusCompleted, done.Status)
}

func TestAccountClose(t *testing.T) {
	acc, err := NewAccount("acc-1", "u1", "123456789012", AccountTypeSavings, "Main", "USD")
	require.NoError(t, err)

	acc.Balance = dec("1")
	assert.ErrorIs(t, acc.Close(), ErrBalanceNotZero)
	assert.ErrorIs(t, acc.Close(), ErrValidation)

	acc.Balance = decimal.Zero
	require.NoError(t, acc.Close())
	assert.ErrorIs(t, acc.EnsureActive(), ErrAccountClosed)
	assert.ErrorIs(t, acc.Close(), ErrAccountClosed)
}

func TestNewAccountValidation(t *testing.T) {
	_, err := NewAccount("a", "u", "n", "checking", "x", "USD")
	assert.ErrorIs(t, err, ErrInvalidAccountType)

	_, err = NewAccount("a", "u", "n", AccountTypeCurrent, "   ", "USD")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestNormalizeAmount(t *testing.T) {
	_, err := NormalizeAmount(dec("0"), "USD")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = NormalizeAmount(dec("-5"), "USD")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = NormalizeAmount(dec("1.005"), "USD")
	assert.ErrorIs(t, err, ErrAmountPrecision)

	_, err = NormalizeAmount(dec("1.5"), "JPY")
	assert.ErrorIs(t, err, ErrAmountPrecision)

	v, err := NormalizeAmount(dec("12.50"), "USD")
	require.NoError(t, err)
	assert.Equal(t, "12.5", v.String())
}

func TestNormalizeCurrency(t *testing.T) {
	code, err := NormalizeCurrency("eur")
	require.NoError(t, err)
	assert.Equal(t, "EUR", code)

	_, err = NormalizeCurrency("XYZ1")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNormalizePhone(t *testing.T) {
	p, err := NormalizePhone("+1 (555) 010-2030")
	require.NoError(t, err)
	assert.Equal(t, "15550102030", p)

	_, err = NormalizePhone("12ab34")
	assert.ErrorIs(t, err, ErrInvalidPhone)

	_, err = NormalizePhone("123")
	assert.ErrorIs(t, err, ErrInvalidPhone)
}

func TestMaskAccountNumber(t *testing.T) {
	assert.Equal(t, "********9012", MaskAccountNumber("123456789012"))
	assert.Equal(t, "123", MaskAccountNumber("123"))
}

func TestPolicies(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, OnePerTypePolicy{}.Allow(ctx, PolicyInput{ActiveOfType: 0}))
	assert.ErrorIs(t, OnePerTypePolicy{}.Allow(ctx, PolicyInput{ActiveOfType: 1}), ErrDuplicateAccountType)
	assert.NoError(t, UnlimitedPolicy{}.Allow(ctx, PolicyInput{ActiveOfType: 10}))

	tiered := TieredPolicy{Limits: map[string]int{TierPremium: 3}, Default: 1}
	assert.NoError(t, tiered.Allow(ctx, PolicyInput{Tier: TierPremium, ActiveOfType: 2}))
	assert.Error(t, tiered.Allow(ctx, PolicyInput{Tier: TierStandard, ActiveOfType: 1}))
}

func TestRetryableKinds(t *testing.T) {
	assert.True(t, IsRetryable(ErrTimeout))
	assert.True(t, IsRetryable(errors.Join(errors.New("x"), ErrConcurrentModification)))
	assert.False(t, IsRetryable(ErrInsufficientFunds))
	assert.False(t, IsRetryable(ErrInvalidAmount))

	assert.True(t, IsBusinessRejection(ErrAccountClosed))
	assert.False(t, IsBusinessRejection(ErrAccountNotFound))
}

func TestNewOwnerTier(t *testing.T) {
	o, err := NewOwner("u1", "", " Ann ", "")
	require.NoError(t, err)
	assert.Equal(t, TierStandard, o.Tier)
	assert.Equal(t, "Ann", o.FullName)

	_, err = NewOwner("u1", "", "", "platinum")
	assert.ErrorIs(t, err, ErrInvalidTier)
	assert.True(t, ValidTier(TierPremium))
}
