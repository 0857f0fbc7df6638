package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
	"github.com/wyfcoding/bankledger/pkg/contextx"
)

func TestListTransactions_PerspectiveAndTypeFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.open(t, "u1", domain.AccountTypeCurrent, "100")
	b := f.open(t, "u2", domain.AccountTypeCurrent, "0")

	f.clock.Set(f.clock.Now().Add(time.Minute))
	tr, err := f.svc.Transfer(ctx, TransferCommand{FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec("30")})
	require.NoError(t, err)
	f.clock.Set(f.clock.Now().Add(time.Minute))
	_, err = f.svc.Reverse(ctx, ReverseCommand{TransactionID: tr.TransactionID})
	require.NoError(t, err)

	page, err := f.svc.ListTransactions(ctx, ListTransactionsQuery{AccountID: b.ID})
	require.NoError(t, err)
	require.Equal(t, int64(2), page.Total)
	// 创建时间倒序
	assert.Equal(t, domain.TxTransferOut, page.Items[0].DisplayType)
	assert.True(t, page.Items[0].SignedAmount.Equal(dec("-30")))
	assert.Equal(t, domain.TxTransferIn, page.Items[1].DisplayType)
	assert.True(t, page.Items[1].SignedAmount.Equal(dec("30")))

	in, err := f.svc.ListTransactions(ctx, ListTransactionsQuery{AccountID: b.ID, Type: "transfer_in"})
	require.NoError(t, err)
	require.Len(t, in.Items, 1)
	assert.Equal(t, tr.TransactionID, in.Items[0].TransactionID)

	out, err := f.svc.ListTransactions(ctx, ListTransactionsQuery{AccountID: b.ID, Type: "transfer_out"})
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.Equal(t, "REV-"+tr.TransactionID, out.Items[0].TransactionID)

	refunds, err := f.svc.ListTransactions(ctx, ListTransactionsQuery{AccountID: a.ID, Type: "refund"})
	require.NoError(t, err)
	require.Len(t, refunds.Items, 1)
	assert.Equal(t, domain.TxRefund, refunds.Items[0].DisplayType)

	deposits, err := f.svc.ListTransactions(ctx, ListTransactionsQuery{AccountID: a.ID, Type: "deposit"})
	require.NoError(t, err)
	require.Len(t, deposits.Items, 1)
	assert.Equal(t, domain.CategoryOpeningBalance, deposits.Items[0].Category)

	_, err = f.svc.ListTransactions(ctx, ListTransactionsQuery{AccountID: a.ID, Type: "bogus"})
	assert.ErrorIs(t, err, domain.ErrInvalidTxType)
	_, err = f.svc.ListTransactions(ctx, ListTransactionsQuery{AccountID: a.ID, Status: "lost"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.svc.ListTransactions(ctx, ListTransactionsQuery{})
	assert.ErrorIs(t, err, domain.ErrMissingField)
}

func TestListTransactions_OwnerScopeAndPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	current := f.open(t, "u1", domain.AccountTypeCurrent, "100")
	savings := f.open(t, "u1", domain.AccountTypeSavings, "0")

	for i := 0; i < 5; i++ {
		f.clock.Set(f.clock.Now().Add(time.Minute))
		_, err := f.svc.Transfer(ctx, TransferCommand{FromAccountID: current.ID, ToAccountID: savings.ID, Amount: dec("1")})
		require.NoError(t, err)
	}

	first, err := f.svc.ListTransactions(ctx, ListTransactionsQuery{OwnerID: "u1", Limit: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(6), first.Total)
	require.Len(t, first.Items, 4)
	for _, v := range first.Items[:4] {
		// 户主范围内的自转账取转出方视角
		assert.Equal(t, current.ID, v.AccountID)
		assert.Equal(t, domain.TxTransferOut, v.DisplayType)
	}

	second, err := f.svc.ListTransactions(ctx, ListTransactionsQuery{OwnerID: "u1", Limit: 4, Offset: 4})
	require.NoError(t, err)
	require.Len(t, second.Items, 2)
	assert.Equal(t, domain.CategoryOpeningBalance, second.Items[1].Category)

	floor := dec("50")
	large, err := f.svc.ListTransactions(ctx, ListTransactionsQuery{OwnerID: "u1", MinAmount: &floor})
	require.NoError(t, err)
	assert.Len(t, large.Items, 1)

	huge, err := f.svc.ListTransactions(ctx, ListTransactionsQuery{OwnerID: "u1", Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, huge.Limit)

	none, err := f.svc.ListTransactions(ctx, ListTransactionsQuery{OwnerID: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, none.Items)
	assert.Zero(t, none.Total)
}

func TestGetTransaction_RequiresOwnershipOfOneSide(t *testing.T) {
	f := newFixture(t)
	a := f.open(t, "u1", domain.AccountTypeCurrent, "100")
	b := f.open(t, "u2", domain.AccountTypeCurrent, "0")
	tr, err := f.svc.Transfer(context.Background(), TransferCommand{FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec("10")})
	require.NoError(t, err)

	asReceiver := contextx.WithUserID(context.Background(), "u2")
	v, err := f.svc.GetTransaction(asReceiver, tr.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, v.AccountID)
	assert.Equal(t, domain.TxTransferIn, v.DisplayType)

	_, err = f.svc.GetTransaction(contextx.WithUserID(context.Background(), "u3"), tr.TransactionID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.GetTransaction(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
	_, err = f.svc.ListTransactions(asReceiver, ListTransactionsQuery{AccountID: a.ID})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}
