package application

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
)

type countingCache struct {
	entries map[string][]byte
	loads   int
}

func (c *countingCache) Fetch(ctx context.Context, key string, dest any, load func(ctx context.Context) (any, error)) error {
	if c.entries == nil {
		c.entries = make(map[string][]byte)
	}
	if raw, ok := c.entries[key]; ok {
		return json.Unmarshal(raw, dest)
	}
	c.loads++
	v, err := load(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return json.Unmarshal(raw, dest)
}

func TestMonthlyDelta(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	march15 := f.clock.Now()

	f.clock.Set(time.Date(2024, 2, 10, 9, 0, 0, 0, time.UTC))
	acc := f.open(t, "u1", domain.AccountTypeSavings, "1000")

	f.clock.Set(time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
	_, err := f.svc.Deposit(ctx, DepositCommand{AccountID: acc.ID, Amount: dec("150"), Category: "salary"})
	require.NoError(t, err)
	f.clock.Set(march15)

	delta, err := f.svc.MonthlyDelta(ctx, acc.ID, time.Time{})
	require.NoError(t, err)
	assert.True(t, delta.CurrentBalance.Equal(dec("1150")))
	assert.True(t, delta.PreviousMonthBalance.Equal(dec("1000")))
	assert.True(t, delta.ChangeAmount.Equal(dec("150")))
	assert.True(t, delta.ChangePercent.Equal(dec("15")), "got %s", delta.ChangePercent)

	// asOf 早于本月入账时，入账不计入当前余额
	earlier, err := f.svc.MonthlyDelta(ctx, acc.ID, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, earlier.CurrentBalance.Equal(dec("1000")))
	assert.True(t, earlier.ChangePercent.IsZero())
}

// depositDuringGet 读出账户后立即尝试并发入账，模拟两次读取之间插入的写入
type depositDuringGet struct {
	domain.AccountStore
	once   sync.Once
	inject func()
}

func (s *depositDuringGet) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	acc, err := s.AccountStore.Get(ctx, accountID)
	s.once.Do(s.inject)
	return acc, err
}

func TestMonthlyDelta_ConsistentUnderConcurrentDeposit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	march15 := f.clock.Now()

	f.clock.Set(time.Date(2024, 2, 10, 9, 0, 0, 0, time.UTC))
	acc := f.open(t, "u1", domain.AccountTypeSavings, "1000")
	f.clock.Set(time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
	_, err := f.svc.Deposit(ctx, DepositCommand{AccountID: acc.ID, Amount: dec("200"), Category: "salary"})
	require.NoError(t, err)
	f.clock.Set(march15)

	depositErr := make(chan error, 1)
	wrapped := &depositDuringGet{AccountStore: f.store}
	wrapped.inject = func() {
		go func() {
			_, err := f.svc.Deposit(ctx, DepositCommand{AccountID: acc.ID, Amount: dec("100"), Category: "bonus"})
			depositErr <- err
		}()
		// 未持锁时入账会在这段时间内提交
		time.Sleep(50 * time.Millisecond)
	}
	deps := f.deps
	deps.Accounts = wrapped
	analytics := NewAnalyticsService(deps, f.opts, nil)

	delta, err := analytics.MonthlyDelta(ctx, acc.ID, time.Time{})
	require.NoError(t, err)
	assert.True(t, delta.PreviousMonthBalance.Equal(dec("1000")), "previous %s", delta.PreviousMonthBalance)
	assert.True(t, delta.CurrentBalance.Equal(dec("1200")), "current %s", delta.CurrentBalance)
	assert.True(t, delta.ChangeAmount.Equal(dec("200")))

	require.NoError(t, <-depositErr)
	after, err := f.svc.MonthlyDelta(ctx, acc.ID, time.Time{})
	require.NoError(t, err)
	assert.True(t, after.CurrentBalance.Equal(dec("1300")))
	assert.True(t, after.PreviousMonthBalance.Equal(dec("1000")))
}

func TestMonthlyDelta_DepositAndWithdrawal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	march15 := f.clock.Now()

	f.clock.Set(time.Date(2024, 2, 20, 9, 0, 0, 0, time.UTC))
	acc := f.open(t, "u1", domain.AccountTypeCurrent, "1000")

	f.clock.Set(time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC))
	_, err := f.svc.Deposit(ctx, DepositCommand{AccountID: acc.ID, Amount: dec("200")})
	require.NoError(t, err)
	f.clock.Set(time.Date(2024, 3, 9, 9, 0, 0, 0, time.UTC))
	_, err = f.svc.Withdraw(ctx, WithdrawCommand{AccountID: acc.ID, Amount: dec("50")})
	require.NoError(t, err)
	f.clock.Set(march15)

	delta, err := f.svc.MonthlyDelta(ctx, acc.ID, time.Time{})
	require.NoError(t, err)
	assert.True(t, delta.CurrentBalance.Equal(dec("1150")), "current %s", delta.CurrentBalance)
	assert.True(t, delta.PreviousMonthBalance.Equal(dec("1000")), "previous %s", delta.PreviousMonthBalance)
	assert.True(t, delta.ChangeAmount.Equal(dec("150")))
	assert.True(t, delta.ChangePercent.Equal(dec("15")), "percent %s", delta.ChangePercent)
}

func TestMonthlyDelta_AccountOpenedThisMonth(t *testing.T) {
	f := newFixture(t)
	acc := f.open(t, "u1", domain.AccountTypeCurrent, "100")

	delta, err := f.svc.MonthlyDelta(context.Background(), acc.ID, time.Time{})
	require.NoError(t, err)
	assert.True(t, delta.PreviousMonthBalance.IsZero())
	assert.True(t, delta.ChangePercent.Equal(dec("100")))

	empty := f.open(t, "u2", domain.AccountTypeCurrent, "0")
	delta, err = f.svc.MonthlyDelta(context.Background(), empty.ID, time.Time{})
	require.NoError(t, err)
	assert.True(t, delta.ChangePercent.IsZero())
}

func TestChangePercent(t *testing.T) {
	assert.True(t, changePercent(dec("-50"), dec("200")).Equal(dec("-25")))
	assert.True(t, changePercent(dec("1"), dec("3")).Equal(dec("33.33")))
	assert.True(t, changePercent(dec("-10"), dec("0")).Equal(dec("-100")))
	assert.True(t, changePercent(dec("10"), dec("-20")).Equal(dec("50")))
}

func TestCategoryBreakdown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.clock.Set(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	other := f.open(t, "u2", domain.AccountTypeCurrent, "1000")
	f.clock.Set(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))

	current := f.open(t, "u1", domain.AccountTypeCurrent, "0")
	savings := f.open(t, "u1", domain.AccountTypeSavings, "0")

	_, err := f.svc.Deposit(ctx, DepositCommand{AccountID: current.ID, Amount: dec("3000"), Category: "salary"})
	require.NoError(t, err)
	for _, w := range []struct{ amount, category string }{
		{"100", "food"}, {"50", "food"}, {"200", "rent"}, {"30", "fun"},
		{"20", "travel"}, {"10", "gifts"}, {"5", ""},
	} {
		_, err := f.svc.Withdraw(ctx, WithdrawCommand{AccountID: current.ID, Amount: dec(w.amount), Type: "card_payment", Category: w.category})
		require.NoError(t, err)
	}
	_, err = f.svc.Transfer(ctx, TransferCommand{FromAccountID: current.ID, ToAccountID: savings.ID, Amount: dec("500"), Category: "savings"})
	require.NoError(t, err)
	_, err = f.svc.Transfer(ctx, TransferCommand{FromAccountID: other.ID, ToAccountID: current.ID, Amount: dec("40"), Category: "gift"})
	require.NoError(t, err)
	_, err = f.svc.Transfer(ctx, TransferCommand{FromAccountID: current.ID, ToAccountID: other.ID, Amount: dec("60"), Category: "loan"})
	require.NoError(t, err)

	march := Period{
		From: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	out, err := f.svc.CategoryBreakdown(ctx, "u1", march)
	require.NoError(t, err)

	assert.True(t, out.TotalIncome.Equal(dec("3040")), "income %s", out.TotalIncome)
	assert.True(t, out.TotalExpense.Equal(dec("475")), "expense %s", out.TotalExpense)

	var income, expense []CategoryBucket
	for _, b := range out.Buckets {
		assert.NotEqual(t, "savings", b.Category)
		if b.Type == FlowIncome {
			income = append(income, b)
		} else {
			expense = append(expense, b)
		}
	}
	require.Len(t, income, 2)
	assert.Equal(t, "salary", income[0].Category)
	assert.Equal(t, "gift", income[1].Category)

	require.Len(t, expense, 6)
	names := make([]string, len(expense))
	for i, b := range expense {
		names[i] = b.Category
	}
	assert.Equal(t, []string{"rent", "food", "loan", "fun", "travel", "Other"}, names)
	assert.True(t, expense[0].Percentage.Equal(dec("42.11")), "rent %s", expense[0].Percentage)
	assert.Equal(t, 2, expense[1].Count)
	assert.True(t, expense[5].Amount.Equal(dec("15")))
	assert.Equal(t, 2, expense[5].Count)

	// 默认区间为本月
	def, err := f.svc.CategoryBreakdown(ctx, "u1", Period{})
	require.NoError(t, err)
	assert.True(t, def.TotalExpense.Equal(out.TotalExpense))

	_, err = f.svc.CategoryBreakdown(ctx, "u1", Period{From: march.To, To: march.From})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCategoryBreakdown_CachesClosedPeriodsOnly(t *testing.T) {
	f := newFixture(t)
	cache := &countingCache{}
	svc := NewLedgerService(f.deps, f.opts, cache)
	ctx := context.Background()

	acc := f.open(t, "u1", domain.AccountTypeCurrent, "100")
	_, err := f.svc.Withdraw(ctx, WithdrawCommand{AccountID: acc.ID, Amount: dec("10"), Category: "food"})
	require.NoError(t, err)

	february := Period{
		From: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	for i := 0; i < 3; i++ {
		out, err := svc.CategoryBreakdown(ctx, "u1", february)
		require.NoError(t, err)
		assert.True(t, out.TotalExpense.IsZero())
	}
	assert.Equal(t, 1, cache.loads)

	out, err := svc.CategoryBreakdown(ctx, "u1", Period{})
	require.NoError(t, err)
	assert.True(t, out.TotalExpense.Equal(dec("10")))
	assert.Equal(t, 1, cache.loads)
}

func TestTopN_FoldsUserOtherCategory(t *testing.T) {
	list := []CategoryBucket{
		{Category: "rent", Type: FlowExpense, Amount: dec("500"), Count: 1},
		{Category: "Other", Type: FlowExpense, Amount: dec("300"), Count: 3},
		{Category: "food", Type: FlowExpense, Amount: dec("100"), Count: 2},
		{Category: "fun", Type: FlowExpense, Amount: dec("60"), Count: 1},
		{Category: "gifts", Type: FlowExpense, Amount: dec("40"), Count: 1},
	}
	out := topN(list, 2, dec("1000"))

	names := make([]string, len(out))
	for i, b := range out {
		names[i] = b.Category
	}
	assert.Equal(t, []string{"rent", "food", "Other"}, names)
	assert.True(t, out[2].Amount.Equal(dec("400")), "other %s", out[2].Amount)
	assert.Equal(t, 5, out[2].Count)
	assert.True(t, out[2].Percentage.Equal(dec("40")))

	// 无需合并时用户的 Other 仍只出现一次
	small := topN([]CategoryBucket{
		{Category: "Other", Type: FlowIncome, Amount: dec("10"), Count: 1},
		{Category: "salary", Type: FlowIncome, Amount: dec("90"), Count: 1},
	}, 5, dec("100"))
	require.Len(t, small, 2)
	assert.Equal(t, "salary", small[0].Category)
	assert.Equal(t, "Other", small[1].Category)
}

func TestCategoryBreakdown_UserOtherCategoryNotDuplicated(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.TopCategories = 1 })
	ctx := context.Background()
	acc := f.open(t, "u1", domain.AccountTypeCurrent, "1000")
	for _, w := range []struct{ amount, category string }{
		{"200", "rent"}, {"50", "Other"}, {"30", "food"},
	} {
		_, err := f.svc.Withdraw(ctx, WithdrawCommand{AccountID: acc.ID, Amount: dec(w.amount), Category: w.category})
		require.NoError(t, err)
	}

	out, err := f.svc.CategoryBreakdown(ctx, "u1", Period{})
	require.NoError(t, err)
	others := 0
	for _, b := range out.Buckets {
		if b.Type == FlowExpense && b.Category == "Other" {
			others++
			assert.True(t, b.Amount.Equal(dec("80")), "other %s", b.Amount)
			assert.Equal(t, 2, b.Count)
		}
	}
	assert.Equal(t, 1, others)
}
