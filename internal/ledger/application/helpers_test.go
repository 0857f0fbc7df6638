package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
	"github.com/wyfcoding/bankledger/internal/ledger/infrastructure/lock"
	"github.com/wyfcoding/bankledger/internal/ledger/infrastructure/persistence/memory"
	"github.com/wyfcoding/bankledger/pkg/idgen"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingNotifier struct {
	mu  sync.Mutex
	txs []*domain.Transaction
}

func (n *recordingNotifier) Notify(_ context.Context, tx *domain.Transaction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.txs = append(n.txs, tx)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.txs)
}

type fixture struct {
	store    *memory.Store
	deps     Deps
	opts     Options
	svc      *LedgerService
	clock    *testClock
	notifier *recordingNotifier
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	clk := &testClock{now: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)}
	store := memory.NewStore(memory.WithClock(clk.Now))
	ids, err := idgen.New(1)
	require.NoError(t, err)

	n := &recordingNotifier{}
	deps := Deps{
		Accounts:     store,
		Transactions: store,
		Owners:       store.Owners(),
		UoW:          store,
		Locker:       lock.NewKeyedMutex(),
		IDs:          ids,
		Notifier:     n,
		Clock:        clk.Now,
	}
	opts := DefaultOptions()
	for _, fn := range mutate {
		fn(&opts)
	}
	return &fixture{
		store:    store,
		deps:     deps,
		opts:     opts,
		svc:      NewLedgerService(deps, opts, nil),
		clock:    clk,
		notifier: n,
	}
}

func (f *fixture) open(t *testing.T, ownerID string, typ domain.AccountType, initial string) *domain.Account {
	t.Helper()
	acc, err := f.svc.CreateAccount(context.Background(), CreateAccountCommand{
		OwnerID:        ownerID,
		Type:           string(typ),
		Name:           string(typ) + " account",
		InitialBalance: dec(initial),
	})
	require.NoError(t, err)
	return acc
}

func (f *fixture) balance(t *testing.T, accountID string) decimal.Decimal {
	t.Helper()
	acc, err := f.store.Get(context.Background(), accountID)
	require.NoError(t, err)
	return acc.Balance
}
