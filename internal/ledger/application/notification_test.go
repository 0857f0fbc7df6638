package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
)

type memoryPublisher struct {
	mu     sync.Mutex
	events []domain.TransactionCompletedEvent
	fail   bool
}

func (p *memoryPublisher) PublishTransactionCompleted(_ context.Context, ev domain.TransactionCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *memoryPublisher) published() []domain.TransactionCompletedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.TransactionCompletedEvent(nil), p.events...)
}

func completedTx(t *testing.T, id string) *domain.Transaction {
	t.Helper()
	tx := domain.NewTransaction(id, domain.TxDeposit, dec("10"), "USD", "", "ACC1", "salary", "")
	require.NoError(t, tx.Complete(context.Background()))
	return tx
}

func TestNotificationDispatcher_DropsWhenFull(t *testing.T) {
	pub := &memoryPublisher{}
	d := NewNotificationDispatcher(pub, nil, 2)
	ctx := context.Background()

	d.Notify(ctx, completedTx(t, "T1"))
	d.Notify(ctx, completedTx(t, "T2"))
	d.Notify(ctx, completedTx(t, "T3"))
	assert.Equal(t, 2, d.Pending())

	runCtx, cancel := context.WithCancel(ctx)
	cancel()
	require.NoError(t, d.Run(runCtx))

	events := pub.published()
	require.Len(t, events, 2)
	assert.Equal(t, "T1", events[0].TransactionID)
	assert.Equal(t, "T2", events[1].TransactionID)
	assert.Zero(t, d.Pending())
}

func TestNotificationDispatcher_PublishesInBackground(t *testing.T) {
	pub := &memoryPublisher{}
	d := NewNotificationDispatcher(pub, nil, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	d.Notify(ctx, completedTx(t, "T1"))
	assert.Eventually(t, func() bool { return len(pub.published()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "10", pub.published()[0].Amount)

	cancel()
	assert.NoError(t, <-done)
}

func TestNotificationDispatcher_PublishFailureDoesNotStop(t *testing.T) {
	pub := &memoryPublisher{fail: true}
	d := NewNotificationDispatcher(pub, nil, 4)
	d.Notify(context.Background(), completedTx(t, "T1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, d.Run(ctx))
	assert.Empty(t, pub.published())
}
