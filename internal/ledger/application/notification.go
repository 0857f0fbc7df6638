package application

import (
	"context"
	"time"

	"github.com/wyfcoding/bankledger/internal/ledger/domain"
	"github.com/wyfcoding/bankledger/pkg/logger"
	"github.com/wyfcoding/bankledger/pkg/metrics"
)

// NotificationDispatcher 有界队列异步发布交易事件，队列满时丢弃
type NotificationDispatcher struct {
	publisher domain.EventPublisher
	metrics   *metrics.Metrics
	queue     chan domain.TransactionCompletedEvent
	timeout   time.Duration
}

// NewNotificationDispatcher 创建通知分发器
func NewNotificationDispatcher(publisher domain.EventPublisher, m *metrics.Metrics, buffer int) *NotificationDispatcher {
	if buffer <= 0 {
		buffer = 1024
	}
	return &NotificationDispatcher{
		publisher: publisher,
		metrics:   m,
		queue:     make(chan domain.TransactionCompletedEvent, buffer),
		timeout:   5 * time.Second,
	}
}

// Notify 实现 Notifier，从不阻塞
func (d *NotificationDispatcher) Notify(ctx context.Context, tx *domain.Transaction) {
	select {
	case d.queue <- domain.NewTransactionCompletedEvent(tx):
	default:
		d.metrics.NotificationDropped()
		logger.Warn(ctx, "notification queue full, event dropped", "transaction_id", tx.TransactionID)
	}
}

// Run 消费队列直到 ctx 结束，结束前尽量发完剩余事件
func (d *NotificationDispatcher) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-d.queue:
			d.publish(ev)
		case <-ctx.Done():
			d.drain()
			return nil
		}
	}
}

func (d *NotificationDispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			d.publish(ev)
		default:
			return
		}
	}
}

func (d *NotificationDispatcher) publish(ev domain.TransactionCompletedEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.publisher.PublishTransactionCompleted(ctx, ev); err != nil {
		d.metrics.NotificationFailed()
		logger.Error(ctx, "failed to publish notification", "transaction_id", ev.TransactionID, "error", err)
	}
}

// Pending 队列中待发送的事件数
func (d *NotificationDispatcher) Pending() int {
	return len(d.queue)
}
