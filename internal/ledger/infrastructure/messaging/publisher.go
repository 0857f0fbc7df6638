// Package messaging 交易事件的对外发布
package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
	"github.com/wyfcoding/bankledger/pkg/logger"
)

// Sender 消息发送端，*mq.KafkaProducer 满足该接口
type Sender interface {
	SendMessage(ctx context.Context, topic string, key string, value any) error
}

// KafkaPublisher 通过 Kafka 发布交易完成事件，连续失败后熔断
type KafkaPublisher struct {
	sender Sender
	topic  string
	cb     *gobreaker.CircuitBreaker
}

// NewKafkaPublisher 创建发布器
func NewKafkaPublisher(sender Sender, topic string) *KafkaPublisher {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ledger-notification",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return &KafkaPublisher{sender: sender, topic: topic, cb: cb}
}

// PublishTransactionCompleted 以交易号为 key，同一交易的事件落在同一分区
func (p *KafkaPublisher) PublishTransactionCompleted(ctx context.Context, event domain.TransactionCompletedEvent) error {
	_, err := p.cb.Execute(func() (any, error) {
		return nil, p.sender.SendMessage(ctx, p.topic, event.TransactionID, event)
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.TransactionID, err)
	}
	return nil
}

// State 熔断器当前状态
func (p *KafkaPublisher) State() gobreaker.State {
	return p.cb.State()
}

// LogPublisher 未配置 Kafka 时只写日志
type LogPublisher struct{}

// PublishTransactionCompleted 实现 domain.EventPublisher
func (LogPublisher) PublishTransactionCompleted(ctx context.Context, event domain.TransactionCompletedEvent) error {
	logger.Info(ctx, "transaction completed",
		"transaction_id", event.TransactionID,
		"type", event.Type,
		"amount", event.Amount,
		"currency", event.Currency,
	)
	return nil
}

var (
	_ domain.EventPublisher = (*KafkaPublisher)(nil)
	_ domain.EventPublisher = LogPublisher{}
)
