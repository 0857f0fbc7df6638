package application

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
)

// RetryTransient 只在超时与并发冲突时整体重试，业务拒绝与校验错误立即返回
func RetryTransient[T any](ctx context.Context, maxTries uint, op func(ctx context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op(ctx)
		if err != nil && !domain.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(maxTries))
}
