// Package lock 提供账户级互斥：单实例使用进程内锁，多实例使用 Redis 锁
package lock

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/wyfcoding/bankledger/internal/ledger/domain"
)

type entry struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex 进程内按键互斥
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// NewKeyedMutex 创建进程内锁
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*entry)}
}

// Lock 按排序后的顺序依次获取，任一失败则释放已持有的锁
func (m *KeyedMutex) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = sortedKeys(keys)
	held := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := m.acquire(ctx, key); err != nil {
			for _, k := range held {
				m.release(k, true)
			}
			return nil, err
		}
		held = append(held, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				m.release(held[i], true)
			}
		})
	}, nil
}

func (m *KeyedMutex) acquire(ctx context.Context, key string) error {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		m.release(key, false)
		return fmt.Errorf("%w: waiting for lock %s: %v", domain.ErrTimeout, key, ctx.Err())
	}
}

func (m *KeyedMutex) release(key string, held bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.locks[key]
	if e == nil {
		return
	}
	if held {
		<-e.ch
	}
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}

// sortedKeys 去重并排序，保证所有调用方以相同顺序加锁
func sortedKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

var _ domain.Locker = (*KeyedMutex)(nil)
