package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
	"github.com/wyfcoding/bankledger/pkg/cache"
)

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, sortedKeys([]string{"c", "a", "", "b", "a"}))
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(context.Background(), "acc-1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, m.locks)
}

func TestKeyedMutex_OppositeOrderDoesNotDeadlock(t *testing.T) {
	m := NewKeyedMutex()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(context.Background(), "a", "b")
			if assert.NoError(t, err) {
				unlock()
			}
		}()
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(context.Background(), "b", "a")
			if assert.NoError(t, err) {
				unlock()
			}
		}()
	}
	wg.Wait()
}

func TestKeyedMutex_Timeout(t *testing.T) {
	m := NewKeyedMutex()
	unlock, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx, "b", "a")
	assert.ErrorIs(t, err, domain.ErrTimeout)

	// b 已被回滚释放
	unlockB, err := m.Lock(context.Background(), "b")
	require.NoError(t, err)
	unlockB()
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *cache.RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, cache.NewFromClient(client)
}

func TestRedisLocker_AcquireRelease(t *testing.T) {
	mr, c := setupRedis(t)
	l := NewRedisLocker(c, time.Second)

	unlock, err := l.Lock(context.Background(), "b", "a")
	require.NoError(t, err)
	assert.True(t, mr.Exists("ledger:lock:a"))
	assert.True(t, mr.Exists("ledger:lock:b"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrTimeout)

	unlock()
	assert.False(t, mr.Exists("ledger:lock:a"))
	assert.False(t, mr.Exists("ledger:lock:b"))

	unlock2, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlock2()
}

func TestRedisLocker_DoesNotReleaseForeignLock(t *testing.T) {
	mr, c := setupRedis(t)
	l := NewRedisLocker(c, time.Second)

	unlock, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)

	// 锁过期后被其他实例获取
	require.NoError(t, mr.Set("ledger:lock:a", "someone-else"))
	unlock()

	v, err := mr.Get("ledger:lock:a")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
}
