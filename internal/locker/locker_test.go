package locker

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseExclusion(t *testing.T, l Locker) {
	t.Helper()
	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "q1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen)
}

func TestMemory_MutualExclusion(t *testing.T) {
	exerciseExclusion(t, NewMemory())
}

func TestMemory_KeysIndependentAndCancel(t *testing.T) {
	m := NewMemory()
	unlock, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)

	other, err := m.Lock(context.Background(), "b")
	require.NoError(t, err)
	other()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx, "a")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // second call is a no-op
	again, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)
	again()
	assert.Empty(t, m.locks)
}

func TestRedis_MutualExclusion(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	require.NoError(t, client.Ping(context.Background()).Err())

	exerciseExclusion(t, NewRedis(client, WithPrefix("teameval:test:"+t.Name()), WithRetry(time.Millisecond)))
}

func TestRedis_HeldLockOutlivesTTL(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	require.NoError(t, client.Ping(ctx).Err())

	var lost []error
	var mu sync.Mutex
	prefix := "teameval:test:" + t.Name()
	l := NewRedis(client, WithPrefix(prefix), WithTTL(90*time.Millisecond), WithRetry(time.Millisecond),
		WithOnLost(func(_ string, err error) {
			mu.Lock()
			lost = append(lost, err)
			mu.Unlock()
		}))

	unlock, err := l.Lock(ctx, "q1")
	require.NoError(t, err)
	time.Sleep(300 * time.Millisecond)

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = l.Lock(short, "q1")
	require.ErrorIs(t, err, context.DeadlineExceeded, "still held after several TTLs")

	unlock()
	again, err := l.Lock(ctx, "q1")
	require.NoError(t, err)
	again()

	// another holder taking the key is reported on release
	unlock, err = l.Lock(ctx, "q2")
	require.NoError(t, err)
	require.NoError(t, client.Set(ctx, prefix+":q2", "someone-else", time.Second).Err())
	unlock()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, lost, 1)
	assert.ErrorIs(t, lost[0], ErrLockLost)
}
