package locker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockLost = errors.New("lock lost to another holder")

// compare-and-delete so a holder never releases someone else's lock
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a Locker shared by every gateway replica pointing at the same
// Redis. A held lock is extended every ttl/3 until it is released.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	prefix string
	onLost func(key string, err error)
}

type RedisOption func(*Redis)

func WithTTL(d time.Duration) RedisOption   { return func(r *Redis) { r.ttl = d } }
func WithRetry(d time.Duration) RedisOption { return func(r *Redis) { r.retry = d } }
func WithPrefix(p string) RedisOption       { return func(r *Redis) { r.prefix = p } }

// WithOnLost is called at most once per hold when the lock could not be
// extended or released. err wraps ErrLockLost when another holder took over.
func WithOnLost(fn func(key string, err error)) RedisOption {
	return func(r *Redis) { r.onLost = fn }
}

func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		ttl:    30 * time.Second,
		retry:  25 * time.Millisecond,
		prefix: "teameval:lock",
	}
	for _, o := range opts {
		o(r)
	}
	if r.ttl < 3*time.Millisecond {
		r.ttl = 30 * time.Second
	}
	return r
}

func (r *Redis) key(k string) string {
	return fmt.Sprintf("%s:%s", r.prefix, k)
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := r.key(key)
	token := uuid.NewString()
	for {
		ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", k, err)
		}
		if ok {
			break
		}
		t := time.NewTimer(r.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	h := &hold{r: r, key: key, k: k, token: token, stop: make(chan struct{}), done: make(chan struct{})}
	go h.refresh()

	var once sync.Once
	return func() {
		once.Do(h.release)
	}, nil
}

type hold struct {
	r        *Redis
	key, k   string
	token    string
	stop     chan struct{}
	done     chan struct{}
	lostOnce sync.Once
}

func (h *hold) refresh() {
	defer close(h.done)
	t := time.NewTicker(h.r.ttl / 3)
	defer t.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-t.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), h.r.ttl/3)
		n, err := refreshScript.Run(ctx, h.r.client, []string{h.k}, h.token, h.r.ttl.Milliseconds()).Int()
		cancel()
		switch {
		case err != nil:
			h.lost(fmt.Errorf("extend %s: %w", h.k, err))
		case n == 0:
			h.lost(fmt.Errorf("extend %s: %w", h.k, ErrLockLost))
			return
		}
	}
}

func (h *hold) release() {
	close(h.stop)
	<-h.done
	// release even when the caller's context is already done
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n, err := releaseScript.Run(ctx, h.r.client, []string{h.k}, h.token).Int()
	switch {
	case err != nil:
		h.lost(fmt.Errorf("release %s: %w", h.k, err))
	case n == 0:
		h.lost(fmt.Errorf("release %s: %w", h.k, ErrLockLost))
	}
}

func (h *hold) lost(err error) {
	if h.r.onLost == nil {
		return
	}
	h.lostOnce.Do(func() { h.r.onLost(h.key, err) })
}
