package redisad

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"staybook/internal/domain"
)

// Locker serializes reservation and payment writes across API instances with
// SET NX PX. Each acquisition holds a random token so that only the owner can
// release; the TTL bounds how long a crashed holder can wedge a key.
type Locker struct {
	c         *redis.Client
	retryWait time.Duration
}

func NewLocker(addr, pass string, db int) *Locker {
	return &Locker{
		c:         redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db}),
		retryWait: 25 * time.Millisecond,
	}
}

func NewLockerWithClient(c *redis.Client) *Locker {
	return &Locker{c: c, retryWait: 25 * time.Millisecond}
}

// releaseScript deletes the key only while it still holds our token, so an
// expired-and-reacquired lock is never released out from under its new owner.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

type lockHandle struct {
	c     *redis.Client
	key   string
	token string
}

func (h *lockHandle) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, h.c, []string{h.key}, h.token).Err()
}

// Acquire blocks until the key is taken or ctx is done.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (domain.LockHandle, error) {
	token := uuid.NewString()
	for {
		ok, err := l.c.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return &lockHandle{c: l.c, key: key, token: token}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryWait):
		}
	}
}
