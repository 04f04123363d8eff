// Package redislock provides short-lived exclusive locks in Redis so that
// several server instances can agree on which one owns a key.
package redislock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	applog "github.com/janisto/account-settings/internal/platform/logging"
)

// DefaultTTL bounds how long a crashed holder can block a key.
const DefaultTTL = 2 * time.Minute

const releaseTimeout = 2 * time.Second

// Deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Locker takes per-key locks with SET NX and a TTL.
type Locker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// New returns a Locker whose keys are prefix+key. A non-positive ttl uses DefaultTTL.
func New(client redis.UniversalClient, prefix string, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Locker{client: client, prefix: prefix, ttl: ttl}
}

// TryLock takes the lock for key without waiting. ok is false when someone
// else holds it. unlock releases the lock only if it is still ours.
func (l *Locker) TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error) {
	k := l.prefix + key
	token := uuid.NewString()

	ok, err = l.client.SetNX(ctx, k, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lock %s: %w", k, err)
	}
	if !ok {
		return nil, false, nil
	}

	return func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{k}, token).Err(); err != nil {
			applog.LogWarn(ctx, "redis lock release failed", zap.String("key", k), zap.Error(err))
		}
	}, true, nil
}

// Connect parses a redis:// URL, opens a client and pings it.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 8 * time.Millisecond
	opts.MaxRetryBackoff = 512 * time.Millisecond

	client := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
