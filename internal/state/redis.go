package state

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"aquasense/internal/logger"
)

// lockPrefix namespaces lock keys in a shared Redis instance.
const lockPrefix = "aquasense:lock:"

// RedisLocker implements Locker with SETNX leases, so ingestion nodes in
// different processes serialize alert creation for the same key. The lease
// TTL bounds how long a crashed holder can block others.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker connects to Redis at addr and verifies the connection.
func NewRedisLocker(ctx context.Context, addr string, ttl time.Duration) (*RedisLocker, error) {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &RedisLocker{client: client, ttl: ttl, retry: 10 * time.Millisecond}, nil
}

// Lock acquires the lease for key, polling until acquired or ctx ends.
func (r *RedisLocker) Lock(ctx context.Context, key string) (Unlocker, error) {
	token := uuid.New().String()
	full := lockPrefix + key
	for {
		ok, err := r.client.SetNX(ctx, full, token, r.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return &redisLease{client: r.client, key: full, token: token}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retry):
		}
	}
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
}

// releaseScript deletes the lease only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (l *redisLease) Unlock() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil && err != redis.Nil {
		logger.WithComponent("state").Warn().Err(err).Str("key", l.key).Msg("failed to release lock")
	}
}

func (r *RedisLocker) Close() error { return r.client.Close() }
