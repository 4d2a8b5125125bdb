// Package locksvc serializes work on a key across API instances.
package locksvc

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/examoffice/core"
	"github.com/trezcool/examoffice/core/standing"
)

const keyPrefix = "examoffice:lock:"

// unlockScript deletes the key only if it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// RedisLocker holds a key with SET NX PX. A lock expires after ttl if its holder dies.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	logger core.Logger
}

var _ standing.KeyLocker = (*RedisLocker)(nil)

// NewRedisClient connects to Redis and checks it answers.
func NewRedisClient(conf *core.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return rdb, nil
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, logger core.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, retry: 25 * time.Millisecond, logger: logger}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	key = keyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, errors.Wrap(err, "acquiring lock")
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}

	return func() {
		// release even if the caller's context is done
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := unlockScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			l.logger.Warn("releasing lock", err, map[string]interface{}{"key": key})
		}
	}, nil
}
