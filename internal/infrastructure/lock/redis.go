package lock

import (
	"context"
	"fmt"
	"time"

	"chain_sync/internal/app/port"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a run lock shared by every process pointed at the same Redis.
// The local lock is checked first so one process never races itself through Redis.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	local  *Local
	logger *zap.Logger
}

var _ port.RunLock = (*Redis)(nil)

// NewRedis connects to url and verifies the connection.
func NewRedis(ctx context.Context, url, prefix string, ttl time.Duration, logger *zap.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Redis{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		local:  NewLocal(),
		logger: logger.Named("RedisLock"),
	}, nil
}

func (r *Redis) TryAcquire(ctx context.Context, key string) (func(), bool, error) {
	releaseLocal, ok, _ := r.local.TryAcquire(ctx, key)
	if !ok {
		return nil, false, nil
	}

	fullKey := r.prefix + key
	token := uuid.NewString()
	acquired, err := r.client.SetNX(ctx, fullKey, token, r.ttl).Result()
	if err != nil {
		releaseLocal()
		return nil, false, fmt.Errorf("acquire %s: %w", fullKey, err)
	}
	if !acquired {
		releaseLocal()
		return nil, false, nil
	}

	return func() {
		defer releaseLocal()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, r.client, []string{fullKey}, token).Err(); err != nil {
			r.logger.Warn("Failed to release run lock, it will expire", zap.String("key", fullKey), zap.Error(err))
		}
	}, true, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
