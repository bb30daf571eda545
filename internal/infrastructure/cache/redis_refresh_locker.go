package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockKeyPrefix = "ordersync:refresh-lock:"

// releaseScript deletes the lock only if it still holds the caller's token,
// so an expired holder can never release a lock someone else took over.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRefreshLocker serializes token refreshes across server replicas.
// The lock is a SET NX key with a TTL holding a random token.
type RedisRefreshLocker struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisRefreshLocker connects to Redis and creates a RedisRefreshLocker
func NewRedisRefreshLocker(cfg RedisConfig) (*RedisRefreshLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisRefreshLockerWithClient(client, ""), nil
}

// NewRedisRefreshLockerWithClient creates a locker on an existing Redis client
func NewRedisRefreshLockerWithClient(client *redis.Client, keyPrefix string) *RedisRefreshLocker {
	if keyPrefix == "" {
		keyPrefix = defaultLockKeyPrefix
	}
	return &RedisRefreshLocker{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// TryAcquire takes the lock for key if nobody holds it.
// It returns the token needed to release it.
func (l *RedisRefreshLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.keyPrefix+key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire refresh lock: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release drops the lock if token still owns it
func (l *RedisRefreshLocker) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.keyPrefix + key}, token).Err(); err != nil {
		return fmt.Errorf("failed to release refresh lock: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (l *RedisRefreshLocker) Close() error {
	return l.client.Close()
}

// GetClient returns the underlying Redis client (for testing/monitoring)
func (l *RedisRefreshLocker) GetClient() *redis.Client {
	return l.client
}
