package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/ordersync/internal/infrastructure/config"
	"go.uber.org/zap"
)

// RefreshLocker is the lock both lockers implement
type RefreshLocker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
	Close() error
}

var (
	_ RefreshLocker = (*RedisRefreshLocker)(nil)
	_ RefreshLocker = (*InMemoryRefreshLocker)(nil)
)

// RefreshLockerFactory creates refresh lockers based on configuration
type RefreshLockerFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// RefreshLockerFactoryOption is a functional option for configuring the factory
type RefreshLockerFactoryOption func(*RefreshLockerFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) RefreshLockerFactoryOption {
	return func(f *RefreshLockerFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to the in-memory locker
// when Redis is unavailable. Default is true.
func WithInMemoryFallback(allow bool) RefreshLockerFactoryOption {
	return func(f *RefreshLockerFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewRefreshLockerFactory creates a new factory
func NewRefreshLockerFactory(cfg config.RedisConfig, opts ...RefreshLockerFactoryOption) *RefreshLockerFactory {
	f := &RefreshLockerFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateRedisLocker creates a Redis-based refresh locker
func (f *RefreshLockerFactory) CreateRedisLocker() (*RedisRefreshLocker, error) {
	if f.redisConfig.Addr() == "" {
		return nil, fmt.Errorf("redis host is not configured")
	}

	locker, err := NewRedisRefreshLocker(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis refresh locker: %w", err)
	}
	return locker, nil
}

// CreateLocker returns a Redis locker when Redis is configured and reachable,
// otherwise an in-memory locker if fallback is allowed.
func (f *RefreshLockerFactory) CreateLocker() (RefreshLocker, error) {
	if f.redisConfig.Addr() == "" {
		f.logger.Info("Redis not configured, using in-memory refresh locker")
		return NewInMemoryRefreshLocker(), nil
	}

	locker, err := f.CreateRedisLocker()
	if err == nil {
		f.logger.Info("Using Redis refresh locker", zap.String("addr", f.redisConfig.Addr()))
		return locker, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for refresh locking but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory refresh locker. "+
		"Token refreshes are only serialized within this process.",
		zap.Error(err),
	)
	return NewInMemoryRefreshLocker(), nil
}
