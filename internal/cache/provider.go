package cache

import (
	"context"
	"errors"
	"time"
)

// Provider 服务使用的最小缓存操作集
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// ErrCacheMiss key 不存在
var ErrCacheMiss = errors.New("cache miss")
