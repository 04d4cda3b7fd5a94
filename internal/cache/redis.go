package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"supportdesk/internal/config"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RedisProvider 基于 go-redis 的 Provider
type RedisProvider struct {
	rdb    *redis.Client
	logger *logrus.Logger
}

// NewRedisClient 按配置创建客户端并 Ping 一次，连接失败立即返回错误
func NewRedisClient(cfg config.RedisConfig, logger *logrus.Logger) (*redis.Client, error) {
	if logger == nil {
		logger = logrus.New()
	}
	var opt *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		opt = parsed
	} else {
		opt = &redis.Options{
			Addr:     cfg.Addr(),
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if cfg.PoolSize > 0 {
		opt.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opt.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opt.DialTimeout = cfg.DialTimeout
	}

	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Infof("Connected to Redis at %s", opt.Addr)
	return rdb, nil
}

// NewRedisProvider 包装已有客户端
func NewRedisProvider(rdb *redis.Client, logger *logrus.Logger) *RedisProvider {
	if logger == nil {
		logger = logrus.New()
	}
	return &RedisProvider{rdb: rdb, logger: logger}
}

// Client 底层客户端（供 Redis Stream 总线复用连接）
func (p *RedisProvider) Client() *redis.Client {
	return p.rdb
}

// Get 获取值，不存在时返回 ErrCacheMiss
func (p *RedisProvider) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := p.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Set 写入
func (p *RedisProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := p.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// SetNX 仅在 key 不存在时写入
func (p *RedisProvider) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := p.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

// Del 删除
func (p *RedisProvider) Del(ctx context.Context, key string) error {
	if err := p.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Ping 健康检查
func (p *RedisProvider) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// Close 关闭连接
func (p *RedisProvider) Close() error {
	return p.rdb.Close()
}
