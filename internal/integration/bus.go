package integration

import (
	"context"
	"fmt"
	"strings"

	"supportdesk/internal/config"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// NewBus 按 integration.transport 选择总线；redis 传输需要可用的客户端
func NewBus(ctx context.Context, cfg config.IntegrationConfig, rdb *redis.Client, logger *logrus.Logger) (Bus, error) {
	switch strings.ToLower(cfg.Transport) {
	case "", "memory":
		return NewMemoryBus(cfg.BufferSize, logger), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("integration transport redis requires redis to be enabled")
		}
		return NewRedisStreamBus(ctx, rdb, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown integration transport %q", cfg.Transport)
	}
}
