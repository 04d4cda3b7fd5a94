package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"supportdesk/internal/config"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RedisStreamBus 基于 Redis Stream + 消费组的命令总线。
// 处理成功后才 XACK；失败的消息留在 PEL 中，由 reclaim 在空闲超时后重新领取。
type RedisStreamBus struct {
	rdb          *redis.Client
	stream       string
	group        string
	consumerName string
	minIdle      time.Duration
	logger       *logrus.Logger
}

// NewRedisStreamBus 创建总线并确保消费组存在
func NewRedisStreamBus(ctx context.Context, rdb *redis.Client, cfg config.IntegrationConfig, logger *logrus.Logger) (*RedisStreamBus, error) {
	if logger == nil {
		logger = logrus.New()
	}
	name := cfg.ConsumerName
	if name == "" {
		name = "consumer-" + uuid.NewString()[:8]
	}
	b := &RedisStreamBus{
		rdb:          rdb,
		stream:       cfg.Stream,
		group:        cfg.ConsumerGroup,
		consumerName: name,
		minIdle:      time.Minute,
		logger:       logger,
	}
	if err := b.ensureGroup(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *RedisStreamBus) ensureGroup(ctx context.Context) error {
	err := b.rdb.XGroupCreateMkStream(ctx, b.stream, b.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Publish XADD
func (b *RedisStreamBus) Publish(ctx context.Context, cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	payload, err := cmd.encode()
	if err != nil {
		return err
	}
	id, err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		Values: map[string]interface{}{
			"command_id": cmd.ID,
			"type":       cmd.Type,
			"payload":    payload,
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to add command to stream: %w", err)
	}
	b.logger.WithFields(logrus.Fields{
		"command_id":   cmd.ID,
		"command_type": cmd.Type,
		"message_id":   id,
	}).Debug("Published integration command")
	return nil
}

// Consume XREADGROUP 循环，并定期领取其它消费者遗留的消息
func (b *RedisStreamBus) Consume(ctx context.Context, handler Handler) error {
	b.logger.WithField("consumer_name", b.consumerName).Info("Starting integration stream consumer")
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.reclaim(ctx, handler)
		default:
			b.readOnce(ctx, handler)
		}
	}
}

func (b *RedisStreamBus) readOnce(ctx context.Context, handler Handler) {
	streams, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.group,
		Consumer: b.consumerName,
		Streams:  []string{b.stream, ">"},
		Count:    10,
		Block:    time.Second,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			b.logger.WithError(err).Error("Failed to read from integration stream")
			time.Sleep(time.Second)
		}
		return
	}
	for _, s := range streams {
		for _, msg := range s.Messages {
			b.process(ctx, msg, handler)
		}
	}
}

func (b *RedisStreamBus) reclaim(ctx context.Context, handler Handler) {
	msgs, _, err := b.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   b.stream,
		Group:    b.group,
		Consumer: b.consumerName,
		MinIdle:  b.minIdle,
		Start:    "0-0",
		Count:    10,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			b.logger.WithError(err).Warn("Failed to auto-claim pending commands")
		}
		return
	}
	for _, msg := range msgs {
		b.process(ctx, msg, handler)
	}
}

func (b *RedisStreamBus) process(ctx context.Context, msg redis.XMessage, handler Handler) {
	log := b.logger.WithField("message_id", msg.ID)

	raw, _ := msg.Values["payload"].(string)
	cmd, err := decodeCommand(raw)
	if err == nil {
		err = cmd.Validate()
	}
	if err != nil {
		// 无法解析的消息重试也无意义
		log.WithError(err).Error("Dropping malformed integration command")
		b.ack(ctx, msg.ID)
		return
	}

	if err := handler(ctx, cmd); err != nil {
		log.WithError(err).WithField("command_type", cmd.Type).Warn("Integration command failed, leaving it pending")
		return
	}
	b.ack(ctx, msg.ID)
}

func (b *RedisStreamBus) ack(ctx context.Context, id string) {
	if err := b.rdb.XAck(ctx, b.stream, b.group, id).Err(); err != nil {
		b.logger.WithError(err).WithField("message_id", id).Error("Failed to acknowledge command")
	}
}

// Close 不关闭共享的 Redis 客户端
func (b *RedisStreamBus) Close() error { return nil }
