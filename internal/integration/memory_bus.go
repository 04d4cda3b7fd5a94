package integration

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrBusClosed 总线已关闭
var ErrBusClosed = errors.New("integration bus closed")

// ErrBusFull 缓冲区已满
var ErrBusFull = errors.New("integration bus buffer full")

// MemoryBus 进程内的带缓冲命令通道；处理失败的命令只记录日志
type MemoryBus struct {
	ch     chan Command
	logger *logrus.Logger
	mu     sync.RWMutex
	closed bool
}

// NewMemoryBus 创建进程内总线
func NewMemoryBus(buffer int, logger *logrus.Logger) *MemoryBus {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &MemoryBus{ch: make(chan Command, buffer), logger: logger}
}

// Publish 非阻塞写入；缓冲区满时返回 ErrBusFull
func (b *MemoryBus) Publish(ctx context.Context, cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	select {
	case b.ch <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBusFull
	}
}

// Consume 逐条处理直到 ctx 取消或总线关闭
func (b *MemoryBus) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd, ok := <-b.ch:
			if !ok {
				return nil
			}
			if err := handler(ctx, cmd); err != nil {
				b.logger.WithError(err).WithFields(logrus.Fields{
					"command_id":   cmd.ID,
					"command_type": cmd.Type,
				}).Warn("Integration command failed")
			}
		}
	}
}

// Close 关闭总线，已排队的命令仍会被消费
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
	return nil
}

// Len 排队中的命令数
func (b *MemoryBus) Len() int {
	return len(b.ch)
}
