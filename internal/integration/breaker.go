package integration

import (
	"context"
	"errors"
	"sync"
	"time"

	"supportdesk/internal/config"
)

// ErrCircuitOpen 熔断器打开时拒绝调用
var ErrCircuitOpen = errors.New("circuit breaker is open")

var disabledBreaker = config.CircuitBreakerConfig{Enabled: false}

// BreakerState 熔断器状态
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // 正常
	BreakerOpen                         // 熔断
	BreakerHalfOpen                     // 试探
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerStats 熔断器快照
type BreakerStats struct {
	Name         string    `json:"name"`
	State        string    `json:"state"`
	FailureCount int       `json:"failure_count"`
	LastFailure  time.Time `json:"last_failure,omitempty"`
	MaxFailures  int       `json:"max_failures"`
	ResetTimeout string    `json:"reset_timeout"`
}

// Breaker 保护单个上游（Freshchat / Freshdesk）的熔断器
type Breaker struct {
	name         string
	cfg          config.CircuitBreakerConfig
	state        BreakerState
	failureCount int
	lastFailure  time.Time
	halfOpenReqs int
	now          func() time.Time
	mu           sync.Mutex
}

// NewBreaker 创建熔断器；cfg.Enabled 为 false 时始终放行
func NewBreaker(name string, cfg config.CircuitBreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}
	if cfg.HalfOpenMaxReqs <= 0 {
		cfg.HalfOpenMaxReqs = 3
	}
	return &Breaker{name: name, cfg: cfg, state: BreakerClosed, now: time.Now}
}

// Name 上游名称
func (b *Breaker) Name() string { return b.name }

// Allow 是否放行本次调用
func (b *Breaker) Allow() bool {
	if !b.cfg.Enabled {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.now().Sub(b.lastFailure) >= b.cfg.ResetTimeout {
			b.state = BreakerHalfOpen
			b.halfOpenReqs = 1
			return true
		}
		return false
	case BreakerHalfOpen:
		if b.halfOpenReqs < b.cfg.HalfOpenMaxReqs {
			b.halfOpenReqs++
			return true
		}
		return false
	}
	return false
}

// OnSuccess 记录成功
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failureCount = 0
	b.halfOpenReqs = 0
}

// OnFailure 记录失败；半开状态下一次失败即重新打开
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount++
	b.lastFailure = b.now()
	switch b.state {
	case BreakerClosed:
		if b.failureCount >= b.cfg.MaxFailures {
			b.state = BreakerOpen
		}
	case BreakerHalfOpen:
		b.state = BreakerOpen
		b.halfOpenReqs = 0
	}
}

// Execute 在熔断器保护下执行 fn；调用方取消不计为上游失败
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.Allow() {
		return ErrCircuitOpen
	}
	err := fn(ctx)
	switch {
	case err == nil:
		b.OnSuccess()
	case errors.Is(err, context.Canceled):
	default:
		b.OnFailure()
	}
	return err
}

// State 当前状态
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset 恢复为关闭状态
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failureCount = 0
	b.halfOpenReqs = 0
}

// Stats 快照
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		Name:         b.name,
		State:        b.state.String(),
		FailureCount: b.failureCount,
		LastFailure:  b.lastFailure,
		MaxFailures:  b.cfg.MaxFailures,
		ResetTimeout: b.cfg.ResetTimeout.String(),
	}
}
