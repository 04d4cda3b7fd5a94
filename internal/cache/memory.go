package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryProvider 进程内缓存，用于未启用 Redis 的部署与测试
type MemoryProvider struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryProvider 创建进程内缓存
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

// Get 获取值，不存在或已过期时返回 ErrCacheMiss
func (p *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	it, ok := p.lookup(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), it.value...), nil
}

// Set 写入，ttl <= 0 表示不过期
func (p *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items[key] = p.item(value, ttl)
	return nil
}

// SetNX 仅在 key 不存在时写入
func (p *MemoryProvider) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.lookup(key); ok {
		return false, nil
	}
	p.items[key] = p.item(value, ttl)
	return true, nil
}

// Del 删除
func (p *MemoryProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.items, key)
	return nil
}

// Ping 始终可用
func (p *MemoryProvider) Ping(context.Context) error { return nil }

// Close 清空数据
func (p *MemoryProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = make(map[string]memoryItem)
	return nil
}

func (p *MemoryProvider) item(value []byte, ttl time.Duration) memoryItem {
	it := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		it.expiresAt = p.now().Add(ttl)
	}
	return it
}

// lookup 调用方需持有锁
func (p *MemoryProvider) lookup(key string) (memoryItem, bool) {
	it, ok := p.items[key]
	if !ok {
		return memoryItem{}, false
	}
	if !it.expiresAt.IsZero() && !p.now().Before(it.expiresAt) {
		delete(p.items, key)
		return memoryItem{}, false
	}
	return it, true
}
