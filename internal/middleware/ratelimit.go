package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"supportdesk/internal/config"
	"supportdesk/internal/metrics"

	"github.com/gin-gonic/gin"
)

// tokenBucket 令牌桶
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	ratePerSec float64
	burst      float64
}

func newBucket(rpm, burst int, now time.Time) *tokenBucket {
	if rpm <= 0 {
		rpm = 60
	}
	if burst <= 0 {
		burst = rpm
	}
	return &tokenBucket{
		tokens:     float64(burst),
		lastRefill: now,
		ratePerSec: float64(rpm) / 60.0,
		burst:      float64(burst),
	}
}

func (b *tokenBucket) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if elapsed := now.Sub(b.lastRefill).Seconds(); elapsed > 0 {
		b.tokens += elapsed * b.ratePerSec
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
		b.lastRefill = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// limiter 一组按 key 划分的令牌桶
type limiter struct {
	prefix  string
	rpm     int
	burst   int
	mu      sync.Mutex
	buckets map[string]*tokenBucket
}

func (l *limiter) bucket(key string, now time.Time) *tokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[key]; ok {
		return b
	}
	b := newBucket(l.rpm, l.burst, now)
	l.buckets[key] = b
	return b
}

// RateLimiter 按路径前缀与客户端 key 限流；webhook 路径通常单独配置
type RateLimiter struct {
	cfg    config.RateLimitingConfig
	paths  []*limiter
	global *limiter
	now    func() time.Time
}

// NewRateLimiter 根据 security.rate_limiting 创建限流器
func NewRateLimiter(cfg config.RateLimitingConfig) *RateLimiter {
	rl := &RateLimiter{cfg: cfg, now: time.Now}
	for _, p := range cfg.Paths {
		if !p.Enabled || p.RequestsPerMinute <= 0 || p.Prefix == "" {
			continue
		}
		rl.paths = append(rl.paths, &limiter{
			prefix:  p.Prefix,
			rpm:     p.RequestsPerMinute,
			burst:   p.Burst,
			buckets: make(map[string]*tokenBucket),
		})
	}
	if cfg.RequestsPerMinute > 0 {
		rl.global = &limiter{
			prefix:  "global",
			rpm:     cfg.RequestsPerMinute,
			burst:   cfg.Burst,
			buckets: make(map[string]*tokenBucket),
		}
	}
	return rl
}

// Middleware gin 中间件；首个匹配的路径前缀生效，否则使用全局限额
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	if !rl.cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		key := rl.clientKey(c)
		if rl.whitelisted(c, key) {
			c.Next()
			return
		}

		l := rl.match(c)
		if l == nil {
			c.Next()
			return
		}
		if !l.bucket(key, rl.now()).allow(rl.now()) {
			metrics.IncRateLimitDrop(l.prefix)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Too Many Requests",
				"message": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) match(c *gin.Context) *limiter {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	for _, l := range rl.paths {
		if strings.HasPrefix(path, l.prefix) {
			return l
		}
	}
	return rl.global
}

func (rl *RateLimiter) clientKey(c *gin.Context) string {
	if h := rl.cfg.KeyHeader; h != "" {
		if v := c.GetHeader(h); v != "" {
			if strings.EqualFold(h, "X-Forwarded-For") {
				v = strings.TrimSpace(strings.Split(v, ",")[0])
			}
			return v
		}
	}
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}

func (rl *RateLimiter) whitelisted(c *gin.Context, key string) bool {
	if rl.cfg.KeyHeader != "" && contains(rl.cfg.WhitelistKeys, key) {
		return true
	}
	return contains(rl.cfg.WhitelistIPs, c.ClientIP())
}

func contains(hay []string, needle string) bool {
	for _, s := range hay {
		if s == needle {
			return true
		}
	}
	return false
}
