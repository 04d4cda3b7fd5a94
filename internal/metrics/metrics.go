package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "supportdesk"

// 通用结果标签
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultIgnored = "ignored"
)

var (
	webhookActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_actions_total",
			Help:      "Chat platform webhook actions handled, partitioned by action and result.",
		},
		[]string{"action", "result"},
	)

	resolverOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_resolutions_total",
			Help:      "Conversation events attached to an incidence, partitioned by resolution strategy.",
		},
		[]string{"strategy"},
	)

	incidenceClosesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidence_closes_total",
			Help:      "Incidences moved to a terminal outcome.",
		},
		[]string{"outcome"},
	)

	frictionScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "friction_score",
			Help:      "Distribution of computed friction scores.",
			Buckets:   []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	channelDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_decisions_total",
			Help:      "Channel routing decisions, partitioned by priority.",
		},
		[]string{"priority"},
	)

	integrationCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integration_commands_total",
			Help:      "Integration commands processed, partitioned by type and result.",
		},
		[]string{"type", "result"},
	)

	rateLimitDropsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_drops_total",
			Help:      "Requests rejected with 429, partitioned by path prefix.",
		},
		[]string{"prefix"},
	)
)

// Register 把所有采集器注册到 reg，重复注册会被忽略
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		webhookActionsTotal,
		resolverOutcomesTotal,
		incidenceClosesTotal,
		frictionScore,
		channelDecisionsTotal,
		integrationCommandsTotal,
		rateLimitDropsTotal,
	}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveWebhook 记录一次 webhook 处理
func ObserveWebhook(action, result string) {
	if action == "" {
		action = "unknown"
	}
	webhookActionsTotal.WithLabelValues(action, result).Inc()
}

// ObserveResolution 记录会话解析命中的策略（bound / hint / recent_unbound / created）
func ObserveResolution(strategy string) {
	resolverOutcomesTotal.WithLabelValues(strategy).Inc()
}

// IncIncidenceClosed 记录关闭
func IncIncidenceClosed(outcome string) {
	incidenceClosesTotal.WithLabelValues(outcome).Inc()
}

// ObserveFrictionScore 记录摩擦分
func ObserveFrictionScore(score int) {
	frictionScore.Observe(float64(score))
}

// IncChannelDecision 记录路由决策
func IncChannelDecision(priority string) {
	channelDecisionsTotal.WithLabelValues(priority).Inc()
}

// ObserveIntegrationCommand 记录集成命令处理结果
func ObserveIntegrationCommand(cmdType, result string) {
	integrationCommandsTotal.WithLabelValues(cmdType, result).Inc()
}

// rateLimitStats 限流拒绝计数，供 /health 输出快照
type rateLimitStats struct {
	total    uint64
	mu       sync.Mutex
	byPrefix map[string]uint64
}

var rl rateLimitStats

// IncRateLimitDrop 记录一次 429；空前缀记为 global
func IncRateLimitDrop(prefix string) {
	if prefix == "" {
		prefix = "global"
	}
	atomic.AddUint64(&rl.total, 1)
	rl.mu.Lock()
	if rl.byPrefix == nil {
		rl.byPrefix = make(map[string]uint64)
	}
	rl.byPrefix[prefix]++
	rl.mu.Unlock()
	rateLimitDropsTotal.WithLabelValues(prefix).Inc()
}

// RateLimitSnapshot 返回计数副本
func RateLimitSnapshot() (total uint64, by map[string]uint64) {
	total = atomic.LoadUint64(&rl.total)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	by = make(map[string]uint64, len(rl.byPrefix))
	for k, v := range rl.byPrefix {
		by[k] = v
	}
	return total, by
}
