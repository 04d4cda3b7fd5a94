package services

import (
	"fmt"
	"strings"

	"supportdesk/internal/config"
)

// 可用渠道
const (
	SupportChannelChat = "CHAT"
	SupportChannelCall = "CALL"
)

// 路由优先级
const (
	PriorityLow    = "LOW"
	PriorityNormal = "NORMAL"
	PriorityHigh   = "HIGH"
)

// 路由分组
const (
	RouteGroupPremium = "premium_support"
	RouteGroupGeneral = "general_support"
)

// ChannelRequest 渠道路由输入
type ChannelRequest struct {
	UserID     string  `json:"user_id,omitempty"`
	OrderValue float64 `json:"order_value"`
	EventType  string  `json:"event_type,omitempty"`
	// UserTier 目前不参与决策
	UserTier      string `json:"user_tier,omitempty"`
	FrictionScore *int   `json:"friction_score,omitempty"`
}

// ChannelDecision 渠道路由结果
type ChannelDecision struct {
	AllowedChannels []string `json:"allowed_channels"`
	ShowHelpButton  bool     `json:"show_help_button"`
	HelpTriggerText string   `json:"help_trigger_text,omitempty"`
	Priority        string   `json:"priority"`
	RouteToGroup    string   `json:"route_to_group,omitempty"`
	Reason          string   `json:"reason"`
}

// ChannelRule 规则说明（用于 /channel/rules）
type ChannelRule struct {
	Condition       string   `json:"condition"`
	AllowedChannels []string `json:"allowed_channels"`
	Priority        string   `json:"priority"`
	RouteToGroup    string   `json:"route_to_group,omitempty"`
}

// ChannelRouter 根据订单金额和活动类型决定可用渠道
type ChannelRouter struct {
	cfg     config.RoutingConfig
	premium map[string]struct{}
}

// NewChannelRouter 创建渠道路由器
func NewChannelRouter(cfg config.RoutingConfig) *ChannelRouter {
	p := make(map[string]struct{}, len(cfg.PremiumEventTypes))
	for _, t := range cfg.PremiumEventTypes {
		p[strings.ToUpper(strings.TrimSpace(t))] = struct{}{}
	}
	return &ChannelRouter{cfg: cfg, premium: p}
}

// Route 按固定顺序匹配：活动类型优先于金额阈值
func (r *ChannelRouter) Route(req ChannelRequest) ChannelDecision {
	eventType := strings.ToUpper(strings.TrimSpace(req.EventType))
	if _, ok := r.premium[eventType]; ok && eventType != "" {
		return ChannelDecision{
			AllowedChannels: []string{SupportChannelChat, SupportChannelCall},
			ShowHelpButton:  true,
			HelpTriggerText: "Talk to our catering expert",
			Priority:        PriorityHigh,
			RouteToGroup:    RouteGroupPremium,
			Reason:          fmt.Sprintf("High-value event type %s gets premium support", eventType),
		}
	}

	value := req.OrderValue
	switch {
	case value < r.cfg.ThresholdLow:
		return ChannelDecision{
			AllowedChannels: []string{},
			ShowHelpButton:  false,
			Priority:        PriorityLow,
			Reason:          fmt.Sprintf("Order value %.2f is below %.2f; self-serve only", value, r.cfg.ThresholdLow),
		}
	case value < r.cfg.ThresholdHigh:
		return ChannelDecision{
			AllowedChannels: []string{SupportChannelChat},
			ShowHelpButton:  true,
			HelpTriggerText: "Chat with us",
			Priority:        PriorityNormal,
			RouteToGroup:    RouteGroupGeneral,
			Reason:          fmt.Sprintf("Order value %.2f is between %.2f and %.2f; chat support", value, r.cfg.ThresholdLow, r.cfg.ThresholdHigh),
		}
	default:
		return ChannelDecision{
			AllowedChannels: []string{SupportChannelChat, SupportChannelCall},
			ShowHelpButton:  true,
			HelpTriggerText: "Talk to our catering expert",
			Priority:        PriorityHigh,
			RouteToGroup:    RouteGroupPremium,
			Reason:          fmt.Sprintf("Order value %.2f is at or above %.2f; chat and call support", value, r.cfg.ThresholdHigh),
		}
	}
}

// Rules 以可读形式描述当前规则
func (r *ChannelRouter) Rules() []ChannelRule {
	return []ChannelRule{
		{
			Condition:       fmt.Sprintf("event_type in %v", r.cfg.PremiumEventTypes),
			AllowedChannels: []string{SupportChannelChat, SupportChannelCall},
			Priority:        PriorityHigh,
			RouteToGroup:    RouteGroupPremium,
		},
		{
			Condition:       fmt.Sprintf("order_value < %.0f", r.cfg.ThresholdLow),
			AllowedChannels: []string{},
			Priority:        PriorityLow,
		},
		{
			Condition:       fmt.Sprintf("%.0f <= order_value < %.0f", r.cfg.ThresholdLow, r.cfg.ThresholdHigh),
			AllowedChannels: []string{SupportChannelChat},
			Priority:        PriorityNormal,
			RouteToGroup:    RouteGroupGeneral,
		},
		{
			Condition:       fmt.Sprintf("order_value >= %.0f", r.cfg.ThresholdHigh),
			AllowedChannels: []string{SupportChannelChat, SupportChannelCall},
			Priority:        PriorityHigh,
			RouteToGroup:    RouteGroupPremium,
		},
	}
}
