package services

import (
	"strings"

	"supportdesk/internal/config"
)

// 评分明细中的信号名
const (
	SignalInactivity     = "inactivity"
	SignalBackNavigation = "back_navigation"
	SignalPriceChecking  = "price_checking"
	SignalPaymentFailure = "payment_failure"
	SignalHighValueEvent = "high_value_event"
	SignalFirstTimeUser  = "first_time_user"
)

// 帮助提示文案
const (
	HelpMessageCheckout      = "Need help completing your order?"
	HelpMessageMenu          = "Can we help you choose the right package?"
	HelpMessagePayment       = "Having trouble with payment?"
	HelpMessageCustomization = "Let us help you customize your menu"
	HelpMessageDefault       = "Need assistance? We're here to help!"
)

// FrictionSignals 行为信号输入
type FrictionSignals struct {
	UserID            string  `json:"user_id"`
	InactivitySeconds float64 `json:"inactivity_seconds"`
	BackNavCount      int     `json:"back_nav_count"`
	PriceCheckCount   int     `json:"price_check_count"`
	PaymentRetryCount int     `json:"payment_retry_count"`
	CartValue         float64 `json:"cart_value"`
	IsFirstTimeUser   bool    `json:"is_first_time_user"`
	EventType         string  `json:"event_type,omitempty"`
	CurrentScreen     string  `json:"current_screen,omitempty"`
}

// FrictionResult 评分结果
type FrictionResult struct {
	Score          int            `json:"friction_score"`
	ShouldShowHelp bool           `json:"should_show_help"`
	HelpMessage    string         `json:"help_message,omitempty"`
	Breakdown      map[string]int `json:"breakdown"`
}

// FrictionLevel 分数解读
type FrictionLevel struct {
	Score       int    `json:"score"`
	Level       string `json:"level"`
	Description string `json:"description"`
	Action      string `json:"action"`
}

// FrictionScorer 摩擦评分器（纯函数，无副作用）
type FrictionScorer struct {
	cfg       config.FrictionConfig
	highValue map[string]struct{}
}

// NewFrictionScorer 创建评分器
func NewFrictionScorer(cfg config.FrictionConfig) *FrictionScorer {
	// 分数始终落在 [0, 100]
	if cfg.MaxScore <= 0 || cfg.MaxScore > 100 {
		cfg.MaxScore = 100
	}
	hv := make(map[string]struct{}, len(cfg.HighValueEventTypes))
	for _, t := range cfg.HighValueEventTypes {
		hv[strings.ToUpper(strings.TrimSpace(t))] = struct{}{}
	}
	return &FrictionScorer{cfg: cfg, highValue: hv}
}

// Config 返回当前权重与阈值
func (s *FrictionScorer) Config() config.FrictionConfig {
	return s.cfg
}

// Score 计算摩擦分数。
// 负数计数按 0 处理；总分封顶后，超出上限的信号在明细中记为剩余额度（可能为 0），
// 保证明细之和恰好等于返回的分数。
func (s *FrictionScorer) Score(sig FrictionSignals) FrictionResult {
	w, th := s.cfg.Weights, s.cfg.Thresholds
	checks := []struct {
		name      string
		triggered bool
		weight    int
	}{
		{SignalInactivity, nonNegative(sig.InactivitySeconds) > float64(th.InactivitySeconds), w.Inactivity},
		{SignalBackNavigation, nonNegativeInt(sig.BackNavCount) > th.BackNavCount, w.BackNavigation},
		{SignalPriceChecking, nonNegativeInt(sig.PriceCheckCount) > th.PriceCheckCount, w.PriceChecking},
		{SignalPaymentFailure, nonNegativeInt(sig.PaymentRetryCount) > th.PaymentRetryCount, w.PaymentFailure},
		{SignalHighValueEvent, s.isHighValueEvent(sig.EventType), w.HighValueEvent},
		{SignalFirstTimeUser, sig.IsFirstTimeUser, w.FirstTimeUser},
	}

	score := 0
	breakdown := make(map[string]int)
	for _, c := range checks {
		if !c.triggered {
			continue
		}
		points := c.weight
		if room := s.cfg.MaxScore - score; points > room {
			points = room
		}
		if points < 0 {
			points = 0
		}
		breakdown[c.name] = points
		score += points
	}

	result := FrictionResult{
		Score:          score,
		ShouldShowHelp: score >= s.cfg.HelpThreshold,
		Breakdown:      breakdown,
	}
	if result.ShouldShowHelp {
		result.HelpMessage = HelpMessageFor(sig.CurrentScreen, sig.PaymentRetryCount)
	}
	return result
}

// Interpret 将分数映射为等级描述
func (s *FrictionScorer) Interpret(score int) FrictionLevel {
	lvl := FrictionLevel{Score: score}
	switch {
	case score >= 80:
		lvl.Level, lvl.Description, lvl.Action = "CRITICAL", "User is highly likely to abandon", "Proactively offer a call with an expert"
	case score >= 60:
		lvl.Level, lvl.Description, lvl.Action = "HIGH", "User is struggling noticeably", "Show help prompt and prioritise chat"
	case score >= 40:
		lvl.Level, lvl.Description, lvl.Action = "MODERATE", "Some hesitation detected", "Show a contextual hint"
	case score >= 20:
		lvl.Level, lvl.Description, lvl.Action = "LOW", "Minor friction", "Monitor"
	default:
		lvl.Level, lvl.Description, lvl.Action = "MINIMAL", "User is progressing normally", "No action"
	}
	return lvl
}

func (s *FrictionScorer) isHighValueEvent(eventType string) bool {
	if eventType == "" {
		return false
	}
	_, ok := s.highValue[strings.ToUpper(strings.TrimSpace(eventType))]
	return ok
}

// HelpMessageFor 按当前页面选择帮助文案，首个匹配生效
func HelpMessageFor(screen string, paymentRetries int) string {
	screen = strings.ToLower(screen)
	switch {
	case strings.Contains(screen, "checkout") || strings.Contains(screen, "cart"):
		if paymentRetries > 0 {
			return HelpMessagePayment
		}
		return HelpMessageCheckout
	case strings.Contains(screen, "menu") || strings.Contains(screen, "platter"):
		return HelpMessageMenu
	case strings.Contains(screen, "custom"):
		return HelpMessageCustomization
	default:
		return HelpMessageDefault
	}
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func nonNegativeInt(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
