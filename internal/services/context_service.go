package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"supportdesk/internal/cache"
	"supportdesk/internal/config"
	"supportdesk/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrInvalidContext 上下文缺少用户 ID
var ErrInvalidContext = errors.New("user context requires user_id")

// CartItem 购物车条目
type CartItem struct {
	ItemID   string  `json:"item_id"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// UserContext App 上报的会话上下文，坐席查看用
type UserContext struct {
	UserID          string     `json:"user_id" binding:"required"`
	CurrentScreen   string     `json:"current_screen,omitempty"`
	SessionID       string     `json:"session_id,omitempty"`
	CartItems       []CartItem `json:"cart_items,omitempty"`
	CartValue       *float64   `json:"cart_value,omitempty"`
	GuestCount      *int       `json:"guest_count,omitempty"`
	EventDate       string     `json:"event_date,omitempty"`
	EventType       string     `json:"event_type,omitempty"`
	SelectedPlatter string     `json:"selected_platter,omitempty"`

	InactivitySeconds *int `json:"inactivity_seconds,omitempty"`
	BackNavCount      *int `json:"back_nav_count,omitempty"`
	PriceCheckCount   *int `json:"price_check_count,omitempty"`
	PaymentRetryCount *int `json:"payment_retry_count,omitempty"`
}

// FrictionSignalRequest 埋点上报
type FrictionSignalRequest struct {
	UserID     string   `json:"user_id" binding:"required"`
	SessionID  string   `json:"session_id" binding:"required"`
	SignalType string   `json:"signal_type" binding:"required"`
	Value      *float64 `json:"value"`
	Screen     string   `json:"screen"`
}

// ContextService 用户上下文（缓存）与摩擦埋点（数据库）
type ContextService struct {
	cache  cache.Provider
	db     *gorm.DB
	cfg    config.ContextConfig
	logger *logrus.Logger
	now    func() time.Time
}

// NewContextService 创建服务
func NewContextService(p cache.Provider, db *gorm.DB, cfg config.ContextConfig, logger *logrus.Logger) *ContextService {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "user_context:"
	}
	return &ContextService{
		cache:  p,
		db:     db,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// TTL 上下文过期时间
func (s *ContextService) TTL() time.Duration {
	return s.cfg.TTL
}

// Update 整体覆盖用户上下文并刷新 TTL
func (s *ContextService) Update(ctx context.Context, uc *UserContext) error {
	if uc == nil || strings.TrimSpace(uc.UserID) == "" {
		return ErrInvalidContext
	}
	data, err := json.Marshal(uc)
	if err != nil {
		return fmt.Errorf("failed to encode user context: %w", err)
	}
	if err := s.cache.Set(ctx, s.key(uc.UserID), data, s.cfg.TTL); err != nil {
		return fmt.Errorf("failed to store user context: %w", err)
	}
	s.logger.WithField("user_id", uc.UserID).Debug("User context updated")
	return nil
}

// Get 读取用户上下文，不存在或已过期时返回 nil, nil
func (s *ContextService) Get(ctx context.Context, userID string) (*UserContext, error) {
	data, err := s.cache.Get(ctx, s.key(userID))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user context: %w", err)
	}
	var uc UserContext
	if err := json.Unmarshal(data, &uc); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Discarding unreadable user context")
		return nil, nil
	}
	return &uc, nil
}

// LogSignal 写入一条摩擦埋点
func (s *ContextService) LogSignal(ctx context.Context, req *FrictionSignalRequest) (*models.FrictionSignal, error) {
	sig := &models.FrictionSignal{
		UserID:     req.UserID,
		SessionID:  req.SessionID,
		SignalType: req.SignalType,
		Value:      req.Value,
		Screen:     req.Screen,
		CreatedAt:  s.now(),
	}
	if err := s.db.WithContext(ctx).Create(sig).Error; err != nil {
		return nil, fmt.Errorf("failed to log friction signal: %w", err)
	}
	return sig, nil
}

// RecentSignals 用户最近的埋点
func (s *ContextService) RecentSignals(ctx context.Context, userID string, limit int) ([]models.FrictionSignal, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var list []models.FrictionSignal
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list friction signals: %w", err)
	}
	return list, nil
}

// SignalsFromContext 由缓存的上下文组装评分输入，缺失的计数按 0 处理
func SignalsFromContext(uc *UserContext) FrictionSignals {
	sig := FrictionSignals{UserID: uc.UserID, EventType: uc.EventType, CurrentScreen: uc.CurrentScreen}
	if uc.InactivitySeconds != nil {
		sig.InactivitySeconds = float64(*uc.InactivitySeconds)
	}
	if uc.BackNavCount != nil {
		sig.BackNavCount = *uc.BackNavCount
	}
	if uc.PriceCheckCount != nil {
		sig.PriceCheckCount = *uc.PriceCheckCount
	}
	if uc.PaymentRetryCount != nil {
		sig.PaymentRetryCount = *uc.PaymentRetryCount
	}
	if uc.CartValue != nil {
		sig.CartValue = *uc.CartValue
	}
	return sig
}

func (s *ContextService) key(userID string) string {
	return s.cfg.KeyPrefix + userID
}
