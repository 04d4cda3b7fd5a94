package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"supportdesk/internal/models"

	"gorm.io/gorm"
)

// CallRequestMessage 回拨请求成功后的提示
const CallRequestMessage = "Call request submitted successfully! An agent will call you within 5 minutes."

// CallRequest 用户请求回拨
type CallRequest struct {
	UserID      string  `json:"user_id" binding:"required"`
	Phone       string  `json:"phone" binding:"required"`
	IncidenceID string  `json:"incidence_id"`
	OrderID     string  `json:"order_id"`
	AppScreen   string  `json:"app_screen"`
	CartValue   float64 `json:"cart_value"`
	EventType   string  `json:"event_type"`
}

// RequestCall 已有 Incidence 时改为 CALL 渠道并记录 CALL_REQUESTED；否则新建 CALL Incidence。
// created 表示是否新建。
func (s *IncidenceService) RequestCall(ctx context.Context, req *CallRequest) (inc *models.Incidence, created bool, err error) {
	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		return nil, false, fmt.Errorf("%w: phone is required", ErrInvalidIncidence)
	}

	if req.IncidenceID != "" {
		var event *models.IncidenceTimeline
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var existing models.Incidence
			if err := tx.Where("id = ?", req.IncidenceID).Take(&existing).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil
				}
				return err
			}
			if err := tx.Model(&existing).Updates(map[string]interface{}{
				"channel":    models.ChannelCall,
				"user_phone": phone,
				"updated_at": s.now(),
			}).Error; err != nil {
				return err
			}
			ev, err := s.WithTx(tx).insertTimeline(ctx, existing.ID, models.TimelineCallRequested, models.ActorUser,
				fmt.Sprintf("User requested a call back to %s", phone),
				map[string]interface{}{"phone": phone, "source": "freshchat_widget"})
			if err != nil {
				return err
			}
			event = ev
			existing.Channel = models.ChannelCall
			existing.UserPhone = &phone
			inc = &existing
			return nil
		})
		if err != nil {
			return nil, false, fmt.Errorf("failed to request call: %w", err)
		}
		if inc != nil {
			s.Notify(event)
			s.logger.Infof("Call requested on incidence %s", inc.ID)
			return inc, false, nil
		}
		s.logger.Warnf("Call request references unknown incidence %s, creating a new one", req.IncidenceID)
	}

	inc, err = s.Create(ctx, &IncidenceCreateRequest{
		UserID:    req.UserID,
		OrderID:   req.OrderID,
		Channel:   models.ChannelCall,
		Trigger:   models.TriggerUserInitiated,
		AppScreen: req.AppScreen,
		CartValue: req.CartValue,
		EventType: req.EventType,
		UserPhone: phone,
	})
	if err != nil {
		return nil, false, err
	}
	return inc, true, nil
}

// PendingCalls 待回拨列表：CALL 渠道、处理中且留有电话
func (s *IncidenceService) PendingCalls(ctx context.Context, limit int) ([]models.Incidence, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var list []models.Incidence
	if err := s.db.WithContext(ctx).
		Where("channel = ? AND outcome = ? AND user_phone IS NOT NULL", models.ChannelCall, models.OutcomeInProgress).
		Order("created_at DESC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending calls: %w", err)
	}
	return list, nil
}
