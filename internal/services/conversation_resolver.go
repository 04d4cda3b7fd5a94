package services

import (
	"context"
	"errors"
	"fmt"

	"supportdesk/internal/config"
	"supportdesk/internal/metrics"
	"supportdesk/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	// ErrMalformedEvent 事件缺少会话 ID
	ErrMalformedEvent = errors.New("chat event has no conversation id")
	// ErrConversationBound 多次重试后仍无法把会话绑定到唯一的 Incidence
	ErrConversationBound = errors.New("conversation could not be bound")
)

// 解析命中的策略
const (
	StrategyBound         = "bound"
	StrategyHint          = "hint"
	StrategyRecentUnbound = "recent_unbound"
	StrategyCreated       = "created"
)

// ResolveResult 会话解析结果
type ResolveResult struct {
	Incidence *models.Incidence
	Created   bool
	Strategy  string
	Message   *models.IncidenceTimeline
}

// ConversationResolver 把聊天事件挂到唯一的 Incidence 上。
// 查找顺序：已绑定会话 -> 客户端提示的 ID -> 时间窗口内最新的未绑定记录 -> 新建。
//
// 第三步是启发式匹配：同一窗口内多个用户的未绑定记录会互相混淆。
// 客户端在创建 Incidence 时生成关联令牌并由聊天平台回传可以消除这种歧义。
type ConversationResolver struct {
	store  *IncidenceService
	cfg    config.ResolverConfig
	logger *logrus.Logger
}

// NewConversationResolver 创建解析器
func NewConversationResolver(store *IncidenceService, cfg config.ResolverConfig, logger *logrus.Logger) *ConversationResolver {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.UnboundWindow <= 0 {
		cfg.UnboundWindow = config.GetDefaultConfig().Resolver.UnboundWindow
	}
	if cfg.BindAttempts <= 0 {
		cfg.BindAttempts = 1
	}
	return &ConversationResolver{store: store, cfg: cfg, logger: logger}
}

// Resolve 查找或创建 Incidence，并在同一事务中追加一条 MESSAGE 时间线
func (r *ConversationResolver) Resolve(ctx context.Context, ev *ChatEvent) (*ResolveResult, error) {
	if ev == nil || ev.ConversationID == "" {
		return nil, ErrMalformedEvent
	}
	log := r.logger.WithFields(logrus.Fields{
		"conversation_id": ev.ConversationID,
		"message_id":      ev.MessageID,
	})

	var result *ResolveResult
	err := r.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st := r.store.WithTx(tx)
		res, err := r.attach(ctx, st, ev, log)
		if err != nil {
			return err
		}

		meta := map[string]interface{}{}
		if ev.MessageID != "" {
			meta["message_id"] = ev.MessageID
		}
		msg, err := st.insertTimeline(ctx, res.Incidence.ID, models.TimelineMessage, ev.Actor, ev.TimelineContent(), meta)
		if err != nil {
			return err
		}
		res.Message = msg
		result = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve conversation %s: %w", ev.ConversationID, err)
	}

	metrics.ObserveResolution(result.Strategy)
	r.store.Notify(result.Message)
	log.WithFields(logrus.Fields{
		"incidence_id": result.Incidence.ID,
		"strategy":     result.Strategy,
	}).Info("Conversation event attached to incidence")
	return result, nil
}

func (r *ConversationResolver) attach(ctx context.Context, st *IncidenceService, ev *ChatEvent, log *logrus.Entry) (*ResolveResult, error) {
	conv := ev.ConversationID

	for attempt := 1; attempt <= r.cfg.BindAttempts; attempt++ {
		// 1. 已绑定
		inc, err := st.FindByConversation(ctx, conv)
		if err != nil {
			return nil, err
		}
		if inc != nil {
			return &ResolveResult{Incidence: inc, Strategy: StrategyBound}, nil
		}

		// 2. 客户端提示
		if inc, err := r.bindHint(ctx, st, ev, log); err != nil {
			return nil, err
		} else if inc != nil {
			return &ResolveResult{Incidence: inc, Strategy: StrategyHint}, nil
		}

		// 3. 时间窗口内最新的未绑定记录
		since := st.now().Add(-r.cfg.UnboundWindow)
		cand, err := st.FindRecentUnbound(ctx, since)
		if err != nil {
			return nil, err
		}
		if cand != nil {
			ok, err := st.BindConversation(ctx, cand.ID, conv)
			if err != nil {
				log.WithError(err).Warnf("Bind to recent incidence %s failed (attempt %d)", cand.ID, attempt)
				continue
			}
			if ok {
				cand.ConversationID = &conv
				return &ResolveResult{Incidence: cand, Strategy: StrategyRecentUnbound}, nil
			}
			log.Debugf("Recent incidence %s was bound concurrently (attempt %d)", cand.ID, attempt)
			continue
		}

		// 4. 新建
		created, err := st.CreateBound(ctx, &IncidenceCreateRequest{
			UserID:        ev.UserID,
			OrderID:       ev.OrderID,
			Channel:       models.ChannelInAppChat,
			Trigger:       models.TriggerUserInitiated,
			AppScreen:     ev.AppScreen,
			CartValue:     ev.CartValue,
			GuestCount:    ev.GuestCount,
			EventType:     ev.EventType,
			FrictionScore: ev.FrictionScore,
		}, conv)
		if err != nil {
			log.WithError(err).Warnf("Create for conversation failed (attempt %d)", attempt)
			continue
		}
		return &ResolveResult{Incidence: created, Created: true, Strategy: StrategyCreated}, nil
	}
	return nil, ErrConversationBound
}

// bindHint 提示无效、不存在或已绑定其他会话时返回 nil，由后续步骤继续处理
func (r *ConversationResolver) bindHint(ctx context.Context, st *IncidenceService, ev *ChatEvent, log *logrus.Entry) (*models.Incidence, error) {
	if ev.IncidenceHint == "" {
		return nil, nil
	}
	if _, err := uuid.Parse(ev.IncidenceHint); err != nil {
		log.Warnf("Ignoring malformed incidence hint %q", ev.IncidenceHint)
		return nil, nil
	}

	inc, err := st.FindByID(ctx, ev.IncidenceHint)
	if err != nil {
		return nil, err
	}
	if inc == nil {
		log.Warnf("Incidence hint %s does not exist", ev.IncidenceHint)
		return nil, nil
	}
	if inc.ConversationID != nil {
		log.Warnf("Incidence hint %s is already bound to conversation %s", inc.ID, *inc.ConversationID)
		return nil, nil
	}

	ok, err := st.BindConversation(ctx, inc.ID, ev.ConversationID)
	if err != nil {
		log.WithError(err).Warnf("Bind to hinted incidence %s failed", inc.ID)
		return nil, nil
	}
	if !ok {
		return nil, nil
	}
	conv := ev.ConversationID
	inc.ConversationID = &conv
	return inc, nil
}
