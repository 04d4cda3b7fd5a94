package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"supportdesk/internal/metrics"
	"supportdesk/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	// ErrIncidenceAlreadyClosed close() 只允许从 IN_PROGRESS 发起
	ErrIncidenceAlreadyClosed = errors.New("incidence already closed")
	// ErrIncidenceNotClosed reopen() 只允许从终态发起
	ErrIncidenceNotClosed = errors.New("incidence is not closed")
	// ErrInvalidOutcome close() 的目标状态必须是终态
	ErrInvalidOutcome = errors.New("invalid outcome")
	// ErrInvalidIncidence 创建参数不合法
	ErrInvalidIncidence = errors.New("invalid incidence")
)

// TimelineNotifier 时间线事件提交后的通知（例如推送到坐席控制台）
type TimelineNotifier interface {
	NotifyTimeline(event *models.IncidenceTimeline)
}

// IncidenceService 工单（Incidence）生命周期管理
type IncidenceService struct {
	db       *gorm.DB
	logger   *logrus.Logger
	notifier TimelineNotifier
	now      func() time.Time
}

// IncidenceCreateRequest 创建请求
type IncidenceCreateRequest struct {
	UserID        string                  `json:"user_id" binding:"required"`
	OrderID       string                  `json:"order_id"`
	Stage         models.IncidenceStage   `json:"stage"`
	Channel       models.IncidenceChannel `json:"channel"`
	Trigger       models.IncidenceTrigger `json:"trigger"`
	AppScreen     string                  `json:"app_screen"`
	CartValue     float64                 `json:"cart_value"`
	GuestCount    int                     `json:"guest_count"`
	EventType     string                  `json:"event_type"`
	FrictionScore int                     `json:"friction_score"`
	UserPhone     string                  `json:"user_phone"`
}

// IncidenceUpdateRequest 可变字段更新；分类和上下文快照不可修改
type IncidenceUpdateRequest struct {
	IssueCategory  *string `json:"issue_category"`
	RootCause      *string `json:"root_cause"`
	ResolutionType *string `json:"resolution_type"`
	AgentID        *string `json:"agent_id"`
	UserPhone      *string `json:"user_phone"`
	CallNotes      *string `json:"call_notes"`
}

// IncidenceListRequest 列表过滤
type IncidenceListRequest struct {
	UserID   string `form:"user_id"`
	Outcome  string `form:"outcome"`
	Page     int    `form:"page,default=1"`
	PageSize int    `form:"page_size,default=20"`
}

// CloseRequest 关闭请求
type CloseRequest struct {
	Outcome       models.IncidenceOutcome `json:"outcome" binding:"required"`
	OrderImpact   models.OrderImpact      `json:"order_impact"`
	IssueCategory *string                 `json:"issue_category"`
	// Metadata 会合并进 RESOLVED 时间线事件
	Metadata map[string]interface{} `json:"metadata"`
}

// AssignRequest 分配坐席
type AssignRequest struct {
	AgentID   string `json:"agent_id" binding:"required"`
	AgentName string `json:"agent_name"`
}

// TimelineAppendRequest 追加时间线
type TimelineAppendRequest struct {
	EventType models.TimelineEventType `json:"event_type" binding:"required"`
	Actor     models.TimelineActor     `json:"actor" binding:"required"`
	Content   string                   `json:"content"`
	Metadata  map[string]interface{}   `json:"metadata"`
}

// NewIncidenceService 创建服务
func NewIncidenceService(db *gorm.DB, logger *logrus.Logger) *IncidenceService {
	if logger == nil {
		logger = logrus.New()
	}
	return &IncidenceService{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetNotifier 设置时间线通知
func (s *IncidenceService) SetNotifier(n TimelineNotifier) {
	s.notifier = n
}

// SetClock 替换时钟（测试用）
func (s *IncidenceService) SetClock(now func() time.Time) {
	s.now = now
}

// Now 当前时间
func (s *IncidenceService) Now() time.Time {
	return s.now()
}

// WithTx 返回绑定到事务的副本；副本不发送通知，由调用方在提交后调用 Notify
func (s *IncidenceService) WithTx(tx *gorm.DB) *IncidenceService {
	cp := *s
	cp.db = tx
	cp.notifier = nil
	return &cp
}

// Notify 发送时间线通知
func (s *IncidenceService) Notify(events ...*models.IncidenceTimeline) {
	if s.notifier == nil {
		return
	}
	for _, e := range events {
		if e != nil {
			s.notifier.NotifyTimeline(e)
		}
	}
}

// Create 创建 Incidence，初始状态 IN_PROGRESS
func (s *IncidenceService) Create(ctx context.Context, req *IncidenceCreateRequest) (*models.Incidence, error) {
	inc, err := s.buildIncidence(req)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(inc).Error; err != nil {
		return nil, fmt.Errorf("failed to create incidence: %w", err)
	}
	s.logger.Infof("Created incidence %s for user %s", inc.ID, inc.UserID)
	return inc, nil
}

// CreateBound 创建时直接绑定会话 ID（会话解析器与演示数据使用）
func (s *IncidenceService) CreateBound(ctx context.Context, req *IncidenceCreateRequest, conversationID string) (*models.Incidence, error) {
	inc, err := s.buildIncidence(req)
	if err != nil {
		return nil, err
	}
	conv := conversationID
	inc.ConversationID = &conv
	// 唯一约束冲突只回滚到 SAVEPOINT
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(inc).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create incidence: %w", err)
	}
	s.logger.Infof("Created incidence %s for conversation %s", inc.ID, conversationID)
	return inc, nil
}

func (s *IncidenceService) buildIncidence(req *IncidenceCreateRequest) (*models.Incidence, error) {
	if req == nil || strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidIncidence)
	}

	stage := req.Stage
	if stage == "" {
		stage = models.StagePreOrder
		if req.OrderID != "" {
			stage = models.StagePostOrder
		}
	}
	if stage != models.StagePreOrder && stage != models.StagePostOrder {
		return nil, fmt.Errorf("%w: unknown stage %q", ErrInvalidIncidence, stage)
	}

	channel := req.Channel
	if channel == "" {
		channel = models.ChannelInAppChat
	}
	switch channel {
	case models.ChannelInAppChat, models.ChannelCall, models.ChannelWhatsApp:
	default:
		return nil, fmt.Errorf("%w: unknown channel %q", ErrInvalidIncidence, channel)
	}

	trigger := req.Trigger
	if trigger == "" {
		trigger = models.TriggerUserInitiated
	}
	if trigger != models.TriggerUserInitiated && trigger != models.TriggerSystemInitiated {
		return nil, fmt.Errorf("%w: unknown trigger %q", ErrInvalidIncidence, trigger)
	}

	now := s.now()
	inc := &models.Incidence{
		UserID:        req.UserID,
		Stage:         stage,
		Channel:       channel,
		Trigger:       trigger,
		AppScreen:     req.AppScreen,
		CartValue:     req.CartValue,
		GuestCount:    req.GuestCount,
		EventType:     req.EventType,
		FrictionScore: req.FrictionScore,
		Outcome:       models.OutcomeInProgress,
		OrderImpact:   models.OrderImpactNone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.OrderID != "" {
		orderID := req.OrderID
		inc.OrderID = &orderID
	}
	if req.UserPhone != "" {
		phone := req.UserPhone
		inc.UserPhone = &phone
	}
	return inc, nil
}

// FindByID 按 ID 查找，不存在时返回 nil, nil
func (s *IncidenceService) FindByID(ctx context.Context, id string) (*models.Incidence, error) {
	return s.findOne(ctx, "id = ?", id)
}

// FindByConversation 按会话 ID 查找，不存在时返回 nil, nil
func (s *IncidenceService) FindByConversation(ctx context.Context, conversationID string) (*models.Incidence, error) {
	if conversationID == "" {
		return nil, nil
	}
	return s.findOne(ctx, "conversation_id = ?", conversationID)
}

func (s *IncidenceService) findOne(ctx context.Context, query string, args ...interface{}) (*models.Incidence, error) {
	var inc models.Incidence
	err := s.db.WithContext(ctx).Where(query, args...).Take(&inc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load incidence: %w", err)
	}
	return &inc, nil
}

// GetWithTimeline 获取 Incidence 及其完整时间线
func (s *IncidenceService) GetWithTimeline(ctx context.Context, id string) (*models.Incidence, error) {
	var inc models.Incidence
	err := s.db.WithContext(ctx).
		Preload("Timeline", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Where("id = ?", id).
		Take(&inc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load incidence: %w", err)
	}
	return &inc, nil
}

// ListOpenWithTimeline 处理中的 Incidence（含时间线），按创建时间升序
func (s *IncidenceService) ListOpenWithTimeline(ctx context.Context, limit int) ([]models.Incidence, error) {
	if limit <= 0 {
		limit = 500
	}
	var list []models.Incidence
	if err := s.db.WithContext(ctx).
		Preload("Timeline", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Where("outcome = ?", models.OutcomeInProgress).
		Order("created_at ASC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list open incidences: %w", err)
	}
	return list, nil
}

// ListByUser 用户最近的 Incidence
func (s *IncidenceService) ListByUser(ctx context.Context, userID string, limit int) ([]models.Incidence, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var list []models.Incidence
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list incidences: %w", err)
	}
	return list, nil
}

// List 分页列表
func (s *IncidenceService) List(ctx context.Context, req *IncidenceListRequest) ([]models.Incidence, int64, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 || req.PageSize > 100 {
		req.PageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.Incidence{})
	if req.UserID != "" {
		query = query.Where("user_id = ?", req.UserID)
	}
	if req.Outcome != "" {
		query = query.Where("outcome = ?", strings.ToUpper(req.Outcome))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count incidences: %w", err)
	}

	var list []models.Incidence
	offset := (req.Page - 1) * req.PageSize
	if err := query.Order("created_at DESC").Offset(offset).Limit(req.PageSize).Find(&list).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list incidences: %w", err)
	}
	return list, total, nil
}

// Update 更新可变字段，不存在时返回 nil, nil
func (s *IncidenceService) Update(ctx context.Context, id string, req *IncidenceUpdateRequest) (*models.Incidence, error) {
	updates := make(map[string]interface{})
	if req.IssueCategory != nil {
		updates["issue_category"] = *req.IssueCategory
	}
	if req.RootCause != nil {
		updates["root_cause"] = *req.RootCause
	}
	if req.ResolutionType != nil {
		updates["resolution_type"] = *req.ResolutionType
	}
	if req.AgentID != nil {
		updates["agent_id"] = *req.AgentID
	}
	if req.UserPhone != nil {
		updates["user_phone"] = *req.UserPhone
	}
	if req.CallNotes != nil {
		updates["call_notes"] = *req.CallNotes
	}

	if len(updates) > 0 {
		updates["updated_at"] = s.now()
		res := s.db.WithContext(ctx).Model(&models.Incidence{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, fmt.Errorf("failed to update incidence: %w", res.Error)
		}
	}
	return s.FindByID(ctx, id)
}

// Delete 删除 Incidence 及其时间线
func (s *IncidenceService) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("incidence_id = ?", id).Delete(&models.IncidenceTimeline{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Incidence{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete incidence: %w", err)
	}
	return deleted, nil
}

// BindConversation 仅当 Incidence 尚未绑定会话时写入 conversation_id（比较并设置）
func (s *IncidenceService) BindConversation(ctx context.Context, id, conversationID string) (bool, error) {
	var bound bool
	// 嵌套事务使用 SAVEPOINT，唯一约束冲突不会中断外层事务
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Incidence{}).
			Where("id = ? AND conversation_id IS NULL", id).
			Updates(map[string]interface{}{
				"conversation_id": conversationID,
				"updated_at":      s.now(),
			})
		if res.Error != nil {
			return res.Error
		}
		bound = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to bind conversation: %w", err)
	}
	if bound {
		s.logger.Infof("Bound conversation %s to incidence %s", conversationID, id)
	}
	return bound, nil
}

// FindRecentUnbound 查找 since 之后创建、尚未绑定会话的最新 Incidence
func (s *IncidenceService) FindRecentUnbound(ctx context.Context, since time.Time) (*models.Incidence, error) {
	var inc models.Incidence
	err := s.db.WithContext(ctx).
		Where("conversation_id IS NULL AND created_at > ?", since).
		Order("created_at DESC, id DESC").
		Take(&inc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query unbound incidences: %w", err)
	}
	return &inc, nil
}

// Close IN_PROGRESS -> RESOLVED/DROPPED/CONVERTED，计算 time_to_resolve 并记录时间线。
// 不存在时返回 nil, nil；已关闭时返回 ErrIncidenceAlreadyClosed。
func (s *IncidenceService) Close(ctx context.Context, id string, req *CloseRequest) (*models.Incidence, error) {
	outcome := models.IncidenceOutcome(strings.ToUpper(string(req.Outcome)))
	if !outcome.IsTerminal() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOutcome, req.Outcome)
	}
	impact := models.OrderImpact(strings.ToUpper(string(req.OrderImpact)))
	switch impact {
	case "":
		impact = models.OrderImpactNone
	case models.OrderImpactPlaced, models.OrderImpactModified, models.OrderImpactLost, models.OrderImpactNone:
	default:
		return nil, fmt.Errorf("%w: unknown order impact %q", ErrInvalidOutcome, req.OrderImpact)
	}

	var (
		result *models.Incidence
		event  *models.IncidenceTimeline
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inc models.Incidence
		if err := tx.Where("id = ?", id).Take(&inc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if inc.Outcome != models.OutcomeInProgress {
			return ErrIncidenceAlreadyClosed
		}

		now := s.now()
		ttr := int64(now.Sub(inc.CreatedAt) / time.Second)
		if ttr < 0 {
			ttr = 0
		}
		updates := map[string]interface{}{
			"outcome":                 outcome,
			"order_impact":            impact,
			"resolved_at":             now,
			"time_to_resolve_seconds": ttr,
			"updated_at":              now,
		}
		if req.IssueCategory != nil {
			updates["issue_category"] = *req.IssueCategory
		}
		res := tx.Model(&models.Incidence{}).
			Where("id = ? AND outcome = ?", id, models.OutcomeInProgress).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrIncidenceAlreadyClosed
		}

		meta := map[string]interface{}{
			"outcome":      string(outcome),
			"order_impact": string(impact),
		}
		for k, v := range req.Metadata {
			meta[k] = v
		}
		ev, err := s.WithTx(tx).insertTimeline(ctx, id, models.TimelineResolved, models.ActorSystem,
			fmt.Sprintf("Conversation resolved with outcome: %s", outcome), meta)
		if err != nil {
			return err
		}
		event = ev

		if err := tx.Where("id = ?", id).Take(&inc).Error; err != nil {
			return err
		}
		result = &inc
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrIncidenceAlreadyClosed) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to close incidence: %w", err)
	}
	if result == nil {
		return nil, nil
	}

	metrics.IncIncidenceClosed(string(outcome))
	s.Notify(event)
	s.logger.Infof("Closed incidence %s with outcome %s (ttr=%ds)", id, outcome, derefInt64(result.TimeToResolveSeconds))
	return result, nil
}

// Reopen 终态 -> IN_PROGRESS；resolved_at 与 time_to_resolve 保留不变
func (s *IncidenceService) Reopen(ctx context.Context, id string) (*models.Incidence, error) {
	var (
		result *models.Incidence
		event  *models.IncidenceTimeline
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inc models.Incidence
		if err := tx.Where("id = ?", id).Take(&inc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if !inc.Outcome.IsTerminal() {
			return ErrIncidenceNotClosed
		}

		res := tx.Model(&models.Incidence{}).
			Where("id = ? AND outcome IN ?", id, []models.IncidenceOutcome{
				models.OutcomeResolved, models.OutcomeDropped, models.OutcomeConverted,
			}).
			Updates(map[string]interface{}{
				"outcome":    models.OutcomeInProgress,
				"updated_at": s.now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrIncidenceNotClosed
		}

		ev, err := s.WithTx(tx).insertTimeline(ctx, id, models.TimelineReopened, models.ActorSystem,
			"Conversation reopened", map[string]interface{}{"previous_outcome": string(inc.Outcome)})
		if err != nil {
			return err
		}
		event = ev

		inc.Outcome = models.OutcomeInProgress
		result = &inc
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrIncidenceNotClosed) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to reopen incidence: %w", err)
	}
	if result == nil {
		return nil, nil
	}

	s.Notify(event)
	s.logger.Infof("Reopened incidence %s", id)
	return result, nil
}

// Assign 记录坐席并追加 SYSTEM 时间线，不改变 outcome
func (s *IncidenceService) Assign(ctx context.Context, id string, req *AssignRequest) (*models.Incidence, error) {
	var (
		result *models.Incidence
		event  *models.IncidenceTimeline
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Incidence{}).Where("id = ?", id).Updates(map[string]interface{}{
			"agent_id":   req.AgentID,
			"updated_at": s.now(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		name := req.AgentName
		if name == "" {
			name = req.AgentID
		}
		ev, err := s.WithTx(tx).insertTimeline(ctx, id, models.TimelineAgentAssigned, models.ActorSystem,
			fmt.Sprintf("Assigned to agent: %s", name),
			map[string]interface{}{"agent_id": req.AgentID, "agent_name": req.AgentName})
		if err != nil {
			return err
		}
		event = ev

		var inc models.Incidence
		if err := tx.Where("id = ?", id).Take(&inc).Error; err != nil {
			return err
		}
		result = &inc
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to assign incidence: %w", err)
	}
	if result == nil {
		return nil, nil
	}
	s.Notify(event)
	s.logger.Infof("Assigned incidence %s to agent %s", id, req.AgentID)
	return result, nil
}

// AppendTimeline 追加时间线事件，Incidence 不存在时返回 nil, nil
func (s *IncidenceService) AppendTimeline(ctx context.Context, id string, req *TimelineAppendRequest) (*models.IncidenceTimeline, error) {
	actor, ok := models.ParseTimelineActor(string(req.Actor))
	if !ok {
		return nil, fmt.Errorf("%w: unknown actor %q", ErrInvalidIncidence, req.Actor)
	}
	eventType := models.TimelineEventType(strings.ToUpper(strings.TrimSpace(string(req.EventType))))
	if eventType == "" {
		return nil, fmt.Errorf("%w: event_type is required", ErrInvalidIncidence)
	}

	var event *models.IncidenceTimeline
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Incidence{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return nil
		}
		ev, err := s.WithTx(tx).insertTimeline(ctx, id, eventType, actor, req.Content, req.Metadata)
		if err != nil {
			return err
		}
		event = ev
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append timeline: %w", err)
	}
	s.Notify(event)
	return event, nil
}

// insertTimeline 在当前连接/事务上写入一条时间线，不做存在性检查
func (s *IncidenceService) insertTimeline(ctx context.Context, id string, eventType models.TimelineEventType, actor models.TimelineActor, content string, meta map[string]interface{}) (*models.IncidenceTimeline, error) {
	ev := &models.IncidenceTimeline{
		IncidenceID: id,
		EventType:   eventType,
		Actor:       actor,
		Content:     content,
		Metadata:    meta,
		CreatedAt:   s.now(),
	}
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return nil, fmt.Errorf("failed to insert timeline event: %w", err)
	}
	return ev, nil
}

// GetTimeline 按时间顺序返回时间线
func (s *IncidenceService) GetTimeline(ctx context.Context, id string) ([]models.IncidenceTimeline, error) {
	var events []models.IncidenceTimeline
	if err := s.db.WithContext(ctx).
		Where("incidence_id = ?", id).
		Order("created_at ASC, id ASC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to load timeline: %w", err)
	}
	return events, nil
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
