package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IncidenceStage 订单阶段
type IncidenceStage string

const (
	StagePreOrder  IncidenceStage = "PRE_ORDER"
	StagePostOrder IncidenceStage = "POST_ORDER"
)

// IncidenceChannel 支持渠道
type IncidenceChannel string

const (
	ChannelInAppChat IncidenceChannel = "IN_APP_CHAT"
	ChannelCall      IncidenceChannel = "CALL"
	ChannelWhatsApp  IncidenceChannel = "WHATSAPP"
)

// IncidenceTrigger 发起方
type IncidenceTrigger string

const (
	TriggerUserInitiated   IncidenceTrigger = "USER_INITIATED"
	TriggerSystemInitiated IncidenceTrigger = "SYSTEM_INITIATED"
)

// IncidenceOutcome 处理结果
type IncidenceOutcome string

const (
	OutcomeInProgress IncidenceOutcome = "IN_PROGRESS"
	OutcomeResolved   IncidenceOutcome = "RESOLVED"
	OutcomeDropped    IncidenceOutcome = "DROPPED"
	OutcomeConverted  IncidenceOutcome = "CONVERTED"
)

// IsTerminal 是否为终态
func (o IncidenceOutcome) IsTerminal() bool {
	switch o {
	case OutcomeResolved, OutcomeDropped, OutcomeConverted:
		return true
	}
	return false
}

// OrderImpact 对订单的影响
type OrderImpact string

const (
	OrderImpactPlaced   OrderImpact = "PLACED"
	OrderImpactModified OrderImpact = "MODIFIED"
	OrderImpactLost     OrderImpact = "LOST"
	OrderImpactNone     OrderImpact = "NONE"
)

// TimelineEventType 时间线事件类型
type TimelineEventType string

const (
	TimelineMessage       TimelineEventType = "MESSAGE"
	TimelineAgentAssigned TimelineEventType = "AGENT_ASSIGNED"
	TimelineResolved      TimelineEventType = "RESOLVED"
	TimelineReopened      TimelineEventType = "REOPENED"
	TimelineCallRequested TimelineEventType = "CALL_REQUESTED"
)

// TimelineActor 时间线事件的执行者
type TimelineActor string

const (
	ActorUser   TimelineActor = "USER"
	ActorAgent  TimelineActor = "AGENT"
	ActorSystem TimelineActor = "SYSTEM"
)

// ParseTimelineActor 解析执行者，未知值返回 false
func ParseTimelineActor(s string) (TimelineActor, bool) {
	switch a := TimelineActor(strings.ToUpper(strings.TrimSpace(s))); a {
	case ActorUser, ActorAgent, ActorSystem:
		return a, true
	}
	return "", false
}

// Incidence 一次客服交互记录
type Incidence struct {
	ID             string  `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID         string  `gorm:"size:100;not null;index" json:"user_id"`
	OrderID        *string `gorm:"size:100;index" json:"order_id,omitempty"`
	ConversationID *string `gorm:"size:100;uniqueIndex" json:"conversation_id,omitempty"`

	// 创建后不可变的分类
	Stage   IncidenceStage   `gorm:"size:20;not null" json:"stage"`
	Channel IncidenceChannel `gorm:"size:20;not null" json:"channel"`
	Trigger IncidenceTrigger `gorm:"size:20;not null" json:"trigger"`

	// 创建时的上下文快照
	AppScreen     string  `gorm:"size:100" json:"app_screen,omitempty"`
	CartValue     float64 `json:"cart_value"`
	GuestCount    int     `json:"guest_count"`
	EventType     string  `gorm:"size:50" json:"event_type,omitempty"`
	FrictionScore int     `json:"friction_score"`

	// 处理状态
	Outcome        IncidenceOutcome `gorm:"size:20;not null;default:'IN_PROGRESS';index" json:"outcome"`
	IssueCategory  *string          `gorm:"size:100" json:"issue_category,omitempty"`
	RootCause      *string          `gorm:"type:text" json:"root_cause,omitempty"`
	ResolutionType *string          `gorm:"size:50" json:"resolution_type,omitempty"`
	OrderImpact    OrderImpact      `gorm:"size:20;default:'NONE'" json:"order_impact"`
	AgentID        *string          `gorm:"size:100" json:"agent_id,omitempty"`
	UserPhone      *string          `gorm:"size:30" json:"user_phone,omitempty"`
	CallNotes      *string          `gorm:"type:text" json:"call_notes,omitempty"`

	CreatedAt            time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	ResolvedAt           *time.Time `json:"resolved_at,omitempty"`
	TimeToResolveSeconds *int64     `json:"time_to_resolve_seconds,omitempty"`

	Timeline []IncidenceTimeline `gorm:"foreignKey:IncidenceID;constraint:OnDelete:CASCADE" json:"timeline,omitempty"`
}

// BeforeCreate 生成 ID 并设置初始状态
func (i *Incidence) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Outcome == "" {
		i.Outcome = OutcomeInProgress
	}
	if i.OrderImpact == "" {
		i.OrderImpact = OrderImpactNone
	}
	return nil
}

// IncidenceTimeline 只追加的时间线事件
type IncidenceTimeline struct {
	ID          uint                   `gorm:"primaryKey" json:"id"`
	IncidenceID string                 `gorm:"type:varchar(36);not null;index" json:"incidence_id"`
	EventType   TimelineEventType      `gorm:"size:30;not null" json:"event_type"`
	Actor       TimelineActor          `gorm:"size:20;not null" json:"actor"`
	Content     string                 `gorm:"type:text" json:"content"`
	Metadata    map[string]interface{} `gorm:"serializer:json" json:"metadata,omitempty"`
	CreatedAt   time.Time              `gorm:"index" json:"created_at"`
}

// FrictionSignal 行为埋点日志（只写）
type FrictionSignal struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     string    `gorm:"size:100;not null;index" json:"user_id"`
	SessionID  string    `gorm:"size:100;index" json:"session_id"`
	SignalType string    `gorm:"size:50;not null" json:"signal_type"`
	Value      *float64  `json:"value,omitempty"`
	Screen     string    `gorm:"size:100" json:"screen,omitempty"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

// AllModels 返回需要迁移的模型
func AllModels() []interface{} {
	return []interface{}{&Incidence{}, &IncidenceTimeline{}, &FrictionSignal{}}
}
