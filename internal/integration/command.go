package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"supportdesk/internal/models"

	"github.com/google/uuid"
)

// 命令类型
const (
	CommandTicketSync = "ticket.sync"
	CommandChatSend   = "chat.send"
)

// Command 由核心流程发出、集成层异步执行的外部副作用
type Command struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	CreatedAt  time.Time          `json:"created_at"`
	TicketSync *TicketSyncPayload `json:"ticket_sync,omitempty"`
	ChatSend   *ChatSendPayload   `json:"chat_send,omitempty"`
}

// IncidenceSnapshot 同步工单所需的 Incidence 字段
type IncidenceSnapshot struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	ConversationID string  `json:"conversation_id"`
	Stage          string  `json:"stage"`
	AppScreen      string  `json:"app_screen"`
	CartValue      float64 `json:"cart_value"`
	GuestCount     int     `json:"guest_count"`
	EventType      string  `json:"event_type"`
	FrictionScore  int     `json:"friction_score"`
}

// SnapshotOf 从 Incidence 生成快照
func SnapshotOf(inc *models.Incidence) IncidenceSnapshot {
	s := IncidenceSnapshot{
		ID:            inc.ID,
		UserID:        inc.UserID,
		Stage:         string(inc.Stage),
		AppScreen:     inc.AppScreen,
		CartValue:     inc.CartValue,
		GuestCount:    inc.GuestCount,
		EventType:     inc.EventType,
		FrictionScore: inc.FrictionScore,
	}
	if inc.ConversationID != nil {
		s.ConversationID = *inc.ConversationID
	}
	return s
}

// TicketSyncPayload ticket.sync 参数
type TicketSyncPayload struct {
	Incidence       IncidenceSnapshot `json:"incidence"`
	FreshchatUserID string            `json:"freshchat_user_id,omitempty"`
	FirstMessage    string            `json:"first_message,omitempty"`
	// TicketID 非零时直接更新该工单，不再按邮箱查找
	TicketID int64 `json:"ticket_id,omitempty"`
}

// ChatSendPayload chat.send 参数
type ChatSendPayload struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
	ActorType      string `json:"actor_type"`
	ActorID        string `json:"actor_id,omitempty"`
}

// NewTicketSyncCommand 创建 ticket.sync
func NewTicketSyncCommand(p TicketSyncPayload) Command {
	return Command{ID: uuid.NewString(), Type: CommandTicketSync, CreatedAt: time.Now().UTC(), TicketSync: &p}
}

// NewChatSendCommand 创建 chat.send
func NewChatSendCommand(p ChatSendPayload) Command {
	return Command{ID: uuid.NewString(), Type: CommandChatSend, CreatedAt: time.Now().UTC(), ChatSend: &p}
}

// Validate 检查命令与载荷是否匹配
func (c Command) Validate() error {
	switch c.Type {
	case CommandTicketSync:
		if c.TicketSync == nil {
			return fmt.Errorf("%s command without payload", c.Type)
		}
	case CommandChatSend:
		if c.ChatSend == nil || c.ChatSend.ConversationID == "" {
			return fmt.Errorf("%s command without conversation id", c.Type)
		}
	default:
		return fmt.Errorf("unknown command type %q", c.Type)
	}
	return nil
}

func (c Command) encode() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal command: %w", err)
	}
	return string(b), nil
}

func decodeCommand(raw string) (Command, error) {
	var c Command
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return Command{}, fmt.Errorf("unmarshal command: %w", err)
	}
	return c, nil
}

// Publisher 发布命令；失败只影响副作用，不影响核心状态
type Publisher interface {
	Publish(ctx context.Context, cmd Command) error
}

// Handler 处理命令，返回 nil 表示已完成可确认
type Handler func(ctx context.Context, cmd Command) error

// Bus 命令总线
type Bus interface {
	Publisher
	// Consume 阻塞直到 ctx 取消
	Consume(ctx context.Context, handler Handler) error
	Close() error
}
