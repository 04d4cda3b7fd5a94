package freshchat

import "time"

// Config Freshchat 客户端配置
type Config struct {
	BaseURL    string        `json:"base_url"`
	APIKey     string        `json:"api_key"`
	Timeout    time.Duration `json:"timeout"`
	MaxRetries int           `json:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "https://api.freshchat.com/v2",
		Timeout:    30 * time.Second,
		MaxRetries: 2,
		RetryDelay: 500 * time.Millisecond,
	}
}

// 消息发送方类型
const (
	ActorAgent  = "agent"
	ActorSystem = "system"
	ActorUser   = "user"
)

// TextPart 文本片段
type TextPart struct {
	Content string `json:"content"`
}

// MessagePart 消息片段
type MessagePart struct {
	Text *TextPart `json:"text,omitempty"`
}

// SendMessageRequest 发送消息
type SendMessageRequest struct {
	MessageParts []MessagePart `json:"message_parts"`
	ActorType    string        `json:"actor_type"`
	ActorID      string        `json:"actor_id,omitempty"`
}

// Message 会话消息
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	ActorType      string        `json:"actor_type"`
	ActorID        string        `json:"actor_id"`
	MessageParts   []MessagePart `json:"message_parts"`
	CreatedTime    string        `json:"created_time"`
}

// Conversation 会话
type Conversation struct {
	ConversationID  string `json:"conversation_id"`
	Status          string `json:"status"`
	ChannelID       string `json:"channel_id"`
	AssignedAgentID string `json:"assigned_agent_id"`
	AssignedGroupID string `json:"assigned_group_id"`
}

// User 用户
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
}
