package freshdesk

import "time"

// Config Freshdesk 客户端配置；BaseURL 为空时由 Domain 推导
type Config struct {
	Domain     string        `json:"domain"`
	BaseURL    string        `json:"base_url"`
	APIKey     string        `json:"api_key"`
	Timeout    time.Duration `json:"timeout"`
	MaxRetries int           `json:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Timeout:    30 * time.Second,
		MaxRetries: 2,
		RetryDelay: 500 * time.Millisecond,
	}
}

// 工单状态、来源与优先级
const (
	StatusOpen = 2

	SourceEmail = 1
	SourceChat  = 7

	PriorityMedium = 2
	PriorityHigh   = 3
)

// CustomFields 同步到工单的自定义字段
type CustomFields struct {
	FrictionScore  int    `json:"cf_friction_score"`
	CartValue      int    `json:"cf_cart_value"`
	OrderStage     string `json:"cf_order_stage"`
	GuestCount     int    `json:"cf_guest_count"`
	ConversationID string `json:"cf_freshchat_conversation_id,omitempty"`
}

// Ticket 工单
type Ticket struct {
	ID           int64                  `json:"id"`
	Subject      string                 `json:"subject"`
	Status       int                    `json:"status"`
	Priority     int                    `json:"priority"`
	Source       int                    `json:"source"`
	RequesterID  int64                  `json:"requester_id"`
	CustomFields map[string]interface{} `json:"custom_fields"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// CreateTicketRequest 创建工单
type CreateTicketRequest struct {
	Email        string       `json:"email"`
	Subject      string       `json:"subject"`
	Description  string       `json:"description"`
	Status       int          `json:"status"`
	Priority     int          `json:"priority"`
	Source       int          `json:"source"`
	CustomFields CustomFields `json:"custom_fields"`
}

type updateTicketRequest struct {
	CustomFields CustomFields `json:"custom_fields"`
}

type searchResponse struct {
	Results []Ticket `json:"results"`
	Total   int      `json:"total"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Description string `json:"description"`
	Errors      []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"errors"`
}
