package services

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"supportdesk/internal/models"
)

// 聊天平台 webhook 动作
const (
	ActionMessageCreate          = "message_create"
	ActionConversationAssignment = "conversation_assignment"
	ActionConversationResolution = "conversation_resolution"
	ActionConversationReopen     = "conversation_reopen"
)

// NoMessageContent 消息正文为空时写入时间线的占位文本
const NoMessageContent = "[No message content]"

// ChatEvent 从聊天平台任意嵌套载荷中抽取的字段
type ChatEvent struct {
	Action         string
	ConversationID string
	MessageID      string
	MessageText    string
	ActorType      string
	Actor          models.TimelineActor

	// 客户端通过用户自定义属性传入的 Incidence ID
	IncidenceHint string

	UserID          string
	FreshchatUserID string
	OrderID         string
	AppScreen       string
	CartValue       float64
	GuestCount      int
	EventType       string
	FrictionScore   int

	AgentID   string
	AgentName string
	Tags      []string
}

// TimelineContent 时间线正文，空消息使用占位文本
func (e *ChatEvent) TimelineContent() string {
	if strings.TrimSpace(e.MessageText) == "" {
		return NoMessageContent
	}
	return e.MessageText
}

// ParseChatEvent 解析聊天平台载荷；缺失的字段保持零值，不返回错误
func ParseChatEvent(payload map[string]interface{}) *ChatEvent {
	ev := &ChatEvent{}
	if payload == nil {
		ev.ActorType = "user"
		ev.Actor = models.ActorUser
		ev.UserID = "unknown"
		return ev
	}

	ev.Action = firstString(payload["action"], payload["event"])

	data := payload
	if d, ok := payload["data"].(map[string]interface{}); ok {
		data = d
	}
	conversation := asMap(data["conversation"])
	message := asMap(data["message"])
	actor := asMap(data["actor"])
	user := asMap(data["user"])
	props := asMap(user["properties"])

	ev.ConversationID = firstString(
		message["conversation_id"],
		conversation["conversation_id"],
		conversation["id"],
		data["conversation_id"],
		payload["conversation_id"],
	)

	ev.MessageText = messageText(message)
	ev.MessageID = firstString(message["message_id"], message["id"])

	ev.ActorType = firstString(actor["actor_type"])
	if ev.ActorType == "" {
		ev.ActorType = "user"
	}
	ev.Actor = models.ActorAgent
	if strings.EqualFold(ev.ActorType, "user") {
		ev.Actor = models.ActorUser
	}

	ev.IncidenceHint = firstString(props["incidence_id"], props["cf_incidence_id"], user["incidence_id"])
	ev.UserID = firstString(props["user_id"], user["id"], actor["actor_id"])
	if ev.UserID == "" {
		ev.UserID = "unknown"
	}
	ev.FreshchatUserID = firstString(message["user_id"], message["actor_id"], user["actor_id"])

	ev.OrderID = firstString(props["order_id"])
	ev.AppScreen = firstString(props["cf_current_screen"])
	ev.CartValue = parseAmount(props["cf_cart_value"])
	ev.GuestCount = clampCount(parseAmount(props["cf_guest_count"]))
	ev.EventType = firstString(props["cf_event_type"])
	ev.FrictionScore = clampCount(math.Round(parseAmount(props["cf_friction_score"])))

	agent := asMap(data["assigned_agent"])
	if len(agent) == 0 {
		agent = asMap(data["agent"])
	}
	ev.AgentID = firstString(agent["id"], conversation["assigned_agent_id"])
	ev.AgentName = firstString(agent["name"])

	ev.Tags = parseTags(conversation["tags"])
	if len(ev.Tags) == 0 {
		ev.Tags = parseTags(data["tags"])
	}
	return ev
}

func messageText(message map[string]interface{}) string {
	if parts, ok := message["message_parts"].([]interface{}); ok && len(parts) > 0 {
		var sb strings.Builder
		for _, p := range parts {
			part := asMap(p)
			switch text := part["text"].(type) {
			case map[string]interface{}:
				if content, ok := text["content"].(string); ok {
					sb.WriteString(content)
				}
			case string:
				sb.WriteString(text)
			}
		}
		return sb.String()
	}
	return firstString(message["text"], message["content"])
}

// clampCount 把浮点数转换为非负整数，超出范围或非数字时返回 0
func clampCount(v float64) int {
	if math.IsNaN(v) || v <= 0 || v > math.MaxInt32 {
		return 0
	}
	return int(v)
}

func parseTags(v interface{}) []string {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	tags := make([]string, 0, len(list))
	for _, item := range list {
		switch t := item.(type) {
		case string:
			if t != "" {
				tags = append(tags, t)
			}
		case map[string]interface{}:
			if name := firstString(t["name"]); name != "" {
				tags = append(tags, name)
			}
		}
	}
	return tags
}

func asMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

// firstString 返回第一个非空值的字符串形式
func firstString(values ...interface{}) string {
	for _, v := range values {
		switch t := v.(type) {
		case nil:
			continue
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return s
			}
		case json.Number:
			return t.String()
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		case int:
			return strconv.Itoa(t)
		case int64:
			return strconv.FormatInt(t, 10)
		case fmt.Stringer:
			if s := strings.TrimSpace(t.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

// parseAmount 解析 "₹25,000" 形式的数字，失败返回 0
func parseAmount(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		s := strings.NewReplacer("₹", "", ",", "", " ", "").Replace(t)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	}
	return 0
}
