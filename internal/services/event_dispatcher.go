package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"supportdesk/internal/cache"
	"supportdesk/internal/integration"
	"supportdesk/internal/metrics"
	"supportdesk/internal/models"

	"github.com/sirupsen/logrus"
)

// webhook 处理状态
const (
	WebhookStatusOK      = "ok"
	WebhookStatusIgnored = "ignored"
	WebhookStatusError   = "error"
)

// WebhookResult webhook 处理结果，始终以 200 返回给调用方
type WebhookResult struct {
	Status      string `json:"status"`
	Action      string `json:"action,omitempty"`
	IncidenceID string `json:"incidence_id,omitempty"`
	Created     bool   `json:"created,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// OutcomeFromTags 由会话标签推导关闭结果；issue_category 取第一个标签
func OutcomeFromTags(tags []string) (models.IncidenceOutcome, models.OrderImpact, *string) {
	outcome, impact := models.OutcomeResolved, models.OrderImpactNone
	lower := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		lower[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	if _, ok := lower["order_placed"]; ok {
		outcome, impact = models.OutcomeConverted, models.OrderImpactPlaced
	} else if _, ok := lower["dropped"]; ok {
		outcome, impact = models.OutcomeDropped, models.OrderImpactLost
	} else if _, ok := lower["lost"]; ok {
		outcome, impact = models.OutcomeDropped, models.OrderImpactLost
	}

	var category *string
	if len(tags) > 0 {
		c := tags[0]
		category = &c
	}
	return outcome, impact, category
}

// MessageDeduper 按消息 ID 去重
type MessageDeduper struct {
	cache  cache.Provider
	ttl    time.Duration
	prefix string
}

// NewMessageDeduper 创建去重器
func NewMessageDeduper(p cache.Provider, ttl time.Duration) *MessageDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MessageDeduper{cache: p, ttl: ttl, prefix: "webhook_message:"}
}

// FirstSeen 首次出现返回 true；缓存异常时按首次处理
func (d *MessageDeduper) FirstSeen(ctx context.Context, messageID string) (bool, error) {
	ok, err := d.cache.SetNX(ctx, d.prefix+messageID, []byte("1"), d.ttl)
	if err != nil {
		return true, err
	}
	return ok, nil
}

// Forget 处理失败后释放去重标记，允许上游重投
func (d *MessageDeduper) Forget(ctx context.Context, messageID string) {
	_ = d.cache.Del(ctx, d.prefix+messageID)
}

// EventDispatcher 把聊天平台 webhook 动作映射到 Incidence 操作
type EventDispatcher struct {
	store     *IncidenceService
	resolver  *ConversationResolver
	dedup     *MessageDeduper
	publisher integration.Publisher
	logger    *logrus.Logger
}

// NewEventDispatcher 创建分发器；dedup 与 publisher 可以为 nil
func NewEventDispatcher(store *IncidenceService, resolver *ConversationResolver, dedup *MessageDeduper, publisher integration.Publisher, logger *logrus.Logger) *EventDispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &EventDispatcher{
		store:     store,
		resolver:  resolver,
		dedup:     dedup,
		publisher: publisher,
		logger:    logger,
	}
}

// ApplyWebhookAction 处理一次 webhook。错误只在存储失败时返回；
// 格式错误、未知会话和未知动作都返回 ignored 状态。
func (d *EventDispatcher) ApplyWebhookAction(ctx context.Context, action string, payload map[string]interface{}) (*WebhookResult, error) {
	ev := ParseChatEvent(payload)
	if action == "" {
		action = ev.Action
	}
	log := d.logger.WithFields(logrus.Fields{
		"action":          action,
		"conversation_id": ev.ConversationID,
	})

	var (
		res *WebhookResult
		err error
	)
	switch action {
	case ActionMessageCreate:
		res, err = d.handleMessage(ctx, ev, log)
	case ActionConversationAssignment:
		res, err = d.handleAssignment(ctx, ev, log)
	case ActionConversationResolution:
		res, err = d.handleResolution(ctx, ev, log)
	case ActionConversationReopen:
		res, err = d.handleReopen(ctx, ev, log)
	default:
		log.Info("Ignoring unsupported webhook action")
		res = &WebhookResult{Status: WebhookStatusIgnored, Reason: "unsupported_action"}
	}

	if err != nil {
		log.WithError(err).Error("Webhook action failed")
		res = &WebhookResult{Status: WebhookStatusError, Reason: "internal_error"}
	}
	res.Action = action
	metrics.ObserveWebhook(action, res.Status)
	return res, err
}

func (d *EventDispatcher) handleMessage(ctx context.Context, ev *ChatEvent, log *logrus.Entry) (*WebhookResult, error) {
	if ev.ConversationID == "" {
		log.Warn("Dropping message event without conversation id")
		return &WebhookResult{Status: WebhookStatusIgnored, Reason: "missing_conversation_id"}, nil
	}

	if d.dedup != nil && ev.MessageID != "" {
		first, err := d.dedup.FirstSeen(ctx, ev.MessageID)
		if err != nil {
			log.WithError(err).Warn("Message de-duplication unavailable")
		}
		if !first {
			log.WithField("message_id", ev.MessageID).Info("Skipping duplicate message delivery")
			return &WebhookResult{Status: WebhookStatusIgnored, Reason: "duplicate_message"}, nil
		}
	}

	res, err := d.resolver.Resolve(ctx, ev)
	if err != nil {
		if d.dedup != nil && ev.MessageID != "" {
			d.dedup.Forget(ctx, ev.MessageID)
		}
		return nil, err
	}

	if ev.Actor == models.ActorUser {
		d.publish(ctx, integration.NewTicketSyncCommand(integration.TicketSyncPayload{
			Incidence:       integration.SnapshotOf(res.Incidence),
			FreshchatUserID: ev.FreshchatUserID,
			FirstMessage:    ev.MessageText,
		}), log)
	}

	return &WebhookResult{
		Status:      WebhookStatusOK,
		IncidenceID: res.Incidence.ID,
		Created:     res.Created,
	}, nil
}

func (d *EventDispatcher) handleAssignment(ctx context.Context, ev *ChatEvent, log *logrus.Entry) (*WebhookResult, error) {
	inc, res := d.lookup(ctx, ev, log)
	if res != nil {
		return res, nil
	}
	if inc == nil {
		return nil, errLookupFailed
	}
	agentID := ev.AgentID
	if agentID == "" {
		agentID = ev.AgentName
	}
	if agentID == "" {
		log.Warn("Assignment event without agent")
		return &WebhookResult{Status: WebhookStatusIgnored, Reason: "missing_agent"}, nil
	}

	if _, err := d.store.Assign(ctx, inc.ID, &AssignRequest{AgentID: agentID, AgentName: ev.AgentName}); err != nil {
		return nil, err
	}
	return &WebhookResult{Status: WebhookStatusOK, IncidenceID: inc.ID}, nil
}

func (d *EventDispatcher) handleResolution(ctx context.Context, ev *ChatEvent, log *logrus.Entry) (*WebhookResult, error) {
	inc, res := d.lookup(ctx, ev, log)
	if res != nil {
		return res, nil
	}
	if inc == nil {
		return nil, errLookupFailed
	}

	outcome, impact, category := OutcomeFromTags(ev.Tags)
	meta := map[string]interface{}{}
	if len(ev.Tags) > 0 {
		meta["tags"] = ev.Tags
	}
	_, err := d.store.Close(ctx, inc.ID, &CloseRequest{
		Outcome:       outcome,
		OrderImpact:   impact,
		IssueCategory: category,
		Metadata:      meta,
	})
	if errors.Is(err, ErrIncidenceAlreadyClosed) {
		log.WithField("incidence_id", inc.ID).Info("Incidence already closed, ignoring resolution")
		return &WebhookResult{Status: WebhookStatusIgnored, IncidenceID: inc.ID, Reason: "already_closed"}, nil
	}
	if err != nil {
		return nil, err
	}
	return &WebhookResult{Status: WebhookStatusOK, IncidenceID: inc.ID}, nil
}

func (d *EventDispatcher) handleReopen(ctx context.Context, ev *ChatEvent, log *logrus.Entry) (*WebhookResult, error) {
	inc, res := d.lookup(ctx, ev, log)
	if res != nil {
		return res, nil
	}
	if inc == nil {
		return nil, errLookupFailed
	}

	_, err := d.store.Reopen(ctx, inc.ID)
	if errors.Is(err, ErrIncidenceNotClosed) {
		log.WithField("incidence_id", inc.ID).Info("Incidence is not closed, ignoring reopen")
		return &WebhookResult{Status: WebhookStatusIgnored, IncidenceID: inc.ID, Reason: "not_closed"}, nil
	}
	if err != nil {
		return nil, err
	}
	return &WebhookResult{Status: WebhookStatusOK, IncidenceID: inc.ID}, nil
}

var errLookupFailed = errors.New("incidence lookup failed")

// lookup 按会话查找；未知会话或缺少会话 ID 时返回 ignored 结果
func (d *EventDispatcher) lookup(ctx context.Context, ev *ChatEvent, log *logrus.Entry) (*models.Incidence, *WebhookResult) {
	if ev.ConversationID == "" {
		log.Warn("Dropping event without conversation id")
		return nil, &WebhookResult{Status: WebhookStatusIgnored, Reason: "missing_conversation_id"}
	}
	inc, err := d.store.FindByConversation(ctx, ev.ConversationID)
	if err != nil {
		log.WithError(err).Error("Failed to look up incidence")
		return nil, nil
	}
	if inc == nil {
		log.Info("No incidence bound to conversation, ignoring event")
		return nil, &WebhookResult{Status: WebhookStatusIgnored, Reason: "unknown_conversation"}
	}
	return inc, nil
}

// publish 外部副作用失败只记录日志
func (d *EventDispatcher) publish(ctx context.Context, cmd integration.Command, log *logrus.Entry) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(ctx, cmd); err != nil {
		log.WithError(err).WithField("command_type", cmd.Type).Warn("Failed to publish integration command")
	}
}

var htmlTag = regexp.MustCompile(`<[^<]+?>`)

// DeskReply Freshdesk 坐席回复 webhook 载荷
type DeskReply struct {
	ConversationID string `json:"freshchat_conversation_id"`
	Message        string `json:"message"`
	AgentName      string `json:"agent_name"`
	TicketID       int64  `json:"ticket_id"`
}

// ParseDeskReply 解析 Freshdesk webhook；会话 ID 也接受 conversation_id
func ParseDeskReply(payload map[string]interface{}) *DeskReply {
	reply := &DeskReply{
		ConversationID: firstString(payload["freshchat_conversation_id"], payload["conversation_id"]),
		Message:        firstString(payload["message"]),
		AgentName:      firstString(payload["agent_name"]),
	}
	if id, err := strconv.ParseInt(firstString(payload["ticket_id"]), 10, 64); err == nil {
		reply.TicketID = id
	}
	return reply
}

// RelayDeskReply 去掉 HTML 后以 "[坐席]: 内容" 的形式转发到聊天会话
func (d *EventDispatcher) RelayDeskReply(ctx context.Context, reply *DeskReply) *WebhookResult {
	log := d.logger.WithFields(logrus.Fields{
		"conversation_id": reply.ConversationID,
		"ticket_id":       reply.TicketID,
	})
	text := strings.TrimSpace(htmlTag.ReplaceAllString(reply.Message, ""))
	if reply.ConversationID == "" || text == "" {
		log.Warn("Freshdesk reply without conversation id or message")
		metrics.ObserveWebhook("desk_reply", WebhookStatusIgnored)
		return &WebhookResult{Status: WebhookStatusIgnored, Reason: "missing_data"}
	}
	agent := reply.AgentName
	if agent == "" {
		agent = "Support Agent"
	}
	if d.publisher == nil {
		metrics.ObserveWebhook("desk_reply", WebhookStatusError)
		return &WebhookResult{Status: WebhookStatusError, Reason: "integration_disabled"}
	}

	cmd := integration.NewChatSendCommand(integration.ChatSendPayload{
		ConversationID: reply.ConversationID,
		Text:           fmt.Sprintf("[%s]: %s", agent, text),
		ActorType:      "system",
	})
	if err := d.publisher.Publish(ctx, cmd); err != nil {
		log.WithError(err).Error("Failed to queue Freshdesk reply")
		metrics.ObserveWebhook("desk_reply", WebhookStatusError)
		return &WebhookResult{Status: WebhookStatusError, Reason: "queue_unavailable"}
	}
	log.Info("Queued Freshdesk reply for chat relay")
	metrics.ObserveWebhook("desk_reply", WebhookStatusOK)
	return &WebhookResult{Status: WebhookStatusOK}
}
