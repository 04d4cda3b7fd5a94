package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"supportdesk/internal/metrics"
	"supportdesk/pkg/freshchat"
	"supportdesk/pkg/freshdesk"

	"github.com/sirupsen/logrus"
)

// ErrUpstreamDisabled 对应上游未配置
var ErrUpstreamDisabled = errors.New("upstream integration disabled")

// SyncResult 工单同步结果
type SyncResult struct {
	TicketID int64  `json:"ticket_id"`
	Created  bool   `json:"created"`
	Email    string `json:"email"`
}

// Worker 执行 ticket.sync 与 chat.send
type Worker struct {
	chat           freshchat.Interface
	desk           freshdesk.Interface
	chatBreaker    *Breaker
	deskBreaker    *Breaker
	fallbackDomain string
	helpThreshold  int
	logger         *logrus.Logger
}

// WorkerOptions 构造参数；Chat 或 Desk 为 nil 表示该上游未启用
type WorkerOptions struct {
	Chat                freshchat.Interface
	Desk                freshdesk.Interface
	ChatBreaker         *Breaker
	DeskBreaker         *Breaker
	FallbackEmailDomain string
	HelpThreshold       int
	Logger              *logrus.Logger
}

// NewWorker 创建 Worker
func NewWorker(opts WorkerOptions) *Worker {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.FallbackEmailDomain == "" {
		opts.FallbackEmailDomain = "customer.craftmyplate.com"
	}
	w := &Worker{
		chat:           opts.Chat,
		desk:           opts.Desk,
		chatBreaker:    opts.ChatBreaker,
		deskBreaker:    opts.DeskBreaker,
		fallbackDomain: opts.FallbackEmailDomain,
		helpThreshold:  opts.HelpThreshold,
		logger:         opts.Logger,
	}
	if w.chatBreaker == nil {
		w.chatBreaker = NewBreaker("freshchat", disabledBreaker)
	}
	if w.deskBreaker == nil {
		w.deskBreaker = NewBreaker("freshdesk", disabledBreaker)
	}
	return w
}

// Breakers 上游熔断器（用于健康检查）
func (w *Worker) Breakers() []*Breaker {
	return []*Breaker{w.chatBreaker, w.deskBreaker}
}

// Run 从总线消费直到 ctx 取消
func (w *Worker) Run(ctx context.Context, bus Bus) error {
	err := bus.Consume(ctx, w.Handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handle 处理单条命令
func (w *Worker) Handle(ctx context.Context, cmd Command) error {
	log := w.logger.WithFields(logrus.Fields{
		"command_id":   cmd.ID,
		"command_type": cmd.Type,
	})

	var err error
	switch cmd.Type {
	case CommandTicketSync:
		if cmd.TicketSync == nil {
			err = fmt.Errorf("missing ticket.sync payload")
			break
		}
		var res *SyncResult
		res, err = w.SyncTicket(ctx, *cmd.TicketSync)
		if err == nil {
			log.WithFields(logrus.Fields{
				"incidence_id": cmd.TicketSync.Incidence.ID,
				"ticket_id":    res.TicketID,
				"created":      res.Created,
			}).Info("Ticket synced")
		}
	case CommandChatSend:
		if cmd.ChatSend == nil {
			err = fmt.Errorf("missing chat.send payload")
			break
		}
		_, err = w.SendChat(ctx, *cmd.ChatSend)
		if err == nil {
			log.WithField("conversation_id", cmd.ChatSend.ConversationID).Info("Chat message relayed")
		}
	default:
		err = fmt.Errorf("unknown command type %q", cmd.Type)
	}

	switch {
	case errors.Is(err, ErrUpstreamDisabled):
		// 未配置的上游不需要重试
		metrics.ObserveIntegrationCommand(cmd.Type, metrics.ResultIgnored)
		log.Debug("Upstream disabled, command skipped")
		return nil
	case err != nil:
		metrics.ObserveIntegrationCommand(cmd.Type, metrics.ResultError)
		return err
	}
	metrics.ObserveIntegrationCommand(cmd.Type, metrics.ResultOK)
	return nil
}

// SendChat 通过 Freshchat 发送消息
func (w *Worker) SendChat(ctx context.Context, p ChatSendPayload) (*freshchat.Message, error) {
	if w.chat == nil {
		return nil, ErrUpstreamDisabled
	}
	var msg *freshchat.Message
	err := w.chatBreaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		msg, err = w.chat.SendMessage(ctx, p.ConversationID, p.Text, p.ActorType, p.ActorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// SyncTicket 查找用户邮箱，更新已有打开工单或新建工单
func (w *Worker) SyncTicket(ctx context.Context, p TicketSyncPayload) (*SyncResult, error) {
	if w.desk == nil {
		return nil, ErrUpstreamDisabled
	}
	inc := p.Incidence
	email := w.lookupEmail(ctx, p.FreshchatUserID, inc.UserID)
	fields := freshdesk.CustomFields{
		FrictionScore:  inc.FrictionScore,
		CartValue:      int(inc.CartValue),
		OrderStage:     inc.Stage,
		GuestCount:     inc.GuestCount,
		ConversationID: inc.ConversationID,
	}
	if fields.OrderStage == "" {
		fields.OrderStage = "unknown"
	}

	result := &SyncResult{Email: email, TicketID: p.TicketID}
	err := w.deskBreaker.Execute(ctx, func(ctx context.Context) error {
		if result.TicketID == 0 {
			existing, err := w.desk.SearchOpenTicketByEmail(ctx, email)
			if err != nil {
				return err
			}
			if existing != nil {
				result.TicketID = existing.ID
			}
		}
		if result.TicketID != 0 {
			return w.desk.UpdateTicketCustomFields(ctx, result.TicketID, fields)
		}

		priority := freshdesk.PriorityMedium
		if inc.FrictionScore >= w.helpThreshold {
			priority = freshdesk.PriorityHigh
		}
		ticket, err := w.desk.CreateTicket(ctx, &freshdesk.CreateTicketRequest{
			Email:        email,
			Subject:      ticketSubject(inc),
			Description:  ticketDescription(inc, p.FirstMessage),
			Status:       freshdesk.StatusOpen,
			Priority:     priority,
			Source:       freshdesk.SourceChat,
			CustomFields: fields,
		})
		if err != nil {
			return err
		}
		result.TicketID = ticket.ID
		result.Created = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ticket sync for incidence %s: %w", inc.ID, err)
	}
	return result, nil
}

// lookupEmail Freshchat 查不到邮箱时使用 <user_id>@<fallback>
func (w *Worker) lookupEmail(ctx context.Context, freshchatUserID, userID string) string {
	if freshchatUserID != "" && w.chat != nil {
		var user *freshchat.User
		err := w.chatBreaker.Execute(ctx, func(ctx context.Context) error {
			var err error
			user, err = w.chat.GetUser(ctx, freshchatUserID)
			return err
		})
		if err == nil && user != nil && user.Email != "" {
			return user.Email
		}
		if err != nil {
			w.logger.WithError(err).Warnf("Freshchat user lookup failed for %s, using fallback email", freshchatUserID)
		}
	}
	if userID == "" {
		userID = "unknown"
	}
	return fmt.Sprintf("%s@%s", userID, w.fallbackDomain)
}

func ticketSubject(inc IncidenceSnapshot) string {
	event := inc.EventType
	if event == "" {
		event = "General"
	}
	return fmt.Sprintf("Support Request - %s Order", event)
}

func ticketDescription(inc IncidenceSnapshot, firstMessage string) string {
	orDefault := func(v, def string) string {
		if strings.TrimSpace(v) == "" {
			return def
		}
		return v
	}
	guests := "Not specified"
	if inc.GuestCount > 0 {
		guests = fmt.Sprintf("%d", inc.GuestCount)
	}
	msg := firstMessage
	if len([]rune(msg)) > 200 {
		msg = string([]rune(msg)[:200])
	}

	var sb strings.Builder
	sb.WriteString("Customer has initiated a support chat.\n\n")
	sb.WriteString("**Customer Context:**\n")
	fmt.Fprintf(&sb, "- Cart Value: ₹%s\n", formatRupees(inc.CartValue))
	fmt.Fprintf(&sb, "- Guest Count: %s\n", guests)
	fmt.Fprintf(&sb, "- Event Type: %s\n", orDefault(inc.EventType, "Not specified"))
	fmt.Fprintf(&sb, "- Friction Score: %d\n", inc.FrictionScore)
	fmt.Fprintf(&sb, "- Current Screen: %s\n\n", orDefault(inc.AppScreen, "Unknown"))
	fmt.Fprintf(&sb, "**First Message:** %s\n\n", orDefault(msg, "No message"))
	sb.WriteString("[Auto-created from Freshchat conversation]")
	return sb.String()
}

// formatRupees 25000.4 -> "25,000"
func formatRupees(v float64) string {
	n := int64(v + 0.5)
	if v < 0 {
		n = 0
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var out []byte
	pre := len(s) % 3
	if pre > 0 {
		out = append(out, s[:pre]...)
	}
	for i := pre; i < len(s); i += 3 {
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, s[i:i+3]...)
	}
	return string(out)
}
