package services

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"supportdesk/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// TimelineMessage 推送给坐席控制台的消息
type TimelineMessage struct {
	Type        string                    `json:"type"`
	IncidenceID string                    `json:"incidence_id,omitempty"`
	Event       *models.IncidenceTimeline `json:"event,omitempty"`
	Timestamp   time.Time                 `json:"timestamp"`
}

// 客户端可发送的消息类型
const (
	wsTypeSubscribe = "subscribe"
	wsTypeTimeline  = "timeline"
)

// TimelineClient 一个控制台连接；IncidenceID 为空表示接收全部事件
type TimelineClient struct {
	ID   string
	Conn *websocket.Conn
	Send chan TimelineMessage
	Hub  *TimelineHub

	mu          sync.RWMutex
	incidenceID string
}

func (c *TimelineClient) subscribedTo(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.incidenceID == "" || c.incidenceID == id
}

func (c *TimelineClient) subscribe(id string) {
	c.mu.Lock()
	c.incidenceID = id
	c.mu.Unlock()
}

// TimelineHub 按 Incidence 推送时间线事件，实现 TimelineNotifier
type TimelineHub struct {
	clients    map[string]*TimelineClient
	broadcast  chan TimelineMessage
	register   chan *TimelineClient
	unregister chan *TimelineClient
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logrus.Logger
	upgrader   websocket.Upgrader
}

// NewTimelineHub 创建 hub；需要调用 Run 启动分发循环
func NewTimelineHub(logger *logrus.Logger) *TimelineHub {
	if logger == nil {
		logger = logrus.New()
	}
	return &TimelineHub{
		clients:    make(map[string]*TimelineClient),
		broadcast:  make(chan TimelineMessage, 256),
		register:   make(chan *TimelineClient),
		unregister: make(chan *TimelineClient),
		done:       make(chan struct{}),
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run 分发循环，ctx 取消后关闭所有连接
func (h *TimelineHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mutex.Lock()
			for id, client := range h.clients {
				close(client.Send)
				delete(h.clients, id)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client.ID] = client
			h.mutex.Unlock()
			h.logger.Infof("Console client %s connected", client.ID)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Send)
				h.logger.Infof("Console client %s disconnected", client.ID)
			}
			h.mutex.Unlock()

		case message := <-h.broadcast:
			h.mutex.Lock()
			for id, client := range h.clients {
				if !client.subscribedTo(message.IncidenceID) {
					continue
				}
				select {
				case client.Send <- message:
				default:
					// 消费过慢的连接直接断开
					close(client.Send)
					delete(h.clients, id)
					h.logger.Warnf("Dropping slow console client %s", id)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// NotifyTimeline 非阻塞投递；缓冲区满时丢弃并记录日志
func (h *TimelineHub) NotifyTimeline(event *models.IncidenceTimeline) {
	if event == nil {
		return
	}
	msg := TimelineMessage{
		Type:        wsTypeTimeline,
		IncidenceID: event.IncidenceID,
		Event:       event,
		Timestamp:   time.Now().UTC(),
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warnf("Timeline broadcast buffer full, dropping event for incidence %s", event.IncidenceID)
	}
}

// HandleWebSocket GET /ws/incidences?incidence_id=
func (h *TimelineHub) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &TimelineClient{
		ID:          uuid.NewString(),
		Conn:        conn,
		Send:        make(chan TimelineMessage, 64),
		Hub:         h,
		incidenceID: c.Query("incidence_id"),
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// GetClientCount 当前连接数
func (h *TimelineHub) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (c *TimelineClient) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(1024)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Errorf("WebSocket error: %v", err)
			}
			return
		}

		var msg struct {
			Type        string `json:"type"`
			IncidenceID string `json:"incidence_id"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.Hub.logger.Warnf("Invalid console message: %v", err)
			continue
		}

		switch msg.Type {
		case wsTypeSubscribe:
			c.subscribe(msg.IncidenceID)
		default:
			c.Hub.logger.Warnf("Unknown console message type: %s", msg.Type)
		}
	}
}

func (c *TimelineClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(message); err != nil {
				c.Hub.logger.Errorf("WriteJSON error: %v", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
