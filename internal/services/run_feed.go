package services

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"kanbo/internal/models"
)

// RunFeedMessage 推送给前端的运行状态帧
type RunFeedMessage struct {
	Type         string      `json:"type"`
	AutomationID string      `json:"automation_id"`
	Data         interface{} `json:"data"`
	Timestamp    time.Time   `json:"timestamp"`
}

type runFeedClient struct {
	ID           string
	AutomationID string // 为空表示订阅全部
	Conn         *websocket.Conn
	Send         chan RunFeedMessage
	Hub          *RunFeedHub
}

// RunFeedHub pushes automation run transitions to connected websocket
// clients. It satisfies the executor's notifier contract; the ledger tables
// remain the source of truth and the feed is best-effort.
type RunFeedHub struct {
	clients    map[string]*runFeedClient
	broadcast  chan RunFeedMessage
	register   chan *runFeedClient
	unregister chan *runFeedClient
	mutex      sync.RWMutex
	logger     *logrus.Logger
}

var runFeedUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 生产环境需要验证源
	},
}

func NewRunFeedHub(logger *logrus.Logger) *RunFeedHub {
	if logger == nil {
		logger = logrus.New()
	}
	return &RunFeedHub{
		clients:    make(map[string]*runFeedClient),
		broadcast:  make(chan RunFeedMessage, 64),
		register:   make(chan *runFeedClient),
		unregister: make(chan *runFeedClient),
		logger:     logger,
	}
}

func (h *RunFeedHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client.ID] = client
			h.mutex.Unlock()
			h.logger.Infof("Run feed client %s connected", client.ID)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Send)
				h.logger.Infof("Run feed client %s disconnected", client.ID)
			}
			h.mutex.Unlock()

		case message := <-h.broadcast:
			h.mutex.Lock()
			for _, client := range h.clients {
				if client.AutomationID != "" && client.AutomationID != message.AutomationID {
					continue
				}
				select {
				case client.Send <- message:
				default:
					close(client.Send)
					delete(h.clients, client.ID)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// NotifyRun 由执行器回调；丢帧不影响执行
func (h *RunFeedHub) NotifyRun(run *models.AutomationRun) {
	if run == nil {
		return
	}
	msg := RunFeedMessage{
		Type:         "run." + run.Status,
		AutomationID: run.AutomationID.String(),
		Data:         run,
		Timestamp:    time.Now(),
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Run feed broadcast buffer full, dropping frame")
	}
}

// HandleWebSocket 升级连接；可选 query 参数 automation_id 过滤订阅
func (h *RunFeedHub) HandleWebSocket(c *gin.Context) {
	conn, err := runFeedUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed:", err)
		return
	}

	client := &runFeedClient{
		ID:           fmt.Sprintf("client_%d", time.Now().UnixNano()),
		AutomationID: c.Query("automation_id"),
		Conn:         conn,
		Send:         make(chan RunFeedMessage, 256),
		Hub:          h,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump 只用于探活；客户端到服务端不承载业务消息
func (c *runFeedClient) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Errorf("WebSocket error: %v", err)
			}
			break
		}
	}
}

func (c *runFeedClient) writePump() {
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
				c.Hub.logger.Error("WriteJSON error:", err)
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

func (h *RunFeedHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
