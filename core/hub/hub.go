package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"GuildFM/logger"
	"GuildFM/model"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	sendBufferSize = 64
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 1024
)

// ClientMessage 客户端发来的消息，目前只有心跳
type ClientMessage struct {
	Type string `json:"type"`
}

// Client 面板 WebSocket 客户端
type Client struct {
	ID      string
	GuildID string // 为空表示订阅所有服务器
	Hub     *Hub
	Conn    *websocket.Conn
	Send    chan []byte
}

// NewClient 创建客户端，guildID 为空时接收所有服务器的事件
func NewClient(h *Hub, conn *websocket.Conn, guildID string) *Client {
	return &Client{
		ID:      uuid.New().String(),
		GuildID: guildID,
		Hub:     h,
		Conn:    conn,
		Send:    make(chan []byte, sendBufferSize),
	}
}

// Hub 事件广播中心
type Hub struct {
	// guildID -> 客户端集合，"" 对应订阅全部的客户端
	guilds map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *model.Event

	mu   sync.RWMutex
	done chan struct{}
	once sync.Once
}

// New 创建 Hub，需要调用 Run 启动
func New() *Hub {
	return &Hub{
		guilds:     make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *model.Event, 256),
		done:       make(chan struct{}),
	}
}

// Run 主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeClient(client)
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.deliver(event)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub 并关闭所有客户端
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.guilds[client.GuildID] == nil {
		h.guilds[client.GuildID] = make(map[*Client]bool)
	}
	h.guilds[client.GuildID][client] = true

	logger.Info("dashboard client registered",
		logger.String("client", client.ID),
		logger.Guild(client.GuildID))
}

// removeClient 需要持有锁
func (h *Hub) removeClient(client *Client) {
	clients, ok := h.guilds[client.GuildID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.guilds, client.GuildID)
	}

	logger.Info("dashboard client unregistered",
		logger.String("client", client.ID),
		logger.Guild(client.GuildID))
}

// deliver 发给订阅了该服务器的客户端和订阅全部的客户端
func (h *Hub) deliver(event *model.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Warn("failed to encode event", logger.String("type", string(event.Type)), logger.ErrorField(err))
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.guilds[event.GuildID])+len(h.guilds[""]))
	for client := range h.guilds[event.GuildID] {
		targets = append(targets, client)
	}
	if event.GuildID != "" {
		for client := range h.guilds[""] {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	var slow []*Client
	for _, client := range targets {
		select {
		case client.Send <- data:
		default:
			// 发送缓冲区满，断开客户端
			slow = append(slow, client)
		}
	}
	if len(slow) > 0 {
		h.mu.Lock()
		for _, client := range slow {
			h.removeClient(client)
		}
		h.mu.Unlock()
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.guilds {
		for client := range clients {
			close(client.Send)
		}
	}
	h.guilds = make(map[string]map[*Client]bool)
}

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish 广播事件，不会阻塞调用方。缓冲区满时丢弃事件。
func (h *Hub) Publish(event *model.Event) {
	if event == nil {
		return
	}
	select {
	case h.broadcast <- event:
	case <-h.done:
	default:
		logger.Warn("event hub backlog full, dropping event",
			logger.String("type", string(event.Type)),
			logger.Guild(event.GuildID))
	}
}

// ClientCount 某个服务器的订阅数量，"" 表示订阅全部的客户端
func (h *Hub) ClientCount(guildID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.guilds[guildID])
}

// ========== Client 方法 ==========

// ReadPump 读取循环，只处理心跳。连接断开后注销客户端。
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", logger.String("client", c.ID), logger.ErrorField(err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			c.Conn.SetReadDeadline(time.Now().Add(pongWait))
			select {
			case c.Send <- []byte(`{"type":"pong"}`):
			default:
			}
		}
	}
}

// WritePump 写入循环，Send 关闭后发送关闭帧并退出
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
