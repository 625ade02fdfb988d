package lavalink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"GuildFM/logger"
	"GuildFM/model"
)

// ErrNotReady 还没有收到 ready 消息，REST 调用无法定位会话
var ErrNotReady = errors.New("lavalink session not ready")

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// Handler 接收引擎的播放事件。回调在读取协程中执行，不应阻塞。
type Handler interface {
	OnTrackStart(guildID string, track *model.Track)
	OnTrackEnd(guildID string, track *model.Track, reason string)
	OnTrackException(guildID string, track *model.Track, message string)
	OnVoiceClosed(guildID string, code int, reason string)
}

// Config 节点配置
type Config struct {
	URL        string // http://host:port
	Password   string
	UserID     string
	ClientName string
	Timeout    time.Duration
}

type player struct {
	state     model.PlayerState
	updatedAt time.Time
}

// Node 一个 Lavalink v4 节点：事件通过 websocket 接收，控制通过 REST 发送
type Node struct {
	baseURL    string
	wsURL      string
	password   string
	userID     string
	clientName string
	httpClient *http.Client
	handler    Handler
	now        func() time.Time

	mu        sync.RWMutex
	sessionID string
	players   map[string]*player
}

// NewNode 创建节点，Run 之前需要 SetHandler
func NewNode(cfg Config) (*Node, error) {
	u, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, err
	}
	base := u.String()

	ws := *u
	switch u.Scheme {
	case "https":
		ws.Scheme = "wss"
	default:
		ws.Scheme = "ws"
	}
	ws.Path = strings.TrimRight(u.Path, "/") + "/v4/websocket"

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Node{
		baseURL:    base,
		wsURL:      ws.String(),
		password:   cfg.Password,
		userID:     cfg.UserID,
		clientName: cfg.ClientName,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
		players:    make(map[string]*player),
	}, nil
}

// SetHandler 设置事件接收者
func (n *Node) SetHandler(h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handler = h
}

// SessionID 当前会话 ID，未就绪时为空
func (n *Node) SessionID() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sessionID
}

// Ready 是否已收到 ready
func (n *Node) Ready() bool {
	return n.SessionID() != ""
}

// State 返回播放器状态。播放中的位置按上次更新后经过的时间推算。
func (n *Node) State(guildID string) (model.PlayerState, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	p, ok := n.players[guildID]
	if !ok {
		return model.PlayerState{}, false
	}
	st := p.state
	if st.Active() {
		st.PositionMs += n.now().Sub(p.updatedAt).Milliseconds()
	}
	return st, true
}

// playerLocked 需要持有写锁
func (n *Node) playerLocked(guildID string) *player {
	p, ok := n.players[guildID]
	if !ok {
		p = &player{updatedAt: n.now()}
		n.players[guildID] = p
	}
	return p
}

// Run 保持 websocket 连接，断开后按指数退避重连，直到 ctx 结束
func (n *Node) Run(ctx context.Context) error {
	backoff := minBackoff
	for {
		connected, err := n.connect(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = minBackoff
		}
		logger.Warn("lavalink connection lost, reconnecting",
			logger.ErrorField(err),
			logger.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (n *Node) connect(ctx context.Context) (bool, error) {
	header := http.Header{}
	header.Set("Authorization", n.password)
	header.Set("User-Id", n.userID)
	header.Set("Client-Name", n.clientName)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, n.wsURL, header)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	logger.Info("connected to lavalink", logger.String("url", n.wsURL))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	defer n.reset()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("invalid lavalink message", logger.ErrorField(err))
			continue
		}
		n.handle(&msg)
	}
}

// reset 连接断开后引擎上的播放器都不复存在
func (n *Node) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sessionID = ""
	n.players = make(map[string]*player)
}

func (n *Node) handle(msg *message) {
	switch msg.Op {
	case OpReady:
		n.mu.Lock()
		n.sessionID = msg.SessionID
		n.mu.Unlock()
		logger.Info("lavalink ready", logger.String("sessionId", msg.SessionID), logger.Bool("resumed", msg.Resumed))

	case OpPlayerUpdate:
		if msg.State == nil {
			return
		}
		n.mu.Lock()
		p := n.playerLocked(msg.GuildID)
		p.state.PositionMs = msg.State.Position
		p.state.Connected = msg.State.Connected
		p.updatedAt = n.now()
		n.mu.Unlock()

	case OpStats:
		// 不使用

	case OpEvent:
		n.handleEvent(msg)

	default:
		logger.Debug("unknown lavalink op", logger.String("op", string(msg.Op)))
	}
}

func (n *Node) handleEvent(msg *message) {
	var track *model.Track
	if msg.Track != nil {
		track = msg.Track.toModel()
	}

	n.mu.Lock()
	p := n.playerLocked(msg.GuildID)
	switch msg.Type {
	case EventTrackStart:
		p.state.Playing = true
		p.state.Paused = false
		p.state.PositionMs = 0
		p.updatedAt = n.now()
	case EventTrackEnd:
		p.state.Playing = false
		p.state.PositionMs = 0
	case EventWebSocketClosed:
		p.state.Connected = false
	}
	h := n.handler
	n.mu.Unlock()

	switch msg.Type {
	case EventTrackStart:
		if h != nil {
			h.OnTrackStart(msg.GuildID, track)
		}
	case EventTrackEnd:
		if h != nil {
			h.OnTrackEnd(msg.GuildID, track, msg.Reason)
		}
	case EventTrackException:
		var ex exceptionPayload
		if len(msg.Exception) > 0 {
			if err := json.Unmarshal(msg.Exception, &ex); err != nil {
				logger.Debug("undecodable track exception",
					logger.Guild(msg.GuildID),
					logger.ErrorField(err))
			}
		}
		logger.Warn("track exception",
			logger.Guild(msg.GuildID),
			logger.String("message", ex.Message),
			logger.String("severity", ex.Severity))
		if h != nil {
			h.OnTrackException(msg.GuildID, track, ex.Message)
		}
	case EventTrackStuck:
		logger.Warn("track stuck", logger.Guild(msg.GuildID))
	case EventWebSocketClosed:
		logger.Info("voice websocket closed",
			logger.Guild(msg.GuildID),
			logger.Int("code", msg.Code),
			logger.String("reason", msg.Reason))
		if h != nil {
			h.OnVoiceClosed(msg.GuildID, msg.Code, msg.Reason)
		}
	default:
		logger.Debug("unknown lavalink event", logger.String("type", string(msg.Type)))
	}
}
