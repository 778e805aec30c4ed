package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/wfunc/card-battle/internal/game/battle"
	"github.com/wfunc/card-battle/internal/game/session"
	"go.uber.org/zap"
)

// BattleReader 读取对战快照
type BattleReader interface {
	GetBattleState(sessionID string) (*battle.BattleState, error)
}

// SessionReader 读取会话快照
type SessionReader interface {
	GetSession(id string) (*session.GameSession, error)
}

// MessageHandler 处理客户端消息
type MessageHandler interface {
	// HandleClientMessage 返回false时关闭连接
	HandleClientMessage(c *Client, data []byte) bool
	// HandleDisconnect 连接断开后调用，此时客户端已从Hub移除
	HandleDisconnect(c *Client)
}

// HubConfig Hub配置
type HubConfig struct {
	Battles           BattleReader
	Sessions          SessionReader
	Logger            *zap.Logger
	HeartbeatInterval time.Duration
	SendBufferSize    int
}

// Hub WebSocket连接中心
type Hub struct {
	// 所有连接
	clients map[string]*Client

	// 会话ID -> 客户端ID -> 已加入会话的连接
	sessions map[string]map[string]*Client

	mu sync.RWMutex

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once

	handler  MessageHandler
	battles  BattleReader
	sessionR SessionReader

	heartbeatInterval time.Duration
	sendBufferSize    int
	logger            *zap.Logger
}

// NewHub 创建Hub
func NewHub(cfg *HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	bufSize := cfg.SendBufferSize
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Hub{
		clients:           make(map[string]*Client),
		sessions:          make(map[string]map[string]*Client),
		register:          make(chan *Client),
		unregister:        make(chan *Client),
		done:              make(chan struct{}),
		battles:           cfg.Battles,
		sessionR:          cfg.Sessions,
		heartbeatInterval: interval,
		sendBufferSize:    bufSize,
		logger:            logger.With(zap.String("component", "hub")),
	}
}

// SetHandler 设置消息处理器
func (h *Hub) SetHandler(handler MessageHandler) {
	h.handler = handler
}

// Run 运行Hub主循环，ctx取消后退出
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()
	defer h.stopOnce.Do(func() { close(h.done) })

	h.logger.Info("WebSocket Hub启动", zap.Duration("heartbeat_interval", h.heartbeatInterval))

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			h.logger.Info("WebSocket Hub停止")
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ticker.C:
			h.sendHeartbeat()
		}
	}
}

// Register 注册连接
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister 注销连接，Hub停止后直接移除
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
		h.unregisterClient(c)
	}
}

func (h *Hub) registerClient(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("客户端连接",
		zap.String("client_id", c.ID),
		zap.String("remote_addr", c.RemoteAddr()),
		zap.Int("total_clients", total))
}

// unregisterClient 可重复调用，只有第一次生效
func (h *Hub) unregisterClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	h.detachLocked(c)
	c.closeSend()
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("客户端断开",
		zap.String("client_id", c.ID),
		zap.Int("total_clients", total))

	if h.handler != nil {
		go h.handler.HandleDisconnect(c)
	}
}

// detachLocked 从会话成员中移除，调用方持有写锁
func (h *Hub) detachLocked(c *Client) {
	sessionID, _, joined := c.Context()
	if !joined {
		return
	}
	if members, ok := h.sessions[sessionID]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.sessions, sessionID)
		}
	}
}

// Join 将连接加入会话，已在其他会话时先移出
func (h *Hub) Join(c *Client, sessionID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	h.detachLocked(c)
	c.bind(sessionID, userID)

	members, ok := h.sessions[sessionID]
	if !ok {
		members = make(map[string]*Client)
		h.sessions[sessionID] = members
	}
	members[c.ID] = c
}

// Leave 将连接移出会话，连接保持
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(c)
	c.unbind()
}

// IsUserJoined 用户是否有连接加入了会话
func (h *Hub) IsUserJoined(sessionID, userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.sessions[sessionID] {
		if c.UserID() == userID {
			return true
		}
	}
	return false
}

// SessionClientCount 会话内的连接数
func (h *Hub) SessionClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// ClientCount 连接总数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastBattleState 按观察者分别序列化并推送对战快照
func (h *Hub) BroadcastBattleState(sessionID string) error {
	st, err := h.battles.GetBattleState(sessionID)
	if err != nil {
		return err
	}

	var failed []*Client
	h.mu.RLock()
	for _, c := range h.sessions[sessionID] {
		data, err := json.Marshal(NewBattleStateMessage(st, c.UserID()))
		if err != nil {
			h.mu.RUnlock()
			return err
		}
		if !c.trySend(data) {
			failed = append(failed, c)
		}
	}
	h.mu.RUnlock()

	h.dropClients(failed)
	return nil
}

// BroadcastSessionUpdate 推送会话快照
func (h *Hub) BroadcastSessionUpdate(sessionID string) error {
	s, err := h.sessionR.GetSession(sessionID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(NewSessionUpdateMessage(s))
	if err != nil {
		return err
	}
	h.broadcastToSession(sessionID, data)
	return nil
}

// SendBattleState 只向一个连接推送对战快照
func (h *Hub) SendBattleState(c *Client, st *battle.BattleState) {
	h.SendToClient(c, NewBattleStateMessage(st, c.UserID()))
}

// SendToClient 序列化并发送给单个连接
func (h *Hub) SendToClient(c *Client, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("序列化消息失败", zap.String("client_id", c.ID), zap.Error(err))
		return
	}
	if !c.trySend(data) {
		h.dropClients([]*Client{c})
	}
}

func (h *Hub) broadcastToSession(sessionID string, data []byte) {
	var failed []*Client
	h.mu.RLock()
	for _, c := range h.sessions[sessionID] {
		if !c.trySend(data) {
			failed = append(failed, c)
		}
	}
	h.mu.RUnlock()
	h.dropClients(failed)
}

func (h *Hub) sendHeartbeat() {
	data, err := json.Marshal(newTimestampMessage(TypeHeartbeat))
	if err != nil {
		return
	}

	var failed []*Client
	h.mu.RLock()
	for _, c := range h.clients {
		if !c.trySend(data) {
			failed = append(failed, c)
		}
	}
	h.mu.RUnlock()
	h.dropClients(failed)
}

// dropClients 移除发送缓冲已满的连接，不影响其他连接
func (h *Hub) dropClients(clients []*Client) {
	for _, c := range clients {
		h.logger.Warn("发送缓冲区已满，断开客户端", zap.String("client_id", c.ID))
		h.unregisterClient(c)
		c.closeConn()
	}
}

func (h *Hub) shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.closeConn()
	}
}
