package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// 写超时默认值
	defaultWriteWait = 10 * time.Second

	// 单条消息最大字节数默认值
	defaultMaxMessageSize = 64 * 1024
)

// ClientOptions 连接参数
type ClientOptions struct {
	// AuthUserID 握手阶段已认证的用户，为空表示未认证
	AuthUserID     string
	WriteTimeout   time.Duration
	MaxMessageSize int64
}

// Client WebSocket客户端连接
type Client struct {
	ID   string
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte

	authUserID     string
	writeWait      time.Duration
	maxMessageSize int64

	// 连接上下文
	ctxMu     sync.RWMutex
	sessionID string
	userID    string
	joined    bool

	sendMu    sync.Mutex
	closed    bool
	closeOnce sync.Once

	logger *zap.Logger
}

// NewClient 创建客户端
func NewClient(hub *Hub, conn *websocket.Conn, opts ClientOptions) *Client {
	writeWait := opts.WriteTimeout
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	maxSize := opts.MaxMessageSize
	if maxSize <= 0 {
		maxSize = defaultMaxMessageSize
	}
	id := uuid.New().String()
	return &Client{
		ID:             id,
		Hub:            hub,
		Conn:           conn,
		Send:           make(chan []byte, hub.sendBufferSize),
		authUserID:     opts.AuthUserID,
		writeWait:      writeWait,
		maxMessageSize: maxSize,
		logger:         hub.logger.With(zap.String("client_id", id)),
	}
}

// Context 返回会话ID、用户ID以及是否已加入
func (c *Client) Context() (sessionID, userID string, joined bool) {
	c.ctxMu.RLock()
	defer c.ctxMu.RUnlock()
	return c.sessionID, c.userID, c.joined
}

// UserID 已加入会话的用户ID
func (c *Client) UserID() string {
	c.ctxMu.RLock()
	defer c.ctxMu.RUnlock()
	return c.userID
}

// AuthUserID 握手阶段认证的用户ID
func (c *Client) AuthUserID() string {
	return c.authUserID
}

// RemoteAddr 远端地址
func (c *Client) RemoteAddr() string {
	if c.Conn == nil {
		return ""
	}
	return c.Conn.RemoteAddr().String()
}

func (c *Client) bind(sessionID, userID string) {
	c.ctxMu.Lock()
	c.sessionID = sessionID
	c.userID = userID
	c.joined = true
	c.ctxMu.Unlock()
}

func (c *Client) unbind() {
	c.ctxMu.Lock()
	c.sessionID = ""
	c.userID = ""
	c.joined = false
	c.ctxMu.Unlock()
}

// trySend 非阻塞写入发送队列，队列已满返回false
func (c *Client) trySend(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// closeSend 关闭发送队列，WritePump随后退出
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

func (c *Client) closeConn() {
	c.closeOnce.Do(func() {
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

// ReadPump 读取客户端消息，返回时连接已注销
//
// 注销会关闭发送队列，由WritePump发完剩余消息后关闭连接
func (c *Client) ReadPump() {
	defer c.Hub.Unregister(c)

	c.Conn.SetReadLimit(c.maxMessageSize)

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("WebSocket异常关闭", zap.Error(err))
			}
			return
		}

		if c.Hub.handler == nil {
			continue
		}
		if !c.Hub.handler.HandleClientMessage(c, message) {
			return
		}
	}
}

// WritePump 向客户端写消息，每条消息一帧
func (c *Client) WritePump() {
	defer c.closeConn()

	for message := range c.Send {
		c.Conn.SetWriteDeadline(time.Now().Add(c.writeWait))
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			c.logger.Debug("写消息失败", zap.Error(err))
			return
		}
	}

	// 发送队列已关闭
	c.Conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// ServeConn 接管已升级的连接：注册并启动读写协程
func (h *Hub) ServeConn(conn *websocket.Conn, opts ClientOptions) *Client {
	client := NewClient(h, conn, opts)
	h.Register(client)
	go client.WritePump()
	go client.ReadPump()
	return client
}
