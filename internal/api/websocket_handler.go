package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/wfunc/card-battle/internal/config"
	"github.com/wfunc/card-battle/internal/middleware"
	ws "github.com/wfunc/card-battle/internal/websocket"
	"go.uber.org/zap"
)

// WebSocketHandler WebSocket处理器
type WebSocketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	opts     ws.ClientOptions
	logger   *zap.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(hub *ws.Hub, cfg config.WebSocketConfig, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    cfg.ReadBufferSize,
			WriteBufferSize:   cfg.WriteBufferSize,
			EnableCompression: cfg.EnableCompression,
			CheckOrigin: func(r *http.Request) bool {
				// 大厅对所有来源开放
				return true
			},
		},
		opts: ws.ClientOptions{
			WriteTimeout:   cfg.WriteTimeout,
			MaxMessageSize: cfg.MaxMessageSize,
		},
		logger: logger,
	}
}

// BattleWebSocket 对战WebSocket连接，握手时的令牌可选
func (h *WebSocketHandler) BattleWebSocket(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket升级失败",
			zap.String("user_id", userID),
			zap.Error(err))
		return
	}

	opts := h.opts
	opts.AuthUserID = userID
	client := h.hub.ServeConn(conn, opts)

	h.logger.Info("WebSocket连接建立",
		zap.String("client_id", client.ID),
		zap.String("user_id", userID),
		zap.String("remote_addr", c.ClientIP()))
}
