package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/card-battle/internal/errors"
	"github.com/wfunc/card-battle/internal/game/battle"
	"github.com/wfunc/card-battle/internal/game/session"
	"github.com/wfunc/card-battle/internal/logger"
	"github.com/wfunc/card-battle/internal/service"
	ws "github.com/wfunc/card-battle/internal/websocket"
	"go.uber.org/zap"
)

// SessionLobby 大厅依赖的会话操作
type SessionLobby interface {
	CreateSession(hostID string) (string, error)
	GetSession(id string) (*session.GameSession, error)
	JoinSession(id, guestID string) (*session.GameSession, error)
	SetDeckSelection(id, playerID, deckID string) (*session.GameSession, error)
	GetWaitingSessions() []session.GameSession
}

// BattleViewer 读取对战状态
type BattleViewer interface {
	GetBattleState(sessionID string) (*battle.BattleState, error)
	Recover(ctx context.Context, sessionID string) (*battle.BattleState, error)
}

// SessionNotifier 会话变化推送
type SessionNotifier interface {
	BroadcastSessionUpdate(sessionID string) error
}

// SessionDispatcher 对战分发器在大厅里的入口
type SessionDispatcher interface {
	// LeaveSession 离开会话，对局进行中时判负
	LeaveSession(ctx context.Context, sessionID, userID string) error
	// StartIfReady 卡组选定且双方已连接时开战
	StartIfReady(ctx context.Context, sessionID string)
}

// SessionHandler 匹配大厅处理器
type SessionHandler struct {
	sessions   SessionLobby
	battles    BattleViewer
	notifier   SessionNotifier
	dispatcher SessionDispatcher
	decks      service.DeckService
}

// NewSessionHandler 创建大厅处理器，decks为空时不校验卡组归属，dispatcher为空时不联动对战
func NewSessionHandler(sessions SessionLobby, battles BattleViewer, notifier SessionNotifier, dispatcher SessionDispatcher, decks service.DeckService) *SessionHandler {
	return &SessionHandler{
		sessions:   sessions,
		battles:    battles,
		notifier:   notifier,
		dispatcher: dispatcher,
		decks:      decks,
	}
}

// SelectDeckRequest 选择卡组请求
type SelectDeckRequest struct {
	DeckID string `json:"deck_id" binding:"required"`
}

// CreateSession 创建会话
// @Summary 创建对战会话
// @Tags Sessions
// @Security BearerAuth
// @Produce json
// @Router /api/v1/sessions [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	id, err := h.sessions.CreateSession(userID)
	if err != nil {
		respondError(c, err)
		return
	}
	s, err := h.sessions.GetSession(id)
	if err != nil {
		respondError(c, err)
		return
	}
	logger.LogSessionEvent("session_created", id, userID)
	respond(c, http.StatusCreated, gin.H{"session_id": id, "session": s})
}

// ListWaiting 等待中的会话
// @Summary 可加入的会话列表
// @Tags Sessions
// @Produce json
// @Router /api/v1/sessions [get]
func (h *SessionHandler) ListWaiting(c *gin.Context) {
	sessions := h.sessions.GetWaitingSessions()
	if sessions == nil {
		sessions = []session.GameSession{}
	}
	respond(c, http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}

// GetSession 会话详情
// @Summary 会话详情
// @Tags Sessions
// @Param id path string true "会话ID"
// @Router /api/v1/sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	s, err := h.sessions.GetSession(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"session": s})
}

// JoinSession 加入会话
// @Summary 加入会话
// @Tags Sessions
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Router /api/v1/sessions/{id}/join [post]
func (h *SessionHandler) JoinSession(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	s, err := h.sessions.JoinSession(c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	logger.LogSessionEvent("session_joined", s.ID, userID)
	h.notify(s.ID)
	respond(c, http.StatusOK, gin.H{"session": s})
}

// LeaveSession 离开会话
// @Summary 离开会话
// @Tags Sessions
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Router /api/v1/sessions/{id}/leave [post]
func (h *SessionHandler) LeaveSession(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if err := h.dispatcher.LeaveSession(c.Request.Context(), id, userID); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"session_id": id})
}

// SelectDeck 选择卡组
// @Summary 选择对战卡组
// @Tags Sessions
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Param request body SelectDeckRequest true "卡组"
// @Router /api/v1/sessions/{id}/deck [post]
func (h *SessionHandler) SelectDeck(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req SelectDeckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	if h.decks != nil {
		if err := h.decks.CheckSelectable(c.Request.Context(), userID, req.DeckID); err != nil {
			respondError(c, err)
			return
		}
	}

	s, err := h.sessions.SetDeckSelection(c.Param("id"), userID, req.DeckID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.notify(s.ID)
	if h.dispatcher != nil {
		h.dispatcher.StartIfReady(c.Request.Context(), s.ID)
	}
	respond(c, http.StatusOK, gin.H{"session": s})
}

// GetBattle 以请求者视角返回对战快照
// @Summary 对战状态
// @Tags Battles
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Router /api/v1/battles/{id} [get]
func (h *SessionHandler) GetBattle(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	id := c.Param("id")
	st, err := h.battles.GetBattleState(id)
	if apperrors.Is(err, apperrors.ErrBattleNotFound) {
		if s, sErr := h.sessions.GetSession(id); sErr == nil &&
			(s.Status == session.StatusActive || s.Status == session.StatusFinished) {
			st, err = h.battles.Recover(c.Request.Context(), id)
		}
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ws.NewBattleStateMessage(st, userID))
}

func (h *SessionHandler) notify(sessionID string) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.BroadcastSessionUpdate(sessionID); err != nil {
		logger.WithModule("http").Debug("推送会话更新失败",
			zap.String("session_id", sessionID), zap.Error(err))
	}
}
