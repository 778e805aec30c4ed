package websocket

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/wfunc/card-battle/internal/errors"
	"github.com/wfunc/card-battle/internal/game/battle"
	"github.com/wfunc/card-battle/internal/game/session"
	"github.com/wfunc/card-battle/internal/logger"
	"go.uber.org/zap"
)

// SessionService 分发器依赖的会话操作
type SessionService interface {
	SessionReader
	JoinSession(id, guestID string) (*session.GameSession, error)
	SetDeckSelection(id, playerID, deckID string) (*session.GameSession, error)
	RemovePlayerFromSession(id, playerID string) (*session.GameSession, error)
	ActiveSession(userID string) (string, bool)
}

// BattleService 分发器依赖的对战操作
type BattleService interface {
	BattleReader
	StartBattle(ctx context.Context, sessionID, hostDeckID, guestDeckID string) (*battle.BattleState, error)
	PlayCard(ctx context.Context, sessionID, playerID string, handIndex int) (*battle.BattleState, error)
	Attack(ctx context.Context, sessionID, attackerID string, attackerIndex, targetIndex int) (*battle.BattleState, error)
	EndTurn(ctx context.Context, sessionID, playerID string) (*battle.BattleState, error)
	Surrender(ctx context.Context, sessionID, playerID string) (*battle.BattleState, error)
	AnnotatePlayerLeft(ctx context.Context, sessionID, playerID string) (*battle.BattleState, error)
	Recover(ctx context.Context, sessionID string) (*battle.BattleState, error)
	EndBattle(sessionID string)
}

// DeckChecker 校验玩家能否使用某个卡组
type DeckChecker interface {
	CheckSelectable(ctx context.Context, userID, deckID string) error
}

const defaultOpTimeout = 5 * time.Second

// BattleHandler 对战协议分发器
type BattleHandler struct {
	hub       *Hub
	sessions  SessionService
	battles   BattleService
	decks     DeckChecker
	opTimeout time.Duration
	logger    *zap.Logger
}

// NewBattleHandler 创建分发器并挂到Hub上。decks为空时只校验卡组ID非空
func NewBattleHandler(hub *Hub, sessions SessionService, battles BattleService, decks DeckChecker, log *zap.Logger) *BattleHandler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &BattleHandler{
		hub:       hub,
		sessions:  sessions,
		battles:   battles,
		decks:     decks,
		opTimeout: defaultOpTimeout,
		logger:    log.With(zap.String("component", "battle_handler")),
	}
	hub.SetHandler(h)
	return h
}

// HandleClientMessage 解析并分发一条消息
func (h *BattleHandler) HandleClientMessage(c *Client, data []byte) bool {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Warn("解析消息失败", zap.String("client_id", c.ID), zap.Error(err))
		h.hub.SendToClient(c, NewErrorMessage(apperrors.Wrap(err, apperrors.ErrMessageFormat, "Invalid JSON")))
		return false
	}
	if msg.Action == "" {
		h.logger.Warn("收到空动作", zap.String("client_id", c.ID))
		h.hub.SendToClient(c, NewErrorMessage(apperrors.New(apperrors.ErrMessageFormat, "Missing action")))
		return false
	}

	sessionID, userID, joined := c.Context()
	logger.LogWebSocketMessage("receive", msg.Action, sessionID, userID)

	ctx, cancel := context.WithTimeout(context.Background(), h.opTimeout)
	defer cancel()

	switch msg.Action {
	case ActionJoinSession:
		h.handleJoin(ctx, c, &msg)
		return true
	case ActionPing:
		h.hub.SendToClient(c, newTimestampMessage(TypePong))
		return true
	}

	if !joined {
		h.sendError(c, apperrors.New(apperrors.ErrNotJoined))
		return true
	}

	switch msg.Action {
	case ActionPlayCard:
		h.applyBattleAction(ctx, c, sessionID, func() (*battle.BattleState, error) {
			return h.battles.PlayCard(ctx, sessionID, userID, indexOrMissing(msg.HandIndex))
		})
	case ActionAttack:
		h.applyBattleAction(ctx, c, sessionID, func() (*battle.BattleState, error) {
			return h.battles.Attack(ctx, sessionID, userID,
				indexOrMissing(msg.AttackerHandIndex), indexOrMissing(msg.TargetHandIndex))
		})
	case ActionEndTurn:
		h.applyBattleAction(ctx, c, sessionID, func() (*battle.BattleState, error) {
			return h.battles.EndTurn(ctx, sessionID, userID)
		})
	case ActionSurrender:
		h.applyBattleAction(ctx, c, sessionID, func() (*battle.BattleState, error) {
			return h.battles.Surrender(ctx, sessionID, userID)
		})
	case ActionGetBattleState:
		st, err := h.battles.GetBattleState(sessionID)
		if err != nil {
			h.sendError(c, h.battleError(sessionID, err))
			return true
		}
		h.hub.SendBattleState(c, st)
	case ActionSelectDeck:
		h.handleSelectDeck(ctx, c, sessionID, userID, msg.DeckID)
	case ActionLeaveSession:
		if err := h.LeaveSession(ctx, sessionID, userID); err != nil {
			h.sendError(c, apperrors.FromContext(ctx, err))
			return true
		}
		h.hub.Leave(c)
		h.hub.SendToClient(c, &SessionLeftMessage{Type: TypeSessionLeft, Success: true, SessionID: sessionID})
	default:
		h.sendError(c, apperrors.New(apperrors.ErrUnknownAction, msg.Action))
	}
	return true
}

// handleJoin 绑定连接上下文，双方连接都到齐后开始对战
func (h *BattleHandler) handleJoin(ctx context.Context, c *Client, msg *ClientMessage) {
	userID := msg.UserID
	if auth := c.AuthUserID(); auth != "" {
		if userID == "" {
			userID = auth
		} else if userID != auth {
			h.sendError(c, apperrors.New(apperrors.ErrAuthorization, "user_id does not match token"))
			return
		}
	}
	sessionID := msg.SessionID
	if sessionID == "" && userID != "" {
		// 省略会话码时回到玩家最近的会话
		sessionID, _ = h.sessions.ActiveSession(userID)
	}
	if sessionID == "" || userID == "" {
		h.sendError(c, apperrors.New(apperrors.ErrInvalidParam, "session_id and user_id are required"))
		return
	}

	s, err := h.sessions.GetSession(sessionID)
	if err != nil {
		h.sendError(c, err)
		return
	}
	if !s.HasPlayer(userID) {
		if s, err = h.sessions.JoinSession(sessionID, userID); err != nil {
			h.sendError(c, err)
			return
		}
	}

	h.hub.Join(c, s.ID, userID)
	logger.LogSessionEvent("socket_joined", s.ID, userID)
	h.hub.SendToClient(c, &ConnectionEstablishedMessage{
		Type:      TypeConnectionEstablished,
		Success:   true,
		SessionID: s.ID,
		UserID:    userID,
		ClientID:  c.ID,
	})
	h.broadcastSession(s.ID)

	// 重连：对局已存在时只推送给本连接
	if st, err := h.existingBattle(ctx, s); err == nil {
		h.hub.SendBattleState(c, st)
		return
	}

	h.maybeStartBattle(ctx, s)
}

func (h *BattleHandler) existingBattle(ctx context.Context, s *session.GameSession) (*battle.BattleState, error) {
	if st, err := h.battles.GetBattleState(s.ID); err == nil {
		return st, nil
	}
	if s.Status != session.StatusActive && s.Status != session.StatusFinished {
		return nil, apperrors.New(apperrors.ErrBattleNotFound)
	}
	return h.battles.Recover(ctx, s.ID)
}

// StartIfReady 会话已就绪且双方连接都在时开始对战，供HTTP选卡组后调用
func (h *BattleHandler) StartIfReady(ctx context.Context, sessionID string) {
	s, err := h.sessions.GetSession(sessionID)
	if err != nil {
		return
	}
	h.maybeStartBattle(ctx, s)
}

// maybeStartBattle 双方卡组已选定且房主和客人都有连接加入时开始对战
func (h *BattleHandler) maybeStartBattle(ctx context.Context, s *session.GameSession) {
	if s.Status != session.StatusReady {
		return
	}
	if !h.hub.IsUserJoined(s.ID, s.HostID) || !h.hub.IsUserJoined(s.ID, s.GuestID) {
		return
	}

	if _, err := h.battles.StartBattle(ctx, s.ID, "", ""); err != nil {
		// 双方同时加入时只有一方能开始
		if apperrors.Is(err, apperrors.ErrBattleAlreadyStarted) {
			return
		}
		err = apperrors.FromContext(ctx, err)
		h.logger.Error("开始对战失败", zap.String("session_id", s.ID), zap.Error(err))
		h.broadcastError(s.ID, err)
		return
	}

	h.broadcastSession(s.ID)
	h.broadcastBattle(s.ID)
}

// handleSelectDeck 记录卡组选择，第二个卡组选定后尝试开战
func (h *BattleHandler) handleSelectDeck(ctx context.Context, c *Client, sessionID, userID, deckID string) {
	if deckID == "" {
		h.sendError(c, apperrors.New(apperrors.ErrInvalidParam, "deck_id is required"))
		return
	}
	if h.decks != nil {
		if err := h.decks.CheckSelectable(ctx, userID, deckID); err != nil {
			h.sendError(c, apperrors.FromContext(ctx, err))
			return
		}
	}
	s, err := h.sessions.SetDeckSelection(sessionID, userID, deckID)
	if err != nil {
		h.sendError(c, err)
		return
	}
	h.broadcastSession(sessionID)
	h.maybeStartBattle(ctx, s)
}

// applyBattleAction 执行对战动作，成功后广播，失败只回复请求方
func (h *BattleHandler) applyBattleAction(ctx context.Context, c *Client, sessionID string, op func() (*battle.BattleState, error)) {
	st, err := op()
	if err != nil {
		h.sendError(c, apperrors.FromContext(ctx, h.battleError(sessionID, err)))
		return
	}
	h.broadcastBattle(st.SessionID)
	if st.IsFinished {
		h.broadcastSession(st.SessionID)
	}
}

// battleError 对局不存在但会话还在选卡组阶段时，换成会话未就绪
func (h *BattleHandler) battleError(sessionID string, err error) error {
	if !apperrors.Is(err, apperrors.ErrBattleNotFound) {
		return err
	}
	s, sErr := h.sessions.GetSession(sessionID)
	if sErr != nil {
		return err
	}
	switch s.Status {
	case session.StatusWaiting, session.StatusReadyForDecks, session.StatusReady:
		return apperrors.Newf(apperrors.ErrSessionNotReady, "Session %s is %s", sessionID, s.Status)
	}
	return err
}

// LeaveSession 玩家离开会话。只有会话成员能离开；对局进行中视为投降，对局随后移除
func (h *BattleHandler) LeaveSession(ctx context.Context, sessionID, userID string) error {
	s, err := h.sessions.GetSession(sessionID)
	if err != nil {
		return err
	}
	if !s.HasPlayer(userID) {
		return apperrors.New(apperrors.ErrPlayerNotInSession)
	}

	if st, err := h.battles.GetBattleState(sessionID); err == nil && st.HasPlayer(userID) {
		if !st.IsFinished {
			if _, err := h.battles.Surrender(ctx, sessionID, userID); err == nil {
				h.broadcastBattle(sessionID)
			}
		}
		h.battles.EndBattle(sessionID)
	}

	s, err = h.sessions.RemovePlayerFromSession(sessionID, userID)
	if err != nil {
		return err
	}
	logger.LogSessionEvent("player_left", sessionID, userID)
	if s != nil {
		h.broadcastSession(s.ID)
	}
	return nil
}

// HandleDisconnect 连接断开：对局仍在时记录离开并通知对手
func (h *BattleHandler) HandleDisconnect(c *Client) {
	sessionID, userID, joined := c.Context()
	if !joined {
		return
	}
	c.unbind()

	// 同一用户还有其他连接时不算离开
	if h.hub.IsUserJoined(sessionID, userID) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.opTimeout)
	defer cancel()
	if _, err := h.battles.AnnotatePlayerLeft(ctx, sessionID, userID); err != nil {
		return
	}
	logger.LogBattleEvent("player_disconnected", sessionID, map[string]interface{}{"player_id": userID})
	h.broadcastBattle(sessionID)
}

func (h *BattleHandler) broadcastBattle(sessionID string) {
	if err := h.hub.BroadcastBattleState(sessionID); err != nil {
		h.logger.Debug("广播对战状态失败", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (h *BattleHandler) broadcastSession(sessionID string) {
	if err := h.hub.BroadcastSessionUpdate(sessionID); err != nil {
		h.logger.Debug("广播会话状态失败", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (h *BattleHandler) broadcastError(sessionID string, err error) {
	data, mErr := json.Marshal(NewErrorMessage(err))
	if mErr != nil {
		return
	}
	h.hub.broadcastToSession(sessionID, data)
}

func (h *BattleHandler) sendError(c *Client, err error) {
	h.logger.Debug("操作失败",
		zap.String("client_id", c.ID),
		zap.String("kind", string(apperrors.KindOf(err))),
		zap.Error(err))
	h.hub.SendToClient(c, NewErrorMessage(err))
}
