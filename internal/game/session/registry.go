package session

import (
	"context"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/wfunc/card-battle/internal/errors"
	"go.uber.org/zap"
)

// Status 会话状态
type Status string

const (
	StatusWaiting       Status = "waiting"         // 等待对手加入
	StatusReadyForDecks Status = "ready_for_decks" // 双方到齐，等待选卡组
	StatusReady         Status = "ready"           // 卡组已选定
	StatusActive        Status = "active"          // 对战进行中
	StatusFinished      Status = "finished"        // 对战已结束
)

const (
	codeMin = 100000
	codeMax = 999999
)

// GameSession 对战会话
type GameSession struct {
	ID          string    `json:"session_id"`
	HostID      string    `json:"host_id"`
	GuestID     string    `json:"guest_id"`
	HostDeckID  string    `json:"host_deck_id"`
	GuestDeckID string    `json:"guest_deck_id"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// HasPlayer 玩家是否在会话中
func (s *GameSession) HasPlayer(playerID string) bool {
	return playerID != "" && (s.HostID == playerID || s.GuestID == playerID)
}

// IsFull 双方是否到齐
func (s *GameSession) IsFull() bool {
	return s.HostID != "" && s.GuestID != ""
}

// Opponent 返回对手ID
func (s *GameSession) Opponent(playerID string) string {
	switch playerID {
	case s.HostID:
		return s.GuestID
	case s.GuestID:
		return s.HostID
	}
	return ""
}

// Registry 会话注册表
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*GameSession
	// 玩家最近创建或加入的会话
	active   map[string]string
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
	nextCode func() string
}

// Option 注册表选项
type Option func(*Registry)

// WithClock 注入时钟
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithCodeGenerator 注入会话码生成器
func WithCodeGenerator(gen func() string) Option {
	return func(r *Registry) { r.nextCode = gen }
}

// NewRegistry 创建会话注册表
func NewRegistry(ttl time.Duration, logger *zap.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	r := &Registry{
		sessions: make(map[string]*GameSession),
		active:   make(map[string]string),
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		nextCode: randomCode,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func randomCode() string {
	return strconv.Itoa(codeMin + rand.IntN(codeMax-codeMin+1))
}

// CreateSession 创建会话，返回6位会话码
func (r *Registry) CreateSession(hostID string) (string, error) {
	if hostID == "" {
		return "", apperrors.New(apperrors.ErrInvalidParam, "host id is required")
	}
	r.ClearOldSessions()

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextCode()
	for attempts := 0; r.sessions[id] != nil; attempts++ {
		if attempts > codeMax-codeMin {
			return "", apperrors.New(apperrors.ErrConflict, "No free session code")
		}
		id = r.nextCode()
	}

	r.sessions[id] = &GameSession{
		ID:        id,
		HostID:    hostID,
		Status:    StatusWaiting,
		CreatedAt: r.now(),
	}
	r.active[hostID] = id

	r.logger.Info("创建对战会话",
		zap.String("session_id", id),
		zap.String("host_id", hostID))
	return id, nil
}

// GetSession 获取会话副本
func (r *Registry) GetSession(id string) (*GameSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, notFound(id)
	}
	cp := *s
	return &cp, nil
}

// JoinSession 以客人身份加入会话
func (r *Registry) JoinSession(id, guestID string) (*GameSession, error) {
	if guestID == "" {
		return nil, apperrors.New(apperrors.ErrInvalidParam, "user id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, notFound(id)
	}
	if s.GuestID != "" {
		return nil, apperrors.New(apperrors.ErrSessionFull)
	}
	if s.Status != StatusWaiting {
		return nil, apperrors.New(apperrors.ErrSessionNotWaiting)
	}
	if s.HostID == guestID {
		return nil, apperrors.New(apperrors.ErrSelfJoin)
	}

	s.GuestID = guestID
	s.Status = StatusReadyForDecks
	r.active[guestID] = id

	r.logger.Info("玩家加入会话",
		zap.String("session_id", id),
		zap.String("guest_id", guestID))
	cp := *s
	return &cp, nil
}

// SetDeckSelection 记录玩家所选卡组，双方都选定后进入ready
func (r *Registry) SetDeckSelection(id, playerID, deckID string) (*GameSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, notFound(id)
	}
	if s.Status == StatusActive || s.Status == StatusFinished {
		return nil, apperrors.New(apperrors.ErrBattleAlreadyStarted)
	}

	switch playerID {
	case "":
		return nil, apperrors.New(apperrors.ErrPlayerNotInSession)
	case s.HostID:
		s.HostDeckID = deckID
	case s.GuestID:
		s.GuestDeckID = deckID
	default:
		return nil, apperrors.New(apperrors.ErrPlayerNotInSession)
	}

	if s.IsFull() && s.HostDeckID != "" && s.GuestDeckID != "" {
		s.Status = StatusReady
	}

	r.logger.Debug("玩家选择卡组",
		zap.String("session_id", id),
		zap.String("player_id", playerID),
		zap.String("deck_id", deckID),
		zap.String("status", string(s.Status)))
	cp := *s
	return &cp, nil
}

// RemovePlayerFromSession 玩家离开会话。会话被删除时返回nil
func (r *Registry) RemovePlayerFromSession(id, playerID string) (*GameSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, notFound(id)
	}
	if !s.HasPlayer(playerID) {
		return nil, apperrors.New(apperrors.ErrPlayerNotInSession)
	}
	r.untrackLocked(playerID, id)

	if s.HostID == playerID {
		// 客人升为房主
		s.HostID = s.GuestID
	}
	s.GuestID = ""

	if s.HostID == "" {
		delete(r.sessions, id)
		r.logger.Info("会话已清空并删除", zap.String("session_id", id))
		return nil, nil
	}

	s.Status = StatusWaiting
	s.HostDeckID = ""
	s.GuestDeckID = ""

	r.logger.Info("玩家离开会话",
		zap.String("session_id", id),
		zap.String("player_id", playerID),
		zap.String("host_id", s.HostID))
	cp := *s
	return &cp, nil
}

// GetWaitingSessions 返回所有未开始对战的会话
func (r *Registry) GetWaitingSessions() []GameSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]GameSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.Status == StatusActive || s.Status == StatusFinished {
			continue
		}
		out = append(out, *s)
	}
	return out
}

// ClearOldSessions 删除超过TTL的会话，返回被删除的会话码
func (r *Registry) ClearOldSessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var removed []string
	for id, s := range r.sessions {
		// 零值时间视为过期
		if s.CreatedAt.IsZero() || now.Sub(s.CreatedAt) > r.ttl {
			r.deleteLocked(s)
			removed = append(removed, id)
		}
	}

	if len(removed) > 0 {
		r.logger.Info("清理过期会话",
			zap.Int("count", len(removed)),
			zap.Strings("session_ids", removed))
	}
	return removed
}

// MarkActive 对战开始
func (r *Registry) MarkActive(id string) error {
	return r.setStatus(id, StatusActive)
}

// MarkFinished 对战结束
func (r *Registry) MarkFinished(id string) error {
	return r.setStatus(id, StatusFinished)
}

func (r *Registry) setStatus(id string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return notFound(id)
	}
	s.Status = status
	return nil
}

// EndSession 删除会话，不存在时忽略
func (r *Registry) EndSession(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		r.deleteLocked(s)
	}
}

// ActiveSession 玩家最近创建或加入且仍在其中的会话。允许同时持有多个会话，这里只记最近一个
func (r *Registry) ActiveSession(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.active[userID]
	return id, ok
}

func (r *Registry) deleteLocked(s *GameSession) {
	r.untrackLocked(s.HostID, s.ID)
	r.untrackLocked(s.GuestID, s.ID)
	delete(r.sessions, s.ID)
}

func (r *Registry) untrackLocked(userID, id string) {
	if userID != "" && r.active[userID] == id {
		delete(r.active, userID)
	}
}

// Count 当前会话数
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// StartCleanupTask 启动过期会话清理任务
func (r *Registry) StartCleanupTask(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.logger.Info("停止会话清理任务")
				return
			case <-ticker.C:
				r.ClearOldSessions()
			}
		}
	}()
}

func notFound(id string) error {
	return apperrors.Newf(apperrors.ErrSessionNotFound, "Session not found: %s", id)
}
