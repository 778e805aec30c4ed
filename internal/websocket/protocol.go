package websocket

import (
	"time"

	apperrors "github.com/wfunc/card-battle/internal/errors"
	"github.com/wfunc/card-battle/internal/game/battle"
	"github.com/wfunc/card-battle/internal/game/card"
	"github.com/wfunc/card-battle/internal/game/session"
)

// 客户端动作
const (
	ActionJoinSession    = "join_session"
	ActionPlayCard       = "play_card"
	ActionAttack         = "attack"
	ActionEndTurn        = "end_turn"
	ActionSurrender      = "surrender"
	ActionGetBattleState = "get_battle_state"
	ActionLeaveSession   = "leave_session"
	ActionSelectDeck     = "select_deck"
	ActionPing           = "ping"
)

// 服务端消息类型
const (
	TypeConnectionEstablished = "connection_established"
	TypeSessionUpdate         = "session_update"
	TypeBattleState           = "battle_state"
	TypeSessionLeft           = "session_left"
	TypeHeartbeat             = "heartbeat"
	TypePong                  = "pong"
	TypeError                 = "error"
)

// ClientMessage 客户端上行消息
//
// 索引字段缺省时按 -1 处理：手牌/攻击者索引缺省即非法，目标缺省即攻击玩家本人
type ClientMessage struct {
	Action            string `json:"action"`
	SessionID         string `json:"session_id,omitempty"`
	UserID            string `json:"user_id,omitempty"`
	DeckID            string `json:"deck_id,omitempty"`
	HandIndex         *int   `json:"hand_index,omitempty"`
	AttackerHandIndex *int   `json:"attacker_hand_index,omitempty"`
	TargetHandIndex   *int   `json:"target_hand_index,omitempty"`
}

func indexOrMissing(v *int) int {
	if v == nil {
		return -1
	}
	return *v
}

// CardView 下发给客户端的卡牌
type CardView struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	Attack       int         `json:"attack"`
	Defense      int         `json:"defense"`
	ManaCost     int         `json:"mana_cost"`
	Type         card.Type   `json:"type"`
	Rarity       card.Rarity `json:"rarity"`
	UsedThisTurn bool        `json:"used_this_turn"`
}

// DeckView 牌库只暴露数量
type DeckView struct {
	Count int `json:"count"`
}

// PlayerView 玩家视图
type PlayerView struct {
	PlayerID  string     `json:"player_id"`
	Health    int        `json:"health"`
	MaxHealth int        `json:"max_health"`
	Mana      int        `json:"mana"`
	MaxMana   int        `json:"max_mana"`
	IsActive  bool       `json:"is_active"`
	Hand      []CardView `json:"hand"`
	HandCount int        `json:"hand_count"`
	Field     []CardView `json:"field"`
	Graveyard []CardView `json:"graveyard"`
	Deck      DeckView   `json:"deck"`
}

// BattleStateMessage 对战快照
type BattleStateMessage struct {
	Type        string                `json:"type"`
	Success     bool                  `json:"success"`
	SessionID   string                `json:"session_id"`
	CurrentTurn string                `json:"current_turn"`
	TurnNumber  int                   `json:"turn_number"`
	IsFinished  bool                  `json:"is_finished"`
	Winner      string                `json:"winner"`
	LastAction  string                `json:"last_action"`
	Players     map[string]PlayerView `json:"players"`
}

// SessionUpdateMessage 会话快照
type SessionUpdateMessage struct {
	Type        string         `json:"type"`
	Success     bool           `json:"success"`
	SessionID   string         `json:"session_id"`
	HostID      string         `json:"host_id"`
	GuestID     string         `json:"guest_id"`
	Status      session.Status `json:"status"`
	HostDeckID  string         `json:"host_deck_id"`
	GuestDeckID string         `json:"guest_deck_id"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ConnectionEstablishedMessage 加入会话成功
type ConnectionEstablishedMessage struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	ClientID  string `json:"client_id"`
}

// SessionLeftMessage 离开会话成功
type SessionLeftMessage struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
}

// TimestampMessage 心跳与pong
type TimestampMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorMessage 错误信封
type ErrorMessage struct {
	Type    string         `json:"type"`
	Success bool           `json:"success"`
	Error   string         `json:"error"`
	Code    int            `json:"code"`
	Kind    apperrors.Kind `json:"kind"`
}

// NewBattleStateMessage 按观察者生成快照，对手手牌只保留数量
func NewBattleStateMessage(st *battle.BattleState, viewerID string) *BattleStateMessage {
	msg := &BattleStateMessage{
		Type:        TypeBattleState,
		Success:     true,
		SessionID:   st.SessionID,
		CurrentTurn: st.CurrentTurn,
		TurnNumber:  st.TurnNumber,
		IsFinished:  st.IsFinished,
		Winner:      st.Winner,
		LastAction:  st.LastAction,
		Players:     make(map[string]PlayerView, len(st.Players)),
	}
	for id, p := range st.Players {
		hand := []CardView{}
		if id == viewerID {
			hand = cardViews(p.Hand)
		}
		msg.Players[id] = PlayerView{
			PlayerID:  p.PlayerID,
			Health:    p.Health,
			MaxHealth: p.MaxHealth,
			Mana:      p.Mana,
			MaxMana:   p.MaxMana,
			IsActive:  p.IsActive,
			Hand:      hand,
			HandCount: len(p.Hand),
			Field:     cardViews(p.Field),
			Graveyard: cardViews(p.Graveyard),
			Deck:      DeckView{Count: len(p.Deck)},
		}
	}
	return msg
}

func cardViews(cards []card.Card) []CardView {
	out := make([]CardView, 0, len(cards))
	for _, c := range cards {
		out = append(out, CardView{
			ID:           c.ID,
			Name:         c.Name,
			Description:  c.Description,
			Attack:       c.Attack,
			Defense:      c.Defense,
			ManaCost:     c.ManaCost,
			Type:         c.Type,
			Rarity:       c.Rarity,
			UsedThisTurn: c.UsedThisTurn,
		})
	}
	return out
}

// NewSessionUpdateMessage 会话快照
func NewSessionUpdateMessage(s *session.GameSession) *SessionUpdateMessage {
	return &SessionUpdateMessage{
		Type:        TypeSessionUpdate,
		Success:     true,
		SessionID:   s.ID,
		HostID:      s.HostID,
		GuestID:     s.GuestID,
		Status:      s.Status,
		HostDeckID:  s.HostDeckID,
		GuestDeckID: s.GuestDeckID,
		CreatedAt:   s.CreatedAt,
	}
}

// NewErrorMessage 将错误转换为错误信封
func NewErrorMessage(err error) *ErrorMessage {
	return &ErrorMessage{
		Type:    TypeError,
		Success: false,
		Error:   apperrors.ClientMessage(err),
		Code:    int(apperrors.GetCode(err)),
		Kind:    apperrors.KindOf(err),
	}
}

func newTimestampMessage(typ string) *TimestampMessage {
	return &TimestampMessage{Type: typ, Timestamp: time.Now().UnixMilli()}
}
