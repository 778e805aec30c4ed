package battle

import (
	"time"

	"github.com/wfunc/card-battle/internal/config"
	"github.com/wfunc/card-battle/internal/game/card"
)

// Rules 对战数值规则
type Rules struct {
	StartingHealth  int
	StartingMana    int
	MaxMana         int
	InitialHandSize int
}

// DefaultRules 默认规则：30血、1法力、法力上限10、起手4张
func DefaultRules() Rules {
	return Rules{
		StartingHealth:  30,
		StartingMana:    1,
		MaxMana:         10,
		InitialHandSize: 4,
	}
}

// RulesFromConfig 从配置构造规则，非正数项使用默认值
func RulesFromConfig(cfg config.RulesConfig) Rules {
	r := DefaultRules()
	if cfg.StartingHealth > 0 {
		r.StartingHealth = cfg.StartingHealth
	}
	if cfg.StartingMana > 0 {
		r.StartingMana = cfg.StartingMana
	}
	if cfg.MaxMana > 0 {
		r.MaxMana = cfg.MaxMana
	}
	if cfg.InitialHandSize > 0 {
		r.InitialHandSize = cfg.InitialHandSize
	}
	return r
}

// PlayerState 单个玩家的对战状态
type PlayerState struct {
	PlayerID  string      `json:"player_id"`
	Health    int         `json:"health"`
	MaxHealth int         `json:"max_health"`
	Mana      int         `json:"mana"`
	MaxMana   int         `json:"max_mana"`
	Hand      []card.Card `json:"hand"`
	Deck      []card.Card `json:"deck"`
	Field     []card.Card `json:"field"`
	Graveyard []card.Card `json:"graveyard"`
	IsActive  bool        `json:"is_active"`
}

// CardCount 玩家持有的卡牌总数
func (p *PlayerState) CardCount() int {
	return len(p.Hand) + len(p.Deck) + len(p.Field) + len(p.Graveyard)
}

func (p *PlayerState) clone() *PlayerState {
	cp := *p
	cp.Hand = cloneCards(p.Hand)
	cp.Deck = cloneCards(p.Deck)
	cp.Field = cloneCards(p.Field)
	cp.Graveyard = cloneCards(p.Graveyard)
	return &cp
}

func cloneCards(cards []card.Card) []card.Card {
	out := make([]card.Card, len(cards))
	copy(out, cards)
	return out
}

// damage 扣血，不低于0
func (p *PlayerState) damage(amount int) {
	p.Health -= amount
	if p.Health < 0 {
		p.Health = 0
	}
}

// heal 回血，不超过上限
func (p *PlayerState) heal(amount int) {
	p.Health += amount
	if p.Health > p.MaxHealth {
		p.Health = p.MaxHealth
	}
}

// draw 从牌库末尾抽一张
func (p *PlayerState) draw() bool {
	n := len(p.Deck)
	if n == 0 {
		return false
	}
	c := p.Deck[n-1]
	p.Deck = p.Deck[:n-1]
	p.Hand = append(p.Hand, c)
	return true
}

// exhausted 牌库与手牌均已耗尽
func (p *PlayerState) exhausted() bool {
	return len(p.Deck) == 0 && len(p.Hand) == 0
}

// BattleState 一局对战的权威状态
type BattleState struct {
	SessionID   string                  `json:"session_id"`
	HostID      string                  `json:"host_id"`
	GuestID     string                  `json:"guest_id"`
	CurrentTurn string                  `json:"current_turn"`
	TurnNumber  int                     `json:"turn_number"`
	Players     map[string]*PlayerState `json:"players"`
	Winner      string                  `json:"winner"`
	IsFinished  bool                    `json:"is_finished"`
	LastAction  string                  `json:"last_action"`
	StartedAt   time.Time               `json:"started_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// Clone 深拷贝
func (b *BattleState) Clone() *BattleState {
	cp := *b
	cp.Players = make(map[string]*PlayerState, len(b.Players))
	for id, p := range b.Players {
		cp.Players[id] = p.clone()
	}
	return &cp
}

// Player 获取玩家状态
func (b *BattleState) Player(id string) *PlayerState {
	return b.Players[id]
}

// OpponentID 返回对手ID
func (b *BattleState) OpponentID(id string) string {
	switch id {
	case b.HostID:
		return b.GuestID
	case b.GuestID:
		return b.HostID
	}
	return ""
}

// HasPlayer 玩家是否参与本局
func (b *BattleState) HasPlayer(id string) bool {
	_, ok := b.Players[id]
	return ok && id != ""
}

// PlayerIDs 按房主、客人顺序返回玩家ID
func (b *BattleState) PlayerIDs() []string {
	return []string{b.HostID, b.GuestID}
}
