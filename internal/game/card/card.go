package card

// Type 卡牌类型
type Type string

const (
	TypeCreature Type = "Creature" // 生物，打出后进入战场
	TypeSpell    Type = "Spell"    // 法术，打出后触发效果并进入墓地
)

// Rarity 卡牌稀有度
type Rarity string

const (
	RarityCommon    Rarity = "Common"
	RarityRare      Rarity = "Rare"
	RarityEpic      Rarity = "Epic"
	RarityLegendary Rarity = "Legendary"
)

// EffectKind 法术效果类型（封闭集合）
type EffectKind string

const (
	EffectNone   EffectKind = ""
	EffectDamage EffectKind = "damage" // 对对手造成直接伤害
	EffectHeal   EffectKind = "heal"   // 恢复生命，不超过上限
	EffectShield EffectKind = "shield" // 护盾，按生命恢复结算
)

// Effect 法术效果
type Effect struct {
	Kind   EffectKind `json:"kind,omitempty"`
	Amount int        `json:"amount,omitempty"`
}

// Definition 卡牌定义，全局共享且不可变
type Definition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Attack      int    `json:"attack"`
	Defense     int    `json:"defense"`
	ManaCost    int    `json:"mana_cost"`
	Type        Type   `json:"type"`
	Rarity      Rarity `json:"rarity"`
	Effect      Effect `json:"effect"`
}

// Card 卡牌实例，在手牌/牌库/战场/墓地之间移动
type Card struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Attack       int    `json:"attack"`
	Defense      int    `json:"defense"`
	ManaCost     int    `json:"mana_cost"`
	Type         Type   `json:"type"`
	Rarity       Rarity `json:"rarity"`
	Effect       Effect `json:"effect"`
	UsedThisTurn bool   `json:"used_this_turn"`
}

// NewInstance 根据定义创建独立的卡牌实例
func (d Definition) NewInstance() Card {
	return Card{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Attack:      d.Attack,
		Defense:     d.Defense,
		ManaCost:    d.ManaCost,
		Type:        d.Type,
		Rarity:      d.Rarity,
		Effect:      d.Effect,
	}
}

// IsCreature 是否为生物
func (c Card) IsCreature() bool {
	return c.Type == TypeCreature
}

// IsSpell 是否为法术
func (c Card) IsSpell() bool {
	return c.Type == TypeSpell
}

// IsDead 防御降到0及以下即死亡
func (c Card) IsDead() bool {
	return c.Defense <= 0
}
