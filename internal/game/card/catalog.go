package card

import (
	"sort"
	"sync"
)

// PlaceholderID 未知卡牌ID对应的占位卡
const PlaceholderID = "unknown"

// placeholder 牌库中引用了目录里不存在的卡牌时使用
var placeholder = Definition{
	ID:          PlaceholderID,
	Name:        "Unknown Card",
	Description: "Card not found",
	Attack:      1,
	Defense:     1,
	ManaCost:    1,
	Type:        TypeCreature,
	Rarity:      RarityCommon,
}

// defaultDefinitions 内置卡牌表
var defaultDefinitions = []Definition{
	{ID: "card_001", Name: "Fire Elemental", Description: "A powerful fire creature", Attack: 5, Defense: 3, ManaCost: 4, Type: TypeCreature, Rarity: RarityRare},
	{ID: "card_002", Name: "Water Spirit", Description: "A mystical water being", Attack: 3, Defense: 5, ManaCost: 3, Type: TypeCreature, Rarity: RarityCommon},
	{ID: "card_003", Name: "Lightning Bolt", Description: "Deal 3 damage to target", ManaCost: 2, Type: TypeSpell, Rarity: RarityCommon, Effect: Effect{Kind: EffectDamage, Amount: 3}},
	{ID: "card_004", Name: "Dragon", Description: "A mighty dragon", Attack: 8, Defense: 6, ManaCost: 7, Type: TypeCreature, Rarity: RarityLegendary},
	{ID: "card_005", Name: "Healing Potion", Description: "Restore 4 health", ManaCost: 3, Type: TypeSpell, Rarity: RarityCommon, Effect: Effect{Kind: EffectHeal, Amount: 4}},
	{ID: "card_006", Name: "Knight", Description: "A noble warrior", Attack: 4, Defense: 4, ManaCost: 4, Type: TypeCreature, Rarity: RarityRare},
	{ID: "card_007", Name: "Magic Shield", Description: "Gain 3 defense", ManaCost: 2, Type: TypeSpell, Rarity: RarityCommon, Effect: Effect{Kind: EffectShield, Amount: 3}},
	{ID: "card_008", Name: "Goblin", Description: "A small but fierce creature", Attack: 2, Defense: 1, ManaCost: 1, Type: TypeCreature, Rarity: RarityCommon},
	{ID: "card_009", Name: "Wizard", Description: "A powerful spellcaster", Attack: 3, Defense: 2, ManaCost: 5, Type: TypeCreature, Rarity: RarityRare},
	{ID: "card_010", Name: "Forest Guardian", Description: "Protector of nature", Attack: 6, Defense: 7, ManaCost: 6, Type: TypeCreature, Rarity: RarityEpic},
}

// Catalog 卡牌目录，只读
type Catalog struct {
	defs  map[string]Definition
	order []string
}

var (
	defaultCatalog *Catalog
	defaultOnce    sync.Once
)

// Default 返回内置卡牌目录
func Default() *Catalog {
	defaultOnce.Do(func() {
		defaultCatalog = NewCatalog(defaultDefinitions...)
	})
	return defaultCatalog
}

// NewCatalog 创建卡牌目录，后出现的同ID定义覆盖先前的
func NewCatalog(defs ...Definition) *Catalog {
	c := &Catalog{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if _, exists := c.defs[d.ID]; !exists {
			c.order = append(c.order, d.ID)
		}
		c.defs[d.ID] = d
	}
	return c
}

// Lookup 查找卡牌定义
func (c *Catalog) Lookup(id string) (Definition, bool) {
	d, ok := c.defs[id]
	return d, ok
}

// Contains 是否包含卡牌
func (c *Catalog) Contains(id string) bool {
	_, ok := c.defs[id]
	return ok
}

// Instantiate 创建卡牌实例，未知ID返回占位卡
func (c *Catalog) Instantiate(id string) Card {
	if d, ok := c.defs[id]; ok {
		return d.NewInstance()
	}
	return placeholder.NewInstance()
}

// Build 按顺序将卡牌ID列表转换为实例
func (c *Catalog) Build(ids []string) []Card {
	cards := make([]Card, 0, len(ids))
	for _, id := range ids {
		cards = append(cards, c.Instantiate(id))
	}
	return cards
}

// All 按录入顺序返回全部定义
func (c *Catalog) All() []Definition {
	out := make([]Definition, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.defs[id])
	}
	return out
}

// IDs 返回排序后的卡牌ID
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.defs))
	for id := range c.defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Unknown 返回列表中目录不存在的ID
func (c *Catalog) Unknown(ids []string) []string {
	var missing []string
	for _, id := range ids {
		if !c.Contains(id) {
			missing = append(missing, id)
		}
	}
	return missing
}
