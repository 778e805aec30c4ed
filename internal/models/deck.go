package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Deck 玩家卡组表
type Deck struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	UserID    string     `gorm:"index;size:36;not null" json:"user_id"`
	Name      string     `gorm:"size:100;not null" json:"name"`
	IsActive  bool       `gorm:"default:false" json:"is_active"`
	Cards     []DeckCard `gorm:"foreignKey:DeckID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (Deck) TableName() string {
	return "decks"
}

// BeforeCreate 自动生成卡组ID
func (d *Deck) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

// CardIDs 按位置返回卡牌ID
func (d *Deck) CardIDs() []string {
	ids := make([]string, len(d.Cards))
	for i, c := range d.Cards {
		ids[i] = c.CardID
	}
	return ids
}

// DeckCard 卡组中的单张卡牌，Position 决定顺序
type DeckCard struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	DeckID   string `gorm:"index;size:36;not null" json:"deck_id"`
	CardID   string `gorm:"size:32;not null" json:"card_id"`
	Position int    `gorm:"not null" json:"position"`
}

// TableName 指定表名
func (DeckCard) TableName() string {
	return "deck_cards"
}
