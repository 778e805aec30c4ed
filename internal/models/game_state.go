package models

import (
	"time"
)

// BattleSnapshot 对战状态快照（用于持久化对战引擎的内存状态）
type BattleSnapshot struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SessionID   string    `gorm:"uniqueIndex;size:64;not null" json:"session_id"`
	CurrentTurn string    `gorm:"size:64" json:"current_turn"`
	TurnNumber  int       `json:"turn_number"`
	IsFinished  bool      `gorm:"index" json:"is_finished"`
	Winner      string    `gorm:"size:64" json:"winner"`
	StateData   string    `gorm:"type:text" json:"state_data"` // JSON格式的完整对战状态
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName 指定表名
func (BattleSnapshot) TableName() string {
	return "battles"
}
