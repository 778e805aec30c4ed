package models

import (
	"time"
)

// 对战结束原因
const (
	FinishReasonDefeat     = "defeat"     // 生命归零
	FinishReasonSurrender  = "surrender"  // 投降
	FinishReasonExhaustion = "exhaustion" // 双方牌库与手牌耗尽
)

// BattleResult 对战结果表
type BattleResult struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SessionID  string    `gorm:"index;size:64;not null" json:"session_id"`
	WinnerID   string    `gorm:"index;size:64" json:"winner_id"`
	LoserID    string    `gorm:"index;size:64" json:"loser_id"`
	Reason     string    `gorm:"size:20" json:"reason"`
	TurnNumber int       `json:"turn_number"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName 指定表名
func (BattleResult) TableName() string {
	return "battle_results"
}

// Duration 对局时长
func (r *BattleResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
