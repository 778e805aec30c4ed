package repository

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// Manager 仓储管理器，提供所有仓储的统一访问接口
type Manager struct {
	db *gorm.DB

	// 仓储实例（使用懒加载）
	userOnce sync.Once
	user     UserRepository

	deckOnce sync.Once
	deck     DeckRepository

	resultOnce sync.Once
	result     BattleResultRepository
}

// NewManager 创建仓储管理器
func NewManager(db *gorm.DB) *Manager {
	return &Manager{db: db}
}

// GetDB 获取数据库实例
func (m *Manager) GetDB() *gorm.DB {
	return m.db
}

// User 获取用户仓储
func (m *Manager) User() UserRepository {
	m.userOnce.Do(func() {
		m.user = NewUserRepository(m.db)
	})
	return m.user
}

// Deck 获取卡组仓储
func (m *Manager) Deck() DeckRepository {
	m.deckOnce.Do(func() {
		m.deck = NewDeckRepository(m.db)
	})
	return m.deck
}

// BattleResult 获取对战结果仓储
func (m *Manager) BattleResult() BattleResultRepository {
	m.resultOnce.Do(func() {
		m.result = NewBattleResultRepository(m.db)
	})
	return m.result
}

// Transaction 在事务中执行，fn 收到绑定事务的仓储管理器
func (m *Manager) Transaction(ctx context.Context, fn func(tx *Manager) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewManager(tx))
	})
}
