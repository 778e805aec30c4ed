package database

import (
	"fmt"
	"time"

	"github.com/wfunc/card-battle/internal/logger"
	"github.com/wfunc/card-battle/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Models 需要迁移的表
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Deck{},
		&models.DeckCard{},
		&models.BattleSnapshot{},
		&models.BattleResult{},
	}
}

// AutoMigrate 迁移全局数据库
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}
	return Migrate(DB)
}

// Migrate 自动迁移表结构，SQLite 下用锁文件避免多进程同时迁移
func Migrate(db *gorm.DB) error {
	CleanupStaleLocks()

	if dbPath := sqlitePath(db); dbPath != "" {
		lockFile, err := acquireMigrationLock(dbPath)
		if err != nil {
			logger.Error("无法获取迁移锁", zap.Error(err))
			return fmt.Errorf("获取迁移锁失败: %w", err)
		}
		defer releaseMigrationLock(lockFile)
	}

	logger.Info("开始数据库迁移...")
	start := time.Now()

	for _, model := range Models() {
		if err := db.AutoMigrate(model); err != nil {
			logger.Error("迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err),
			)
			return err
		}
		logger.Debug("迁移成功", zap.String("model", fmt.Sprintf("%T", model)))
	}

	if err := createIndexes(db); err != nil {
		return err
	}

	logger.LogDatabaseOperation("migrate", "*", time.Since(start), nil)
	logger.Info("数据库迁移完成", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// createIndexes 组合索引
func createIndexes(db *gorm.DB) error {
	indexes := []struct {
		table, name, columns string
	}{
		{"battle_results", "idx_battle_results_winner_finished", "winner_id, finished_at"},
		{"battle_results", "idx_battle_results_loser_finished", "loser_id, finished_at"},
		{"decks", "idx_decks_user_active", "user_id, is_active"},
	}

	for _, idx := range indexes {
		if db.Migrator().HasIndex(idx.table, idx.name) {
			continue
		}
		sql := fmt.Sprintf("CREATE INDEX %s ON %s (%s)", idx.name, idx.table, idx.columns)
		if err := db.Exec(sql).Error; err != nil {
			logger.Warn("创建索引失败", zap.String("index", idx.name), zap.Error(err))
		}
	}
	return nil
}

// DropAllTables 删除所有表（仅用于开发环境）
func DropAllTables(db *gorm.DB) error {
	all := Models()
	// 逆序删除，先删依赖表
	for i := len(all) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(all[i]); err != nil {
			return fmt.Errorf("删除表失败 %T: %w", all[i], err)
		}
	}
	logger.Warn("已删除所有数据表")
	return nil
}
