package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/card-battle/internal/config"
	"github.com/wfunc/card-battle/internal/models"
)

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestMigrateCreatesTables(t *testing.T) {
	db, err := Open(&config.DatabaseConfig{Driver: "sqlite", DSN: "file::memory:", LogLevel: "silent"})
	require.NoError(t, err)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	require.NoError(t, Migrate(db))
	for _, m := range Models() {
		assert.True(t, db.Migrator().HasTable(m), "%T", m)
	}
	assert.True(t, db.Migrator().HasIndex("battle_results", "idx_battle_results_winner_finished"))

	// 重复迁移无副作用
	require.NoError(t, Migrate(db))

	require.NoError(t, DropAllTables(db))
	assert.False(t, db.Migrator().HasTable(&models.User{}))
}

func TestParseLogLevel(t *testing.T) {
	assert.EqualValues(t, 1, parseLogLevel("silent"))
	assert.EqualValues(t, 4, parseLogLevel("anything"))
}

func TestEnsureDirSkipsMemory(t *testing.T) {
	assert.NoError(t, ensureDir("file::memory:"))
	dir := t.TempDir()
	assert.NoError(t, ensureDir(dir+"/nested/db.sqlite"))
	assert.DirExists(t, dir+"/nested")
}

func TestNewRedisClientNeedsAddress(t *testing.T) {
	_, err := NewRedisClient(&config.RedisConfig{})
	assert.Error(t, err)
}
