package repository

import (
	"context"

	apperrors "github.com/wfunc/card-battle/internal/errors"
	"github.com/wfunc/card-battle/internal/models"
	"gorm.io/gorm"
)

// BattleResultRepository 对战结果仓储接口
type BattleResultRepository interface {
	BaseRepository
	Create(ctx context.Context, result *models.BattleResult) error
	FindBySessionID(ctx context.Context, sessionID string) ([]*models.BattleResult, error)
	FindByUser(ctx context.Context, userID string, p *Pagination) ([]*models.BattleResult, error)
	GetStatistics(ctx context.Context, userID string) (*BattleStatistics, error)
}

// BattleStatistics 玩家对战统计
type BattleStatistics struct {
	TotalBattles int64   `json:"total_battles"`
	Wins         int64   `json:"wins"`
	Losses       int64   `json:"losses"`
	WinRate      float64 `json:"win_rate"`
	Surrenders   int64   `json:"surrenders"` // 本人投降次数
}

// battleResultRepo 对战结果仓储实现
type battleResultRepo struct {
	*BaseRepo
}

// NewBattleResultRepository 创建对战结果仓储
func NewBattleResultRepository(db *gorm.DB) BattleResultRepository {
	return &battleResultRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Create 写入对战结果
func (r *battleResultRepo) Create(ctx context.Context, result *models.BattleResult) error {
	if err := r.db.WithContext(ctx).Create(result).Error; err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseInsert)
	}
	return nil
}

// FindBySessionID 查询会话下的对战结果
func (r *battleResultRepo) FindBySessionID(ctx context.Context, sessionID string) ([]*models.BattleResult, error) {
	var results []*models.BattleResult
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).
		Order("finished_at DESC").Find(&results).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	return results, nil
}

// FindByUser 分页查询玩家参与的对战
func (r *battleResultRepo) FindByUser(ctx context.Context, userID string, p *Pagination) ([]*models.BattleResult, error) {
	var results []*models.BattleResult
	db := r.db.WithContext(ctx).Model(&models.BattleResult{}).
		Where("winner_id = ? OR loser_id = ?", userID, userID)
	db, err := page(db, p)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	if err := db.Order("finished_at DESC").Find(&results).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	return results, nil
}

// GetStatistics 汇总玩家胜负
func (r *battleResultRepo) GetStatistics(ctx context.Context, userID string) (*BattleStatistics, error) {
	stats := &BattleStatistics{}
	db := r.db.WithContext(ctx).Model(&models.BattleResult{})

	if err := db.Session(&gorm.Session{}).Where("winner_id = ?", userID).Count(&stats.Wins).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	if err := db.Session(&gorm.Session{}).Where("loser_id = ?", userID).Count(&stats.Losses).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	if err := db.Session(&gorm.Session{}).
		Where("loser_id = ? AND reason = ?", userID, models.FinishReasonSurrender).
		Count(&stats.Surrenders).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}

	stats.TotalBattles = stats.Wins + stats.Losses
	if stats.TotalBattles > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.TotalBattles)
	}
	return stats, nil
}
