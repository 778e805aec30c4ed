package service

import (
	"context"

	"github.com/wfunc/card-battle/internal/models"
	"github.com/wfunc/card-battle/internal/repository"
)

const profileHistorySize = 10

// userService 用户服务实现
type userService struct {
	userRepo   repository.UserRepository
	resultRepo repository.BattleResultRepository
}

// NewUserService 创建用户服务
func NewUserService(userRepo repository.UserRepository, resultRepo repository.BattleResultRepository) UserService {
	return &userService{
		userRepo:   userRepo,
		resultRepo: resultRepo,
	}
}

// GetProfile 获取资料与最近对战
func (s *userService) GetProfile(ctx context.Context, userID string) (*UserProfile, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats, err := s.resultRepo.GetStatistics(ctx, userID)
	if err != nil {
		return nil, err
	}
	history, err := s.resultRepo.FindByUser(ctx, userID, repository.NewPagination(1, profileHistorySize))
	if err != nil {
		return nil, err
	}
	return &UserProfile{User: user, Stats: stats, LastBattles: history}, nil
}

// Leaderboard 按胜场排行
func (s *userService) Leaderboard(ctx context.Context, page, pageSize int) ([]*models.User, int64, error) {
	p := repository.NewPagination(page, pageSize)
	users, err := s.userRepo.GetAll(ctx, p)
	if err != nil {
		return nil, 0, err
	}
	return users, p.Total, nil
}
