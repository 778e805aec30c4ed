package repository

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/wfunc/card-battle/internal/errors"
	"github.com/wfunc/card-battle/internal/models"
	"gorm.io/gorm"
)

// UserRepository 用户仓储接口
type UserRepository interface {
	BaseRepository
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	GetAll(ctx context.Context, pagination *Pagination) ([]*models.User, error)
	UpdateLastLogin(ctx context.Context, userID string) error
	RecordResult(ctx context.Context, winnerID, loserID string) error
}

// userRepo 用户仓储实现
type userRepo struct {
	*BaseRepo
}

// NewUserRepository 创建用户仓储
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Create 创建用户
func (r *userRepo) Create(ctx context.Context, user *models.User) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ?", user.Username).Count(&count).Error; err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	if count > 0 {
		return apperrors.Newf(apperrors.ErrUserExists, "Username already taken: %s", user.Username)
	}
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return apperrors.Newf(apperrors.ErrUserExists, "Username already taken: %s", user.Username)
		}
		return apperrors.Wrap(err, apperrors.ErrDatabaseInsert)
	}
	return nil
}

// Update 更新用户
func (r *userRepo) Update(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Save(user).Error; err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseUpdate)
	}
	return nil
}

// FindByID 根据ID查找用户
func (r *userRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.ErrNotFound, "User not found: %s", id)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	return &user, nil
}

// FindByUsername 根据用户名查找
func (r *userRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.ErrNotFound, "User not found: %s", username)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	return &user, nil
}

// GetAll 分页获取用户，按胜场倒序
func (r *userRepo) GetAll(ctx context.Context, pagination *Pagination) ([]*models.User, error) {
	var users []*models.User
	db := r.db.WithContext(ctx).Model(&models.User{})
	db, err := page(db, pagination)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	if err := db.Order("wins DESC, created_at ASC").Find(&users).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	return users, nil
}

// UpdateLastLogin 更新最后登录时间
func (r *userRepo) UpdateLastLogin(ctx context.Context, userID string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_login_at", &now).Error
}

// RecordResult 累加胜负场次，未注册的玩家ID会被忽略
func (r *userRepo) RecordResult(ctx context.Context, winnerID, loserID string) error {
	return r.Transaction(ctx, func(tx *gorm.DB) error {
		if winnerID != "" {
			if err := tx.Model(&models.User{}).Where("id = ?", winnerID).
				UpdateColumn("wins", gorm.Expr("wins + ?", 1)).Error; err != nil {
				return apperrors.Wrap(err, apperrors.ErrDatabaseUpdate)
			}
		}
		if loserID != "" {
			if err := tx.Model(&models.User{}).Where("id = ?", loserID).
				UpdateColumn("losses", gorm.Expr("losses + ?", 1)).Error; err != nil {
				return apperrors.Wrap(err, apperrors.ErrDatabaseUpdate)
			}
		}
		return nil
	})
}
