package service

import (
	"context"
	"errors"
	"strings"

	apperrors "github.com/wfunc/card-battle/internal/errors"
	"github.com/wfunc/card-battle/internal/models"
	"github.com/wfunc/card-battle/internal/repository"
	"github.com/wfunc/card-battle/internal/utils"
	"go.uber.org/zap"
)

// authService 认证服务实现
type authService struct {
	userRepo   repository.UserRepository
	jwtManager *utils.JWTManager // 为空时令牌即用户ID
	log        *zap.Logger
}

// NewAuthService 创建认证服务
func NewAuthService(userRepo repository.UserRepository, jwtManager *utils.JWTManager, log *zap.Logger) AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &authService{
		userRepo:   userRepo,
		jwtManager: jwtManager,
		log:        log,
	}
}

// Register 用户注册
func (s *authService) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	username := strings.TrimSpace(req.Username)
	if len(username) < 3 || len(username) > 20 {
		return nil, apperrors.New(apperrors.ErrInvalidParam, "username must be 3-20 characters")
	}
	if len(req.Password) < 6 {
		return nil, apperrors.New(apperrors.ErrInvalidParam, "password must be at least 6 characters")
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrUnknown, "hash password")
	}

	user := &models.User{
		Username:     username,
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hash,
		Status:       "active",
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info("用户注册成功",
		zap.String("user_id", user.ID),
		zap.String("username", user.Username))
	return s.issue(user)
}

// Login 用户登录
func (s *authService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	user, err := s.userRepo.FindByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			return nil, apperrors.New(apperrors.ErrInvalidPassword)
		}
		return nil, err
	}
	if !user.IsActive() {
		return nil, apperrors.New(apperrors.ErrAuthorization, "account is disabled")
	}

	ok, err := utils.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		s.log.Warn("登录失败", zap.String("username", req.Username))
		return nil, apperrors.New(apperrors.ErrInvalidPassword)
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		s.log.Warn("更新登录时间失败", zap.String("user_id", user.ID), zap.Error(err))
	}

	s.log.Info("用户登录成功", zap.String("user_id", user.ID))
	return s.issue(user)
}

// issue 签发令牌
func (s *authService) issue(user *models.User) (*AuthResponse, error) {
	if s.jwtManager == nil {
		return &AuthResponse{User: user, Token: user.ID, TokenType: "Bearer"}, nil
	}
	token, err := s.jwtManager.GenerateToken(user.ID, user.Username)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrUnknown, "sign token")
	}
	return &AuthResponse{
		User:      user,
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int64(s.jwtManager.Expiry().Seconds()),
	}, nil
}

// ResolveToken 解析令牌
func (s *authService) ResolveToken(_ context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", apperrors.New(apperrors.ErrAuthentication, "Missing bearer token")
	}
	if s.jwtManager == nil {
		return token, nil
	}

	claims, err := s.jwtManager.ValidateToken(token)
	if err != nil {
		if errors.Is(err, utils.ErrExpiredToken) {
			return "", apperrors.New(apperrors.ErrTokenExpired)
		}
		return "", apperrors.New(apperrors.ErrTokenInvalid)
	}
	return claims.UserID, nil
}
