package service

import (
	"context"
	"time"

	"github.com/wfunc/card-battle/internal/models"
	"github.com/wfunc/card-battle/internal/repository"
)

// AuthService 认证服务接口
type AuthService interface {
	Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error)
	Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error)
	// ResolveToken 将令牌解析为用户ID
	ResolveToken(ctx context.Context, token string) (string, error)
}

// UserService 用户服务接口
type UserService interface {
	GetProfile(ctx context.Context, userID string) (*UserProfile, error)
	Leaderboard(ctx context.Context, page, pageSize int) ([]*models.User, int64, error)
}

// DeckService 卡组服务接口
type DeckService interface {
	CreateDeck(ctx context.Context, userID string, req *DeckRequest) (*DeckView, error)
	ListDecks(ctx context.Context, userID string) ([]*DeckView, error)
	GetDeck(ctx context.Context, userID, deckID string) (*DeckView, error)
	UpdateDeck(ctx context.Context, userID, deckID string, req *DeckRequest) (*DeckView, error)
	DeleteDeck(ctx context.Context, userID, deckID string) error
	ActivateDeck(ctx context.Context, userID, deckID string) error
	// CheckSelectable 玩家能否在对战中使用该卡组
	CheckSelectable(ctx context.Context, userID, deckID string) error
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=20"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required,min=6"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse 认证响应
type AuthResponse struct {
	User      *models.User `json:"user"`
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresIn int64        `json:"expires_in,omitempty"`
}

// UserProfile 用户资料与战绩
type UserProfile struct {
	User        *models.User                 `json:"user"`
	Stats       *repository.BattleStatistics `json:"stats"`
	LastBattles []*models.BattleResult       `json:"last_battles"`
}

// DeckRequest 创建/更新卡组请求
type DeckRequest struct {
	Name  string   `json:"name" binding:"required,max=100"`
	Cards []string `json:"cards" binding:"required"`
}

// DeckView 卡组响应
type DeckView struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	Cards     []string  `json:"cards"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newDeckView(d *models.Deck) *DeckView {
	return &DeckView{
		ID:        d.ID,
		UserID:    d.UserID,
		Name:      d.Name,
		IsActive:  d.IsActive,
		Cards:     d.CardIDs(),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
