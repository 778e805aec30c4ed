package service

import (
	"time"

	"github.com/wfunc/card-battle/internal/config"
	"github.com/wfunc/card-battle/internal/game/card"
	"github.com/wfunc/card-battle/internal/repository"
	"github.com/wfunc/card-battle/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 认证模式
const (
	AuthModePlain = "plain" // 令牌即用户ID
	AuthModeJWT   = "jwt"
)

// Services 服务集合
type Services struct {
	Auth    AuthService
	User    UserService
	Deck    DeckService
	Results *ResultService
}

// NewServices 创建服务集合
func NewServices(db *gorm.DB, security config.SecurityConfig, catalog *card.Catalog, log *zap.Logger) *Services {
	repos := repository.NewManager(db)

	var jwtManager *utils.JWTManager
	if security.AuthMode == AuthModeJWT {
		jwtManager = utils.NewJWTManager(
			security.JWT.Secret,
			security.JWT.Issuer,
			time.Duration(security.JWT.ExpireHours)*time.Hour,
		)
	}

	return &Services{
		Auth:    NewAuthService(repos.User(), jwtManager, log),
		User:    NewUserService(repos.User(), repos.BattleResult()),
		Deck:    NewDeckService(repos.Deck(), catalog, log),
		Results: NewResultService(repos, log),
	}
}
