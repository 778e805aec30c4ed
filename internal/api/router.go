package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/wfunc/card-battle/internal/config"
	apperrors "github.com/wfunc/card-battle/internal/errors"
	"github.com/wfunc/card-battle/internal/game/battle"
	"github.com/wfunc/card-battle/internal/game/card"
	"github.com/wfunc/card-battle/internal/game/session"
	"github.com/wfunc/card-battle/internal/middleware"
	"github.com/wfunc/card-battle/internal/service"
	ws "github.com/wfunc/card-battle/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RouterConfig 路由依赖
type RouterConfig struct {
	Config     *config.Config
	DB         *gorm.DB
	Redis      redis.UniversalClient // 未启用时为空
	Services   *service.Services
	Sessions   *session.Registry
	Engine     *battle.Engine
	Hub        *ws.Hub
	Dispatcher *ws.BattleHandler
	Catalog    *card.Catalog
	Logger     *zap.Logger
}

// Router API路由器
type Router struct {
	engine *gin.Engine
	cfg    *RouterConfig

	authHandler    *AuthHandler
	deckHandler    *DeckHandler
	sessionHandler *SessionHandler
	wsHandler      *WebSocketHandler
	authMiddleware *middleware.AuthMiddleware
	log            *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(cfg *RouterConfig) *Router {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = card.Default()
	}

	engine := gin.New()
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestLogger())

	r := &Router{
		engine:         engine,
		cfg:            cfg,
		authHandler:    NewAuthHandler(cfg.Services.Auth, cfg.Services.User),
		deckHandler:    NewDeckHandler(cfg.Services.Deck, catalog),
		sessionHandler: NewSessionHandler(cfg.Sessions, cfg.Engine, cfg.Hub, cfg.Dispatcher, cfg.Services.Deck),
		wsHandler:      NewWebSocketHandler(cfg.Hub, cfg.Config.WebSocket, log),
		authMiddleware: middleware.NewAuthMiddleware(cfg.Services.Auth),
		log:            log,
	}
	r.setupRoutes()
	return r
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.healthCheck)
	registerOpenAPIRoutes(r.engine)
	registerSwaggerRoutes(r.engine)

	requireAuth := r.authMiddleware.RequireAuth()

	v1 := r.engine.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", r.authHandler.Register)
			auth.POST("/login", r.authHandler.Login)
			auth.GET("/profile", requireAuth, r.authHandler.GetProfile)
		}
		v1.GET("/leaderboard", r.authHandler.Leaderboard)
		v1.GET("/cards", r.deckHandler.ListCards)

		sessions := v1.Group("/sessions")
		{
			sessions.GET("", r.sessionHandler.ListWaiting)
			sessions.GET("/:id", r.sessionHandler.GetSession)
			sessions.POST("", requireAuth, r.sessionHandler.CreateSession)
			sessions.POST("/:id/join", requireAuth, r.sessionHandler.JoinSession)
			sessions.POST("/:id/leave", requireAuth, r.sessionHandler.LeaveSession)
			sessions.POST("/:id/deck", requireAuth, r.sessionHandler.SelectDeck)
		}

		v1.GET("/battles/:id", requireAuth, r.sessionHandler.GetBattle)

		decks := v1.Group("/decks")
		decks.Use(requireAuth)
		{
			decks.GET("", r.deckHandler.ListDecks)
			decks.POST("", r.deckHandler.CreateDeck)
			decks.GET("/:id", r.deckHandler.GetDeck)
			decks.PUT("/:id", r.deckHandler.UpdateDeck)
			decks.DELETE("/:id", r.deckHandler.DeleteDeck)
			decks.POST("/:id/activate", r.deckHandler.ActivateDeck)
		}
	}

	wsPath := r.cfg.Config.WebSocket.Path
	if wsPath == "" {
		wsPath = "/ws"
	}
	r.engine.GET(wsPath, r.authMiddleware.OptionalAuth(), r.wsHandler.BattleWebSocket)

	r.engine.NoRoute(func(c *gin.Context) {
		respondError(c, apperrors.New(apperrors.ErrNotFound, "Route not found"))
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	ctx := c.Request.Context()

	sqlDB, err := r.cfg.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"status":  "unhealthy",
			"error":   "database unavailable",
		})
		return
	}

	if r.cfg.Redis != nil {
		if err := r.cfg.Redis.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"status":  "unhealthy",
				"error":   "redis unavailable",
			})
			return
		}
	}

	respond(c, http.StatusOK, gin.H{
		"status":   "healthy",
		"sessions": r.cfg.Sessions.Count(),
		"battles":  r.cfg.Engine.Count(),
		"clients":  r.cfg.Hub.ClientCount(),
	})
}

// Handler 返回http.Handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
