package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/wfunc/card-battle/internal/api"
	"github.com/wfunc/card-battle/internal/config"
	"github.com/wfunc/card-battle/internal/database"
	"github.com/wfunc/card-battle/internal/errors"
	"github.com/wfunc/card-battle/internal/game/battle"
	"github.com/wfunc/card-battle/internal/game/card"
	"github.com/wfunc/card-battle/internal/game/deck"
	"github.com/wfunc/card-battle/internal/game/session"
	"github.com/wfunc/card-battle/internal/logger"
	"github.com/wfunc/card-battle/internal/repository"
	"github.com/wfunc/card-battle/internal/service"
	ws "github.com/wfunc/card-battle/internal/websocket"
	"go.uber.org/zap"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	redis    redis.UniversalClient
	registry *session.Registry
	engine   *battle.Engine
	hub      *ws.Hub
	http     *http.Server

	shutdownCh chan struct{}
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:        cfg,
		logger:     logger.GetLogger(),
		shutdownCh: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("正在启动卡牌对战服务器...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
	)

	if err := s.initDatabase(); err != nil {
		return err
	}
	if s.cfg.Redis.Enabled {
		client, err := database.NewRedisClient(&s.cfg.Redis)
		if err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "初始化Redis失败")
		}
		s.redis = client
	}

	router, err := s.initComponents()
	if err != nil {
		return err
	}
	s.startHTTP(router)

	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("配置已更新，正在重新加载...")
		s.reloadConfig(newCfg)
	})

	s.logger.Info("服务器启动成功",
		zap.String("http", s.cfg.Server.Addr()),
		zap.String("websocket", s.cfg.WebSocket.Path),
	)
	return nil
}

// initDatabase 初始化数据库
func (s *Server) initDatabase() error {
	if err := database.Init(&s.cfg.Database); err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect, "初始化数据库连接失败")
	}
	if s.cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}
	return nil
}

// initComponents 组装会话、对战引擎与连接中心
func (s *Server) initComponents() (*api.Router, error) {
	db := database.GetDB()
	catalog := card.Default()

	store, err := battle.NewStore(s.cfg.Battle.Store, db, s.redis, s.cfg.Redis)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInvalidParam, "创建对战存储失败")
	}

	services := service.NewServices(db, s.cfg.Security, catalog, logger.WithModule("http"))
	gameLog := logger.GetModuleLogger("game")

	s.registry = session.NewRegistry(s.cfg.Session.TTL, gameLog)
	s.engine = battle.NewEngine(&battle.EngineConfig{
		Sessions:          s.registry,
		Decks:             deck.NewRepositorySource(repository.NewDeckRepository(db)),
		Catalog:           catalog,
		Store:             store,
		Results:           services.Results,
		Rules:             battle.RulesFromConfig(s.cfg.Battle.Rules),
		Logger:            gameLog,
		PersistTimeout:    s.cfg.Battle.PersistTimeout,
		FinishedRetention: s.cfg.Battle.FinishedRetention,
	})
	s.hub = ws.NewHub(&ws.HubConfig{
		Battles:           s.engine,
		Sessions:          s.registry,
		Logger:            logger.GetModuleLogger("websocket"),
		HeartbeatInterval: s.cfg.WebSocket.HeartbeatInterval,
		SendBufferSize:    s.cfg.WebSocket.SendBufferSize,
	})
	dispatcher := ws.NewBattleHandler(s.hub, s.registry, s.engine, services.Deck, logger.GetModuleLogger("websocket"))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run(s.ctx)
	}()
	s.registry.StartCleanupTask(s.ctx, s.cfg.Session.CleanupInterval)
	s.engine.StartCleanupTask(s.ctx, s.cfg.Battle.CleanupInterval)

	gin.SetMode(ginMode(s.cfg.Server.Mode))
	return api.NewRouter(&api.RouterConfig{
		Config:     s.cfg,
		DB:         db,
		Redis:      s.redis,
		Services:   services,
		Sessions:   s.registry,
		Engine:     s.engine,
		Hub:        s.hub,
		Dispatcher: dispatcher,
		Catalog:    catalog,
		Logger:     logger.GetModuleLogger("http"),
	}), nil
}

// startHTTP 启动HTTP服务
func (s *Server) startHTTP(router *api.Router) {
	s.http = &http.Server{
		Addr:        s.cfg.Server.Addr(),
		Handler:     router.Handler(),
		ReadTimeout: s.cfg.Server.ReadTimeout,
		// WebSocket长连接由写协程自行控制超时
		WriteTimeout: 0,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP服务异常退出", zap.Error(err))
			s.cancel()
		}
	}()
}

// WaitForShutdown 等待退出信号或服务异常
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
	case <-s.ctx.Done():
	}
	close(s.shutdownCh)
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.http != nil {
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP服务关闭失败", zap.Error(err))
		}
	}

	// 取消主上下文，连接中心与清理任务随之退出
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("所有服务已正常关闭")
	case <-shutdownCtx.Done():
		s.logger.Warn("关闭超时，强制退出")
		return errors.New(errors.ErrTimeout, "关闭超时")
	}

	s.closeComponents()
	return nil
}

// closeComponents 关闭组件，未写完的快照先落盘
func (s *Server) closeComponents() {
	if s.engine != nil {
		s.engine.Close()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("关闭Redis失败", zap.Error(err))
		}
	}
	if err := database.Close(); err != nil {
		s.logger.Error("关闭数据库失败", zap.Error(err))
	}
	s.logger.Info("所有组件已关闭")
}

// reloadConfig 热更新日志级别，其余配置需要重启
func (s *Server) reloadConfig(newCfg *config.Config) {
	if newCfg.Log.Level != s.cfg.Log.Level {
		logger.SetLevel(newCfg.Log.Level)
		s.logger.Info("日志级别已更新", zap.String("level", newCfg.Log.Level))
	}
	s.cfg.Log = newCfg.Log
}

func ginMode(mode string) string {
	switch mode {
	case "production", "release":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}
