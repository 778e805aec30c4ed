package logger

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wfunc/card-battle/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *zap.Logger
	once   sync.Once
	mu     sync.RWMutex

	// 全局日志级别，配置热更新时调整
	atomicLevel = zap.NewAtomicLevel()

	// 模块日志器，级别独立于全局级别
	moduleLoggers map[string]*zap.Logger

	fallbackOnce sync.Once
	fallback     *zap.Logger
)

// sink 一个输出目标及其最低级别
type sink struct {
	ws    zapcore.WriteSyncer
	floor zapcore.LevelEnabler
}

// Init 初始化日志系统，只生效一次
func Init(cfg *config.LogConfig) error {
	var err error
	once.Do(func() {
		atomicLevel.SetLevel(parseLevel(cfg.Level))
		encoder := newEncoder(cfg.Format)

		var sinks []sink
		sinks, err = openSinks(cfg)
		if err != nil {
			return
		}

		// 根日志器多经包级函数调用，跳过一层
		root := zap.New(tee(encoder, sinks, atomicLevel),
			zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))

		modules := make(map[string]*zap.Logger, len(cfg.Modules))
		for module, levelStr := range cfg.Modules {
			level := zap.NewAtomicLevelAt(parseLevel(levelStr))
			modules[module] = zap.New(tee(encoder, sinks, level), zap.AddCaller()).Named(module)
		}

		mu.Lock()
		logger = root
		moduleLoggers = modules
		mu.Unlock()
	})
	return err
}

func newEncoder(format string) zapcore.Encoder {
	ec := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "module",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if format == "json" {
		return zapcore.NewJSONEncoder(ec)
	}
	ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(ec)
}

// openSinks 按output打开控制台与轮转文件，文件输出额外带一个error.log
func openSinks(cfg *config.LogConfig) ([]sink, error) {
	var sinks []sink
	if cfg.Output != "file" {
		sinks = append(sinks, sink{ws: zapcore.Lock(os.Stdout)})
	}
	if cfg.Output == "file" || cfg.Output == "both" {
		if err := os.MkdirAll(cfg.File.Path, 0755); err != nil {
			return nil, err
		}
		name := cfg.File.Filename
		if name == "" {
			name = "card-battle.log"
		}
		sinks = append(sinks,
			sink{ws: rotating(cfg.File, name)},
			sink{ws: rotating(cfg.File, "error.log"), floor: zapcore.ErrorLevel},
		)
	}
	return sinks, nil
}

func rotating(cfg config.LogFileConfig, name string) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(cfg.Path, name),
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	})
}

func tee(encoder zapcore.Encoder, sinks []sink, level zapcore.LevelEnabler) zapcore.Core {
	cores := make([]zapcore.Core, 0, len(sinks))
	for _, s := range sinks {
		enabler := level
		if s.floor != nil {
			enabler = s.floor
		}
		cores = append(cores, zapcore.NewCore(encoder, s.ws, enabler))
	}
	return zapcore.NewTee(cores...)
}

// parseLevel 解析日志级别，无法识别时为info
func parseLevel(levelStr string) zapcore.Level {
	level, err := zapcore.ParseLevel(levelStr)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// GetLogger 获取日志器，未初始化时返回生产环境默认日志器
func GetLogger() *zap.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}
	fallbackOnce.Do(func() {
		var err error
		if fallback, err = zap.NewProduction(); err != nil {
			fallback = zap.NewNop()
		}
	})
	return fallback
}

// GetModuleLogger 获取模块日志器，模块未配置时返回默认日志器
func GetModuleLogger(module string) *zap.Logger {
	mu.RLock()
	l, ok := moduleLoggers[module]
	mu.RUnlock()
	if ok {
		return l
	}
	return GetLogger()
}

// Sync 刷新所有日志器的缓冲区
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		return nil
	}
	for _, l := range moduleLoggers {
		_ = l.Sync()
	}
	return logger.Sync()
}

// SetLevel 调整全局日志级别，模块日志器不受影响
func SetLevel(levelStr string) {
	atomicLevel.SetLevel(parseLevel(levelStr))
}

func Debug(msg string, fields ...zap.Field) { GetLogger().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { GetLogger().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { GetLogger().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { GetLogger().Error(msg, fields...) }

// With 创建带有字段的日志器
func With(fields ...zap.Field) *zap.Logger {
	return GetLogger().With(fields...)
}

// WithModule 同GetModuleLogger
func WithModule(module string) *zap.Logger {
	return GetModuleLogger(module)
}

// LogRequest 记录HTTP请求
func LogRequest(method, path string, statusCode int, latency time.Duration, clientIP string) {
	GetModuleLogger("http").Info("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", statusCode),
		zap.Duration("latency", latency),
		zap.String("client_ip", clientIP),
	)
}

// LogPanic 记录已恢复的panic
func LogPanic(recovered interface{}, stack []byte) {
	GetLogger().Error("panic recovered",
		zap.Any("panic", recovered),
		zap.ByteString("stack", stack),
	)
}

// LogBattleEvent 记录对战事件
func LogBattleEvent(event string, sessionID string, data map[string]interface{}) {
	GetModuleLogger("game").Info("battle_event",
		zap.String("event", event),
		zap.String("session_id", sessionID),
		zap.Any("data", data),
	)
}

// LogSessionEvent 记录匹配会话事件
func LogSessionEvent(event string, sessionID string, userID string) {
	GetModuleLogger("game").Info("session_event",
		zap.String("event", event),
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
	)
}

// LogWebSocketMessage 记录WebSocket消息，direction为send或receive
func LogWebSocketMessage(direction string, action string, sessionID string, userID string) {
	GetModuleLogger("websocket").Debug("ws_message",
		zap.String("direction", direction),
		zap.String("action", action),
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
	)
}

// LogDatabaseOperation 记录数据库操作，失败记为error
func LogDatabaseOperation(operation string, table string, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("table", table),
		zap.Duration("duration", duration),
	}
	l := GetModuleLogger("database")
	if err != nil {
		l.Error("database_operation_failed", append(fields, zap.Error(err))...)
		return
	}
	l.Debug("database_operation", fields...)
}
