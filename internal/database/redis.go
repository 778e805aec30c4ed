package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wfunc/card-battle/internal/config"
	"github.com/wfunc/card-battle/internal/logger"
	"go.uber.org/zap"
)

// NewRedisClient 创建Redis客户端，多个地址时为集群模式
func NewRedisClient(cfg *config.RedisConfig) (redis.UniversalClient, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("未配置Redis地址")
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:       cfg.Addrs,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redis连接测试失败: %w", err)
	}

	logger.Info("Redis连接成功", zap.Strings("addrs", cfg.Addrs), zap.Int("db", cfg.DB))
	return client, nil
}
