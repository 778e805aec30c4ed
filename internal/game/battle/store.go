package battle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wfunc/card-battle/internal/config"
	apperrors "github.com/wfunc/card-battle/internal/errors"
	"github.com/wfunc/card-battle/internal/models"
	"gorm.io/gorm"
)

// Store 对战状态持久化接口
type Store interface {
	Save(ctx context.Context, state *BattleState) error
	Load(ctx context.Context, sessionID string) (*BattleState, error)
	Delete(ctx context.Context, sessionID string) error
}

// 存储类型
const (
	StoreMemory   = "memory"
	StoreDatabase = "database"
	StoreRedis    = "redis"
	StoreCache    = "cache" // redis缓存 + 数据库存储
)

// NewStore 按配置创建存储
func NewStore(kind string, db *gorm.DB, rdb redis.UniversalClient, redisCfg config.RedisConfig) (Store, error) {
	switch kind {
	case "", StoreMemory:
		return NewMemoryStore(), nil
	case StoreDatabase:
		if db == nil {
			return nil, apperrors.New(apperrors.ErrConfigValidate, "battle.store=database requires a database")
		}
		return NewDatabaseStore(db), nil
	case StoreRedis:
		if rdb == nil {
			return nil, apperrors.New(apperrors.ErrConfigValidate, "battle.store=redis requires redis.enabled")
		}
		return NewRedisStore(rdb, redisCfg.KeyPrefix, redisCfg.TTL), nil
	case StoreCache:
		if db == nil || rdb == nil {
			return nil, apperrors.New(apperrors.ErrConfigValidate, "battle.store=cache requires both database and redis")
		}
		return NewCacheStore(NewRedisStore(rdb, redisCfg.KeyPrefix, redisCfg.TTL), NewDatabaseStore(db)), nil
	default:
		return nil, apperrors.Newf(apperrors.ErrConfigValidate, "unknown battle store: %s", kind)
	}
}

func notFound(sessionID string) error {
	return apperrors.Newf(apperrors.ErrBattleNotFound, "Battle not found for session: %s", sessionID)
}

// MemoryStore 内存存储（用于测试与单机部署）
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string][]byte
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string][]byte),
	}
}

// Save 保存状态
func (s *MemoryStore) Save(_ context.Context, state *BattleState) error {
	// 以JSON保存，读写互不影响
	data, err := json.Marshal(state)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrUnknown, "marshal battle state")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.SessionID] = data
	return nil
}

// Load 加载状态
func (s *MemoryStore) Load(_ context.Context, sessionID string) (*BattleState, error) {
	s.mu.RLock()
	data, ok := s.states[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound(sessionID)
	}
	return decodeState(data)
}

// Delete 删除状态
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, sessionID)
	return nil
}

// Len 已保存的对战数
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

func decodeState(data []byte) (*BattleState, error) {
	var state BattleState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrUnknown, "unmarshal battle state")
	}
	return &state, nil
}

// DatabaseStore 数据库存储，对应 battles 表
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore 创建数据库存储
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

// Save 写入快照，存在则更新
func (s *DatabaseStore) Save(ctx context.Context, state *BattleState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrUnknown, "marshal battle state")
	}

	var snapshot models.BattleSnapshot
	result := s.db.WithContext(ctx).
		Where("session_id = ?", state.SessionID).
		Assign(map[string]interface{}{
			"current_turn": state.CurrentTurn,
			"turn_number":  state.TurnNumber,
			"is_finished":  state.IsFinished,
			"winner":       state.Winner,
			"state_data":   string(data),
			"updated_at":   time.Now(),
		}).
		FirstOrCreate(&snapshot, models.BattleSnapshot{SessionID: state.SessionID})
	if result.Error != nil {
		return apperrors.Wrap(result.Error, apperrors.ErrDatabaseUpdate, "save battle snapshot")
	}
	return nil
}

// Load 读取快照
func (s *DatabaseStore) Load(ctx context.Context, sessionID string) (*BattleState, error) {
	var snapshot models.BattleSnapshot
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(sessionID)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "load battle snapshot")
	}
	return decodeState([]byte(snapshot.StateData))
}

// Delete 删除快照，不存在时忽略
func (s *DatabaseStore) Delete(ctx context.Context, sessionID string) error {
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&models.BattleSnapshot{}).Error
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseDelete, "delete battle snapshot")
	}
	return nil
}

// RedisStore Redis存储，键带过期时间
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore 创建Redis存储
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisStore) key(sessionID string) string {
	return fmt.Sprintf("%sbattle:%s", s.prefix, sessionID)
}

// Save 保存状态
func (s *RedisStore) Save(ctx context.Context, state *BattleState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrUnknown, "marshal battle state")
	}
	if err := s.client.Set(ctx, s.key(state.SessionID), data, s.ttl).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCacheUnavailable, "redis set")
	}
	return nil
}

// Load 加载状态
func (s *RedisStore) Load(ctx context.Context, sessionID string) (*BattleState, error) {
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound(sessionID)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCacheUnavailable, "redis get")
	}
	return decodeState(data)
}

// Delete 删除状态
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCacheUnavailable, "redis del")
	}
	return nil
}

// CacheStore 带缓存的存储（装饰器模式）
type CacheStore struct {
	cache   Store // 缓存层（如Redis）
	storage Store // 存储层（如数据库）
}

// NewCacheStore 创建带缓存的存储
func NewCacheStore(cache, storage Store) *CacheStore {
	return &CacheStore{
		cache:   cache,
		storage: storage,
	}
}

// Save 先写存储层，缓存失败不影响主流程
func (s *CacheStore) Save(ctx context.Context, state *BattleState) error {
	if err := s.storage.Save(ctx, state); err != nil {
		return err
	}
	_ = s.cache.Save(ctx, state)
	return nil
}

// Load 优先读缓存，未命中回源并回填
func (s *CacheStore) Load(ctx context.Context, sessionID string) (*BattleState, error) {
	if state, err := s.cache.Load(ctx, sessionID); err == nil {
		return state, nil
	}

	state, err := s.storage.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Save(ctx, state)
	return state, nil
}

// Delete 同时删除缓存和存储
func (s *CacheStore) Delete(ctx context.Context, sessionID string) error {
	_ = s.cache.Delete(ctx, sessionID)
	return s.storage.Delete(ctx, sessionID)
}
