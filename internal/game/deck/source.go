package deck

import (
	"context"
	"sync"

	apperrors "github.com/wfunc/card-battle/internal/errors"
	"github.com/wfunc/card-battle/internal/game/card"
	"github.com/wfunc/card-battle/internal/repository"
)

// Source 卡组来源，按卡组ID返回有序卡牌ID
type Source interface {
	GetDeck(ctx context.Context, deckID string) ([]string, error)
}

// DefaultDeckID 保留卡组ID，任何玩家都可选择，对应DefaultDeckIDs
const DefaultDeckID = "default"

// DefaultDeckIDs 默认卡组：目录内全部卡牌各一张
func DefaultDeckIDs(c *card.Catalog) []string {
	defs := c.All()
	ids := make([]string, len(defs))
	for i, d := range defs {
		ids[i] = d.ID
	}
	return ids
}

// RepositorySource 从数据库卡组表读取
type RepositorySource struct {
	repo repository.DeckRepository
}

// NewRepositorySource 创建数据库卡组来源
func NewRepositorySource(repo repository.DeckRepository) *RepositorySource {
	return &RepositorySource{repo: repo}
}

// GetDeck 读取卡组卡牌
func (s *RepositorySource) GetDeck(ctx context.Context, deckID string) ([]string, error) {
	d, err := s.repo.FindByID(ctx, deckID)
	if err != nil {
		return nil, err
	}
	return d.CardIDs(), nil
}

// StaticSource 内存卡组表，用于测试与单机部署
type StaticSource struct {
	mu    sync.RWMutex
	decks map[string][]string
}

// NewStaticSource 创建内存卡组来源
func NewStaticSource(decks map[string][]string) *StaticSource {
	s := &StaticSource{decks: make(map[string][]string, len(decks))}
	for id, cards := range decks {
		s.Put(id, cards)
	}
	return s
}

// Put 写入或替换卡组
func (s *StaticSource) Put(deckID string, cardIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decks[deckID] = append([]string(nil), cardIDs...)
}

// GetDeck 读取卡组卡牌
func (s *StaticSource) GetDeck(_ context.Context, deckID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cards, ok := s.decks[deckID]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrDeckNotFound, "Deck not found: %s", deckID)
	}
	return append([]string(nil), cards...), nil
}
