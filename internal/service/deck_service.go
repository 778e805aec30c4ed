package service

import (
	"context"
	"strings"

	apperrors "github.com/wfunc/card-battle/internal/errors"
	"github.com/wfunc/card-battle/internal/game/card"
	"github.com/wfunc/card-battle/internal/game/deck"
	"github.com/wfunc/card-battle/internal/models"
	"github.com/wfunc/card-battle/internal/repository"
	"go.uber.org/zap"
)

// MaxDeckSize 单个卡组最多卡牌数
const MaxDeckSize = 40

// deckService 卡组服务实现
type deckService struct {
	repo    repository.DeckRepository
	catalog *card.Catalog
	log     *zap.Logger
}

// NewDeckService 创建卡组服务
func NewDeckService(repo repository.DeckRepository, catalog *card.Catalog, log *zap.Logger) DeckService {
	if catalog == nil {
		catalog = card.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &deckService{repo: repo, catalog: catalog, log: log}
}

// validate 校验卡组名与卡牌ID
func (s *deckService) validate(req *DeckRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return apperrors.New(apperrors.ErrInvalidDeck, "Deck name is required")
	}
	if len(req.Cards) == 0 {
		return apperrors.New(apperrors.ErrInvalidDeck, "Deck must contain at least one card")
	}
	if len(req.Cards) > MaxDeckSize {
		return apperrors.Newf(apperrors.ErrInvalidDeck, "Deck may contain at most %d cards", MaxDeckSize)
	}
	if unknown := s.catalog.Unknown(req.Cards); len(unknown) > 0 {
		return apperrors.Newf(apperrors.ErrInvalidDeck, "Unknown card ids: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// owned 读取卡组并校验归属，他人的卡组视为不存在
func (s *deckService) owned(ctx context.Context, userID, deckID string) (*models.Deck, error) {
	d, err := s.repo.FindByID(ctx, deckID)
	if err != nil {
		return nil, err
	}
	if d.UserID != userID {
		return nil, apperrors.Newf(apperrors.ErrDeckNotFound, "Deck not found: %s", deckID)
	}
	return d, nil
}

// CreateDeck 创建卡组
func (s *deckService) CreateDeck(ctx context.Context, userID string, req *DeckRequest) (*DeckView, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	d := &models.Deck{UserID: userID, Name: strings.TrimSpace(req.Name)}
	if err := s.repo.Create(ctx, d, req.Cards); err != nil {
		return nil, err
	}
	s.log.Info("创建卡组",
		zap.String("user_id", userID),
		zap.String("deck_id", d.ID),
		zap.Int("cards", len(req.Cards)))
	return newDeckView(d), nil
}

// ListDecks 列出玩家卡组
func (s *deckService) ListDecks(ctx context.Context, userID string) ([]*DeckView, error) {
	decks, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]*DeckView, len(decks))
	for i, d := range decks {
		views[i] = newDeckView(d)
	}
	return views, nil
}

// GetDeck 获取卡组
func (s *deckService) GetDeck(ctx context.Context, userID, deckID string) (*DeckView, error) {
	d, err := s.owned(ctx, userID, deckID)
	if err != nil {
		return nil, err
	}
	return newDeckView(d), nil
}

// CheckSelectable 默认卡组对所有人可选，其余卡组须属于该玩家
func (s *deckService) CheckSelectable(ctx context.Context, userID, deckID string) error {
	if deckID == "" {
		return apperrors.New(apperrors.ErrInvalidParam, "deck_id is required")
	}
	if deckID == deck.DefaultDeckID {
		return nil
	}
	_, err := s.owned(ctx, userID, deckID)
	return err
}

// UpdateDeck 更新卡组
func (s *deckService) UpdateDeck(ctx context.Context, userID, deckID string, req *DeckRequest) (*DeckView, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	if _, err := s.owned(ctx, userID, deckID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateCards(ctx, deckID, strings.TrimSpace(req.Name), req.Cards); err != nil {
		return nil, err
	}
	return s.GetDeck(ctx, userID, deckID)
}

// DeleteDeck 删除卡组
func (s *deckService) DeleteDeck(ctx context.Context, userID, deckID string) error {
	if _, err := s.owned(ctx, userID, deckID); err != nil {
		return err
	}
	return s.repo.Delete(ctx, deckID)
}

// ActivateDeck 设为启用卡组
func (s *deckService) ActivateDeck(ctx context.Context, userID, deckID string) error {
	return s.repo.SetActive(ctx, userID, deckID)
}
