package repository

import (
	"context"
	"errors"

	apperrors "github.com/wfunc/card-battle/internal/errors"
	"github.com/wfunc/card-battle/internal/models"
	"gorm.io/gorm"
)

// DeckRepository 卡组仓储接口
type DeckRepository interface {
	BaseRepository
	Create(ctx context.Context, deck *models.Deck, cardIDs []string) error
	FindByID(ctx context.Context, id string) (*models.Deck, error)
	FindByUser(ctx context.Context, userID string) ([]*models.Deck, error)
	FindActive(ctx context.Context, userID string) (*models.Deck, error)
	UpdateCards(ctx context.Context, id string, name string, cardIDs []string) error
	SetActive(ctx context.Context, userID, deckID string) error
	Delete(ctx context.Context, id string) error
}

// deckRepo 卡组仓储实现
type deckRepo struct {
	*BaseRepo
}

// NewDeckRepository 创建卡组仓储
func NewDeckRepository(db *gorm.DB) DeckRepository {
	return &deckRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

func orderedCards(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func buildDeckCards(deckID string, cardIDs []string) []models.DeckCard {
	cards := make([]models.DeckCard, len(cardIDs))
	for i, id := range cardIDs {
		cards[i] = models.DeckCard{DeckID: deckID, CardID: id, Position: i}
	}
	return cards
}

// Create 创建卡组，cardIDs 顺序即牌库顺序
func (r *deckRepo) Create(ctx context.Context, deck *models.Deck, cardIDs []string) error {
	return r.Transaction(ctx, func(tx *gorm.DB) error {
		deck.Cards = nil
		if err := tx.Create(deck).Error; err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseInsert)
		}
		if len(cardIDs) == 0 {
			return nil
		}
		cards := buildDeckCards(deck.ID, cardIDs)
		if err := tx.Create(&cards).Error; err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseInsert)
		}
		deck.Cards = cards
		return nil
	})
}

// FindByID 查找卡组（含有序卡牌）
func (r *deckRepo) FindByID(ctx context.Context, id string) (*models.Deck, error) {
	var deck models.Deck
	err := r.db.WithContext(ctx).Preload("Cards", orderedCards).
		Where("id = ?", id).First(&deck).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.ErrDeckNotFound, "Deck not found: %s", id)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	return &deck, nil
}

// FindByUser 获取玩家全部卡组
func (r *deckRepo) FindByUser(ctx context.Context, userID string) ([]*models.Deck, error) {
	var decks []*models.Deck
	err := r.db.WithContext(ctx).Preload("Cards", orderedCards).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&decks).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	return decks, nil
}

// FindActive 获取玩家当前启用的卡组
func (r *deckRepo) FindActive(ctx context.Context, userID string) (*models.Deck, error) {
	var deck models.Deck
	err := r.db.WithContext(ctx).Preload("Cards", orderedCards).
		Where("user_id = ? AND is_active = ?", userID, true).
		First(&deck).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.ErrDeckNotFound, "No active deck for user: %s", userID)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	return &deck, nil
}

// UpdateCards 替换卡组名称与卡牌列表
func (r *deckRepo) UpdateCards(ctx context.Context, id string, name string, cardIDs []string) error {
	return r.Transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.Deck{}).Where("id = ?", id).Update("name", name)
		if res.Error != nil {
			return apperrors.Wrap(res.Error, apperrors.ErrDatabaseUpdate)
		}
		if res.RowsAffected == 0 {
			return apperrors.Newf(apperrors.ErrDeckNotFound, "Deck not found: %s", id)
		}
		if err := tx.Where("deck_id = ?", id).Delete(&models.DeckCard{}).Error; err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseDelete)
		}
		if len(cardIDs) == 0 {
			return nil
		}
		cards := buildDeckCards(id, cardIDs)
		if err := tx.Create(&cards).Error; err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseInsert)
		}
		return nil
	})
}

// SetActive 将指定卡组设为启用，同一玩家其余卡组取消启用
func (r *deckRepo) SetActive(ctx context.Context, userID, deckID string) error {
	return r.Transaction(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Deck{}).
			Where("id = ? AND user_id = ?", deckID, userID).
			Count(&count).Error; err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
		}
		if count == 0 {
			return apperrors.Newf(apperrors.ErrDeckNotFound, "Deck not found: %s", deckID)
		}
		if err := tx.Model(&models.Deck{}).Where("user_id = ?", userID).
			Update("is_active", false).Error; err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseUpdate)
		}
		if err := tx.Model(&models.Deck{}).Where("id = ?", deckID).
			Update("is_active", true).Error; err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseUpdate)
		}
		return nil
	})
}

// Delete 删除卡组及其卡牌
func (r *deckRepo) Delete(ctx context.Context, id string) error {
	return r.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("deck_id = ?", id).Delete(&models.DeckCard{}).Error; err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseDelete)
		}
		res := tx.Where("id = ?", id).Delete(&models.Deck{})
		if res.Error != nil {
			return apperrors.Wrap(res.Error, apperrors.ErrDatabaseDelete)
		}
		if res.RowsAffected == 0 {
			return apperrors.Newf(apperrors.ErrDeckNotFound, "Deck not found: %s", id)
		}
		return nil
	})
}
