package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	apperrors "github.com/wfunc/card-battle/internal/errors"
	"github.com/wfunc/card-battle/internal/models"
	"gorm.io/gorm"
)

// DeckRepositoryTestSuite 卡组仓储测试套件
type DeckRepositoryTestSuite struct {
	suite.Suite
	db   *gorm.DB
	repo DeckRepository
	user *models.User
}

func (suite *DeckRepositoryTestSuite) SetupTest() {
	suite.db = SetupTestDB()
	suite.repo = NewDeckRepository(suite.db)
	suite.user = CreateTestUser(suite.T(), suite.db, "deckowner")
}

func (suite *DeckRepositoryTestSuite) TearDownTest() {
	CleanupTestDB(suite.db)
}

func (suite *DeckRepositoryTestSuite) TestCreateAndFind() {
	ctx := context.Background()
	ids := []string{"card_004", "card_001", "card_001", "card_008"}

	deck := &models.Deck{UserID: suite.user.ID, Name: "Aggro"}
	require.NoError(suite.T(), suite.repo.Create(ctx, deck, ids))
	assert.NotEmpty(suite.T(), deck.ID)

	found, err := suite.repo.FindByID(ctx, deck.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "Aggro", found.Name)
	AssertDeckCards(suite.T(), ids, found)

	_, err = suite.repo.FindByID(ctx, "missing")
	assert.True(suite.T(), apperrors.Is(err, apperrors.ErrDeckNotFound))
}

func (suite *DeckRepositoryTestSuite) TestUpdateCards() {
	ctx := context.Background()
	deck := &models.Deck{UserID: suite.user.ID, Name: "Old"}
	require.NoError(suite.T(), suite.repo.Create(ctx, deck, []string{"card_001"}))

	require.NoError(suite.T(), suite.repo.UpdateCards(ctx, deck.ID, "New", []string{"card_010", "card_002"}))
	found, err := suite.repo.FindByID(ctx, deck.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "New", found.Name)
	AssertDeckCards(suite.T(), []string{"card_010", "card_002"}, found)

	err = suite.repo.UpdateCards(ctx, "missing", "x", nil)
	assert.True(suite.T(), apperrors.Is(err, apperrors.ErrDeckNotFound))
}

func (suite *DeckRepositoryTestSuite) TestSetActive() {
	ctx := context.Background()
	a := &models.Deck{UserID: suite.user.ID, Name: "A"}
	b := &models.Deck{UserID: suite.user.ID, Name: "B"}
	require.NoError(suite.T(), suite.repo.Create(ctx, a, []string{"card_001"}))
	require.NoError(suite.T(), suite.repo.Create(ctx, b, []string{"card_002"}))

	require.NoError(suite.T(), suite.repo.SetActive(ctx, suite.user.ID, a.ID))
	require.NoError(suite.T(), suite.repo.SetActive(ctx, suite.user.ID, b.ID))

	active, err := suite.repo.FindActive(ctx, suite.user.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), b.ID, active.ID)

	decks, err := suite.repo.FindByUser(ctx, suite.user.ID)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), decks, 2)

	// 其他玩家的卡组不能启用
	err = suite.repo.SetActive(ctx, "someone-else", a.ID)
	assert.True(suite.T(), apperrors.Is(err, apperrors.ErrDeckNotFound))
}

func (suite *DeckRepositoryTestSuite) TestDelete() {
	ctx := context.Background()
	deck := &models.Deck{UserID: suite.user.ID, Name: "Temp"}
	require.NoError(suite.T(), suite.repo.Create(ctx, deck, []string{"card_001", "card_002"}))

	require.NoError(suite.T(), suite.repo.Delete(ctx, deck.ID))
	_, err := suite.repo.FindByID(ctx, deck.ID)
	assert.Error(suite.T(), err)

	var count int64
	suite.db.Model(&models.DeckCard{}).Where("deck_id = ?", deck.ID).Count(&count)
	assert.Zero(suite.T(), count)

	assert.Error(suite.T(), suite.repo.Delete(ctx, deck.ID))
}

func TestDeckRepositorySuite(t *testing.T) {
	suite.Run(t, new(DeckRepositoryTestSuite))
}
