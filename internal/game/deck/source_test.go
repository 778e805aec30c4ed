package deck

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/card-battle/internal/errors"
	"github.com/wfunc/card-battle/internal/game/card"
	"github.com/wfunc/card-battle/internal/models"
	"github.com/wfunc/card-battle/internal/repository"
)

func TestDefaultDeckIDs(t *testing.T) {
	ids := DefaultDeckIDs(card.Default())
	require.Len(t, ids, 10)
	assert.Equal(t, "card_001", ids[0])
	assert.Equal(t, "card_010", ids[9])
}

func TestStaticSource(t *testing.T) {
	src := NewStaticSource(map[string][]string{"d1": {"card_001", "card_002"}})
	ctx := context.Background()

	cards, err := src.GetDeck(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, []string{"card_001", "card_002"}, cards)

	// 返回副本
	cards[0] = "mutated"
	again, _ := src.GetDeck(ctx, "d1")
	assert.Equal(t, "card_001", again[0])

	_, err = src.GetDeck(ctx, "missing")
	assert.True(t, apperrors.Is(err, apperrors.ErrDeckNotFound))
}

func TestRepositorySource(t *testing.T) {
	db := repository.TestDB(t)
	repo := repository.NewDeckRepository(db)
	user := repository.CreateTestUser(t, db, "owner")
	ctx := context.Background()

	d := &models.Deck{UserID: user.ID, Name: "Main"}
	require.NoError(t, repo.Create(ctx, d, []string{"card_003", "card_003", "card_009"}))

	src := NewRepositorySource(repo)
	cards, err := src.GetDeck(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"card_003", "card_003", "card_009"}, cards)

	_, err = src.GetDeck(ctx, "nope")
	assert.Error(t, err)
}
