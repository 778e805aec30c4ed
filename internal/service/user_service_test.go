package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/card-battle/internal/config"
	apperrors "github.com/wfunc/card-battle/internal/errors"
	"github.com/wfunc/card-battle/internal/game/battle"
	"github.com/wfunc/card-battle/internal/game/card"
	"github.com/wfunc/card-battle/internal/models"
	"github.com/wfunc/card-battle/internal/repository"
	"go.uber.org/zap"
)

func TestResultServiceAndProfile(t *testing.T) {
	db := repository.TestDB(t)
	svc := NewServices(db, config.SecurityConfig{AuthMode: AuthModePlain}, card.Default(), zap.NewNop())
	ctx := context.Background()

	alice := repository.CreateTestUser(t, db, "alice")
	bob := repository.CreateTestUser(t, db, "bob")
	now := time.Now()

	require.NoError(t, svc.Results.RecordResult(ctx, battle.Result{
		SessionID: "111111", WinnerID: alice.ID, LoserID: bob.ID,
		Reason: models.FinishReasonDefeat, TurnNumber: 9, StartedAt: now.Add(-time.Minute), FinishedAt: now,
	}))
	require.NoError(t, svc.Results.RecordResult(ctx, battle.Result{
		SessionID: "222222", WinnerID: alice.ID, LoserID: bob.ID,
		Reason: models.FinishReasonSurrender, TurnNumber: 2, StartedAt: now, FinishedAt: now.Add(time.Second),
	}))

	profile, err := svc.User.GetProfile(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, profile.User.Wins)
	assert.Equal(t, int64(2), profile.Stats.Wins)
	assert.Len(t, profile.LastBattles, 2)
	assert.Equal(t, "222222", profile.LastBattles[0].SessionID)

	profile, err = svc.User.GetProfile(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, profile.User.Losses)
	assert.Equal(t, int64(1), profile.Stats.Surrenders)

	users, total, err := svc.User.Leaderboard(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, alice.ID, users[0].ID)

	_, err = svc.User.GetProfile(ctx, "missing")
	assert.Error(t, err)
}

func TestRecordResultReportsTransactionFailure(t *testing.T) {
	db := repository.TestDB(t)
	svc := NewResultService(repository.NewManager(db), nil)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	err = svc.RecordResult(context.Background(), battle.Result{SessionID: "333333", WinnerID: "a", LoserID: "b"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrTransaction))
	assert.Equal(t, apperrors.KindInternal, apperrors.KindOf(err))
}
