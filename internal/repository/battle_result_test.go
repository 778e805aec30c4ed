package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/card-battle/internal/models"
)

func TestBattleResultRepository(t *testing.T) {
	db := TestDB(t)
	repo := NewBattleResultRepository(db)
	ctx := context.Background()
	now := time.Now()

	results := []*models.BattleResult{
		{SessionID: "111111", WinnerID: "alice", LoserID: "bob", Reason: models.FinishReasonDefeat, TurnNumber: 7, StartedAt: now.Add(-time.Minute), FinishedAt: now},
		{SessionID: "222222", WinnerID: "bob", LoserID: "alice", Reason: models.FinishReasonSurrender, TurnNumber: 3, StartedAt: now, FinishedAt: now.Add(time.Second)},
		{SessionID: "333333", WinnerID: "alice", LoserID: "carol", Reason: models.FinishReasonExhaustion, TurnNumber: 20, StartedAt: now, FinishedAt: now.Add(2 * time.Second)},
	}
	for _, r := range results {
		require.NoError(t, repo.Create(ctx, r))
	}
	assert.Equal(t, time.Minute, results[0].Duration())

	bySession, err := repo.FindBySessionID(ctx, "111111")
	require.NoError(t, err)
	require.Len(t, bySession, 1)
	assert.Equal(t, "alice", bySession[0].WinnerID)

	p := NewPagination(1, 2)
	page, err := repo.FindByUser(ctx, "alice", p)
	require.NoError(t, err)
	assert.Len(t, page, 2)
	assert.Equal(t, int64(3), p.Total)
	assert.Equal(t, "333333", page[0].SessionID)
	assert.True(t, p.HasMore())

	stats, err := repo.GetStatistics(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalBattles)
	assert.Equal(t, int64(2), stats.Wins)
	assert.Equal(t, int64(1), stats.Losses)
	assert.Equal(t, int64(1), stats.Surrenders)
	assert.InDelta(t, 0.666, stats.WinRate, 0.01)
}

func TestPagination(t *testing.T) {
	p := NewPagination(0, 500)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 100, p.PageSize)
	assert.Equal(t, 0, p.Offset())
	assert.Equal(t, 20, NewPagination(3, 10).Offset())
	assert.Equal(t, 10, NewPagination(1, 0).PageSize)

	last := NewPagination(2, 10)
	last.Total = 20
	assert.False(t, last.HasMore())
}
