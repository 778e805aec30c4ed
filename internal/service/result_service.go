package service

import (
	"context"

	apperrors "github.com/wfunc/card-battle/internal/errors"
	"github.com/wfunc/card-battle/internal/game/battle"
	"github.com/wfunc/card-battle/internal/models"
	"github.com/wfunc/card-battle/internal/repository"
	"go.uber.org/zap"
)

// ResultService 对战结果落库，实现 battle.ResultRecorder
type ResultService struct {
	repos *repository.Manager
	log   *zap.Logger
}

var _ battle.ResultRecorder = (*ResultService)(nil)

// NewResultService 创建对战结果服务
func NewResultService(repos *repository.Manager, log *zap.Logger) *ResultService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ResultService{repos: repos, log: log}
}

// RecordResult 在同一事务中写入结果并累加胜负场
func (s *ResultService) RecordResult(ctx context.Context, r battle.Result) error {
	row := &models.BattleResult{
		SessionID:  r.SessionID,
		WinnerID:   r.WinnerID,
		LoserID:    r.LoserID,
		Reason:     r.Reason,
		TurnNumber: r.TurnNumber,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	err := s.repos.Transaction(ctx, func(tx *repository.Manager) error {
		if err := tx.BattleResult().Create(ctx, row); err != nil {
			return err
		}
		return tx.User().RecordResult(ctx, r.WinnerID, r.LoserID)
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrTransaction, "record battle result")
	}

	s.log.Info("记录对战结果",
		zap.String("session_id", r.SessionID),
		zap.String("winner_id", r.WinnerID),
		zap.String("loser_id", r.LoserID),
		zap.String("reason", r.Reason))
	return nil
}
