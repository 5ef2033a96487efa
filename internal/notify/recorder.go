package notify

import (
	"context"
	"errors"

	"github.com/chess-vn/slduel/internal/aws/storage"
	"github.com/chess-vn/slduel/internal/domains/dtos"
	"github.com/chess-vn/slduel/pkg/logging"
	"go.uber.org/zap"
)

// StatsStore counts a duel's outcomes at most once per duel id.
type StatsStore interface {
	RecordDuelResult(ctx context.Context, result dtos.DuelResultEvent) error
}

// LocalRecorder applies duel results to a stats store in process. It stands in
// for the duel-ended function when the server runs without AWS.
type LocalRecorder struct {
	stats StatsStore
}

func NewLocalRecorder(stats StatsStore) *LocalRecorder {
	return &LocalRecorder{stats: stats}
}

func (r *LocalRecorder) RecordDuelResult(ctx context.Context, result dtos.DuelResultEvent) error {
	err := r.stats.RecordDuelResult(ctx, result)
	if errors.Is(err, storage.ErrResultRecorded) {
		logging.Debug("duel result already recorded", zap.String("duelId", result.DuelId))
		return nil
	}
	return err
}
