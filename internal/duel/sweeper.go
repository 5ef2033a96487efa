package duel

import (
	"context"
	"fmt"
	"time"

	"github.com/chess-vn/slduel/pkg/logging"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

const DefaultSweepInterval = 30 * time.Second

// Sweeper periodically resolves overdue duels and expires stale invites. It
// runs alongside the lazy checks done on reads; both go through the same
// conditional writes, so overlapping runs are harmless.
type Sweeper struct {
	service   *Service
	interval  time.Duration
	scheduler gocron.Scheduler
}

func NewSweeper(service *Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		service:  service,
		interval: interval,
	}
}

func (sw *Sweeper) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(sw.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), sw.interval)
			defer cancel()
			sw.SweepOnce(ctx)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	sw.scheduler = sched
	sched.Start()
	logging.Info("duel sweeper started", zap.Duration("interval", sw.interval))
	return nil
}

func (sw *Sweeper) Stop() error {
	if sw.scheduler == nil {
		return nil
	}
	return sw.scheduler.Shutdown()
}

// SweepOnce runs a single pass and reports the number of timed out duels and
// expired invites.
func (sw *Sweeper) SweepOnce(ctx context.Context) (int, int) {
	resolved, err := sw.service.SweepTimeouts(ctx)
	if err != nil {
		logging.Error("timeout sweep failed", zap.Error(err))
	}
	expired, err := sw.service.ExpireInvites(ctx)
	if err != nil {
		logging.Error("invite sweep failed", zap.Error(err))
	}
	if resolved > 0 || expired > 0 {
		logging.Debug("duel sweep finished",
			zap.Int("timedOut", resolved),
			zap.Int("expired", expired),
		)
	}
	return resolved, expired
}
