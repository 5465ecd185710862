package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper removes rooms whose last activity is before cutoff and returns
// their codes. *hub.Hub satisfies it.
type Sweeper interface {
	Sweep(ctx context.Context, cutoff time.Time) ([]string, error)
}

type Reaper struct {
	sweeper Sweeper
	idle    time.Duration
	log     *zap.Logger
	now     func() time.Time
	cron    *cron.Cron
}

func New(s Sweeper, idle time.Duration, log *zap.Logger) *Reaper {
	return &Reaper{sweeper: s, idle: idle, log: log, now: time.Now}
}

// Run sweeps once.
func (r *Reaper) Run(ctx context.Context) ([]string, error) {
	codes, err := r.sweeper.Sweep(ctx, r.now().Add(-r.idle))
	if err != nil {
		return nil, err
	}
	if len(codes) > 0 {
		r.log.Info("expired idle rooms", zap.Strings("room_ids", codes), zap.Duration("idle", r.idle))
	}
	return codes, nil
}

// Start schedules Run until ctx is cancelled or Stop is called.
func (r *Reaper) Start(ctx context.Context, schedule string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(schedule, func() {
		sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if _, err := r.Run(sctx); err != nil && ctx.Err() == nil {
			r.log.Warn("idle room sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	r.cron = c
	c.Start()
	r.log.Info("idle room reaper started", zap.String("schedule", schedule), zap.Duration("idle", r.idle))
	return nil
}

func (r *Reaper) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}
