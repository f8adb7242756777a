package sshfx

import (
	"context"

	"github.com/robfig/cron"
	"github.com/sirupsen/logrus"
	"go.uber.org/fx"

	"github.com/yurykabanov/transferd/pkg/sshpool"
)

const sweepSchedule = "@every 1m"

func NewSweepCron() *cron.Cron {
	return cron.New()
}

// RunIdleSweep registers the Connection Pool's idle-session eviction on
// the cron schedule and starts it with the app, mirroring the teacher's
// BackupManager.Run cron-registration idiom.
func RunIdleSweep(lc fx.Lifecycle, c *cron.Cron, pool *sshpool.Pool, logger *logrus.Logger) error {
	if err := c.AddFunc(sweepSchedule, pool.SweepIdle); err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			c.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			c.Stop()
			return nil
		},
	})

	return nil
}
