package cron

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DefaultSweepTimeout bounds one sweep when no timeout is configured.
const DefaultSweepTimeout = 30 * time.Second

// InitSweepWorker registers the sweeper on the scheduler at the given cadence.
// Each tick runs under its own timeout derived from ctx; failures are logged
// and the next tick proceeds normally.
func InitSweepWorker(ctx context.Context, sched Scheduler, sweeper *Sweeper, spec string, timeout time.Duration, log *zap.Logger) error {
	if err := ValidateSchedule(spec); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = DefaultSweepTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	return sched.Schedule(spec, func() {
		if ctx.Err() != nil {
			return
		}
		tickCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		res, err := sweeper.Sweep(tickCtx)
		switch {
		case errors.Is(err, ErrSweepInProgress):
			log.Warn("sweep skipped, previous sweep still running")
		case err != nil:
			log.Error("sweep failed", zap.Error(err), zap.Int("due", res.Due))
		case res.Due > 0:
			log.Info("sweep completed",
				zap.Int("due", res.Due),
				zap.Int("published", res.Published),
				zap.Int("publishFailed", res.PublishFailed),
				zap.Int("marked", res.Marked),
				zap.Int("markFailed", res.MarkFailed),
				zap.Duration("took", res.Duration),
			)
		default:
			log.Debug("sweep completed, nothing due")
		}
	})
}
