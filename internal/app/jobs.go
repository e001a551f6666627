package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/chatpe/chatpe-server/internal/config"
	applog "github.com/chatpe/chatpe-server/internal/log"
)

func every(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}

// newScheduler registers the periodic prune, flush and challenge sweep jobs.
func (a *App) newScheduler(cfg config.Config) *cron.Cron {
	logger := applog.CronLogger(a.log)
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	jobs := []struct {
		schedule string
		run      func()
	}{
		{every(cfg.PruneInterval), a.pruneRooms},
		{every(cfg.FlushInterval), a.flushRooms},
		{every(cfg.SweepInterval), a.sweepChallenges},
	}
	for _, job := range jobs {
		if _, err := c.AddFunc(job.schedule, job.run); err != nil {
			// Intervals are validated before we get here.
			a.log.Error().Err(err).Str("schedule", job.schedule).Msg("failed to schedule job")
		}
	}
	return c
}

func (a *App) pruneRooms() {
	if n := a.hub.PruneAll(); n > 0 {
		a.log.Debug().Int("removed", n).Msg("pruned expired messages")
	}
}

func (a *App) flushRooms() {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	saved, err := a.hub.Flush(ctx)
	if err != nil {
		a.log.Warn().Err(err).Int("saved", saved).Msg("room flush incomplete")
		return
	}
	if saved > 0 {
		a.log.Debug().Int("saved", saved).Msg("room snapshots flushed")
	}
}

func (a *App) sweepChallenges() {
	if n := a.auth.SweepChallenges(); n > 0 {
		a.log.Debug().Int("removed", n).Msg("swept expired challenges")
	}
}
