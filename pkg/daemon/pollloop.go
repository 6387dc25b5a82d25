package daemon

import (
	"context"
	"log/slog"
	"time"
)

// PollLoop tails the gateway log every interval, and whenever the trigger
// channel fires, publishing new entries through the daemon.
type PollLoop struct {
	daemon   *Daemon
	interval time.Duration
	trigger  <-chan struct{}
	logger   *slog.Logger
}

// NewPollLoop creates a poll loop for the given daemon.
func NewPollLoop(d *Daemon, interval time.Duration, logger *slog.Logger) *PollLoop {
	return &PollLoop{daemon: d, interval: interval, logger: logger}
}

// SetTrigger adds an extra wake-up source, typically Watcher.C.
func (pl *PollLoop) SetTrigger(ch <-chan struct{}) {
	pl.trigger = ch
}

// Run starts the poll loop. Blocks until ctx is cancelled.
func (pl *PollLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(pl.interval)
	defer ticker.Stop()

	pl.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pl.tick(ctx)
		case <-pl.trigger:
			pl.tick(ctx)
		}
	}
}

func (pl *PollLoop) tick(ctx context.Context) {
	res, err := pl.daemon.Poll(ctx, 0)
	if err != nil {
		if ctx.Err() == nil {
			pl.logger.Error("poll error", "err", err)
		}
		return
	}
	if res.NewCount > 0 {
		pl.logger.Debug("poll", "new", res.NewCount, "total", res.Total)
	}
}
