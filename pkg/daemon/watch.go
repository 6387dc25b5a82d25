package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/modoterra/gatewatch/pkg/providers/logs/filetail"
)

// Watcher signals when today's gateway log is written. Signals are
// coalesced and limited to perSecond.
type Watcher struct {
	dir     string
	limiter *rate.Limiter
	pending chan struct{}
	out     chan struct{}
	now     func() time.Time
	logger  *slog.Logger
}

// NewWatcher creates a watcher for the daily logs under dir.
func NewWatcher(dir string, perSecond float64, logger *slog.Logger) *Watcher {
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Watcher{
		dir:     dir,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		pending: make(chan struct{}, 1),
		out:     make(chan struct{}, 1),
		now:     time.Now,
		logger:  logger,
	}
}

// C delivers one value per permitted wake-up.
func (w *Watcher) C() <-chan struct{} {
	return w.out
}

// Run watches the log directory until ctx is cancelled. It fails only when
// the directory cannot be watched.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching gateway logs", "dir", w.dir)

	go w.release(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.relevant(ev) {
				select {
				case w.pending <- struct{}{}:
				default:
				}
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "dir", w.dir, "err", err)
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return false
	}
	return filepath.Base(ev.Name) == filetail.DayLogName(w.now())
}

// release forwards pending signals at the limiter's pace.
func (w *Watcher) release(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.pending:
			if err := w.limiter.Wait(ctx); err != nil {
				return
			}
			select {
			case w.out <- struct{}{}:
			default:
			}
		}
	}
}
