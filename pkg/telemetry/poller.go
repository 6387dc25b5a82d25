package telemetry

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/modoterra/gatewatch/pkg/core"
	"github.com/modoterra/gatewatch/pkg/providers/logs/filetail"
)

// DefaultWindow is the number of trailing lines read per poll.
const DefaultWindow = 200

// Poll outcomes reported in PollStats.Status.
const (
	PollOK        = "ok"
	PollMissing   = "missing"
	PollReadError = "read_error"
	PollPaused    = "paused"
)

// PollResult is returned by Poll.
type PollResult struct {
	Entries  []core.RetainedEntry `json:"entries"`
	NewCount int                  `json:"newCount"`
	Total    int                  `json:"total"`

	// Inserted holds the entries added by this poll, oldest first.
	Inserted []core.RetainedEntry `json:"-"`
}

// PollStats describes the most recent poll.
type PollStats struct {
	Path       string    `json:"path"`
	At         time.Time `json:"at"`
	Status     string    `json:"status"`
	Lines      int       `json:"lines"`
	Accepted   int       `json:"accepted"`
	Rejected   int       `json:"rejected"`
	Duplicates int       `json:"duplicates"`
	Inserted   int       `json:"inserted"`
	Err        string    `json:"err,omitempty"`
}

// Poller re-reads the tail of the current day's gateway log and feeds the
// interesting lines into a Buffer. No read offset is kept: overlapping
// windows are reconciled by the buffer's dedup key.
type Poller struct {
	dir    string
	buffer *Buffer
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	last PollStats
}

// NewPoller creates a poller for the daily logs under logDir.
func NewPoller(logDir string, buffer *Buffer, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		dir:    logDir,
		buffer: buffer,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the clock used to pick the day's log file.
func (p *Poller) SetClock(now func() time.Time) {
	p.now = now
}

// Buffer returns the buffer this poller inserts into.
func (p *Poller) Buffer() *Buffer {
	return p.buffer
}

// Path returns the log file the next poll will read.
func (p *Poller) Path() string {
	return filetail.DayLogPath(p.dir, p.now())
}

// LastPoll returns statistics for the most recent poll.
func (p *Poller) LastPoll() PollStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Poll reads at most window trailing lines of today's log and inserts the
// accepted records unless the buffer is paused. It returns the full buffer
// and the number of records inserted by this call. A missing or unreadable
// file yields no new entries, not an error. The only error is ctx's, in
// which case the records inserted so far remain buffered.
func (p *Poller) Poll(ctx context.Context, window int) (PollResult, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	path := p.Path()
	stats := PollStats{Path: path, At: p.now(), Status: PollOK}

	lines, err := filetail.ReadLastLines(path, window)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		stats.Status = PollMissing
	case err != nil:
		stats.Status = PollReadError
		stats.Err = err.Error()
		p.logger.Warn("gateway log read failed", "path", path, "err", err)
	}
	stats.Lines = len(lines)

	var inserted []core.RetainedEntry
	var ctxErr error
	for _, line := range lines {
		if ctxErr = ctx.Err(); ctxErr != nil {
			break
		}
		rec, ok := Parse(line)
		if !ok {
			stats.Rejected++
			continue
		}
		stats.Accepted++
		if p.buffer.Paused() {
			stats.Status = PollPaused
			continue
		}
		entry, ok := p.buffer.Insert(rec)
		if !ok {
			stats.Duplicates++
			continue
		}
		inserted = append(inserted, entry)
	}
	stats.Inserted = len(inserted)

	p.mu.Lock()
	p.last = stats
	p.mu.Unlock()

	if len(inserted) > 0 {
		p.logger.Debug("gateway log polled", "path", path, "new", len(inserted), "lines", stats.Lines)
	}

	entries := p.buffer.Snapshot()
	return PollResult{
		Entries:  entries,
		NewCount: len(inserted),
		Total:    len(entries),
		Inserted: inserted,
	}, ctxErr
}
