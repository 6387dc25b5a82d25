package activity

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"

	"github.com/modoterra/gatewatch/pkg/core"
)

const lockRetryDelay = 25 * time.Millisecond

// Journal is the append-only JSONL activity log written by the dashboard and
// by `gatewatch log`.
type Journal struct {
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// NewJournal creates a journal backed by the file at path.
func NewJournal(path string, logger *slog.Logger) *Journal {
	return &Journal{path: path, logger: logger, now: time.Now}
}

// Name implements core.ActivityProvider.
func (j *Journal) Name() string { return core.SourceDashboard }

// Path returns the journal file path.
func (j *Journal) Path() string { return j.path }

// List reads every well-formed record in the journal. A missing journal has
// no entries.
func (j *Journal) List(ctx context.Context) ([]core.ActivityEntry, error) {
	f, err := os.Open(j.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var entries []core.ActivityEntry
	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return entries, err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		entry, ok := decodeJournalLine(line)
		if !ok {
			skipped++
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("read journal: %w", err)
	}
	if skipped > 0 {
		j.logger.Debug("journal lines skipped", "path", j.path, "count", skipped)
	}
	return entries, nil
}

// Append fills in a missing timestamp and source, then writes the entry as
// one line at the end of the journal. Writers are serialized with a lock
// file next to the journal.
func (j *Journal) Append(ctx context.Context, entry core.ActivityEntry) (core.ActivityEntry, error) {
	if entry.Action == "" {
		return entry, fmt.Errorf("activity entry requires an action")
	}
	if entry.Timestamp == "" {
		entry.Timestamp = j.now().UTC().Format(core.TimestampLayout)
	} else {
		entry.Timestamp = core.NormalizeTimestamp(entry.Timestamp)
	}
	if entry.Source == "" {
		entry.Source = core.SourceDashboard
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return entry, fmt.Errorf("marshal entry: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return entry, fmt.Errorf("create journal dir: %w", err)
	}

	lock := flock.New(j.path + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return entry, fmt.Errorf("lock journal: %w", err)
	}
	if !locked {
		return entry, fmt.Errorf("lock journal: not acquired")
	}
	defer lock.Unlock()

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return entry, fmt.Errorf("open journal: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return entry, fmt.Errorf("write journal: %w", err)
	}
	if err := f.Close(); err != nil {
		return entry, fmt.Errorf("close journal: %w", err)
	}
	return entry, nil
}

// decodeJournalLine projects a free-form journal record onto an entry.
// Older writers used "type" and "content" in place of "action" and "details".
func decodeJournalLine(line []byte) (core.ActivityEntry, bool) {
	var m map[string]any
	if err := json.Unmarshal(line, &m); err != nil {
		return core.ActivityEntry{}, false
	}

	entry := core.ActivityEntry{
		Timestamp: core.NormalizeTimestamp(stringField(m, "timestamp")),
		Action:    stringField(m, "action"),
		Target:    stringField(m, "target"),
		Agent:     stringField(m, "agent"),
		Status:    stringField(m, "status"),
		Details:   m["details"],
		Source:    stringField(m, "source"),
	}
	if entry.Action == "" {
		entry.Action = stringField(m, "type")
	}
	if entry.Details == nil {
		entry.Details = m["content"]
	}
	entry.DurationMs = intField(m, "duration_ms")
	if entry.Source == "" {
		entry.Source = core.SourceDashboard
	}
	return entry, true
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		data, _ := json.Marshal(v)
		return string(data)
	}
}

func intField(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}
