package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/modoterra/gatewatch/pkg/core"
)

const (
	// DefaultSessionMaxAge drops sessions not updated within this period.
	DefaultSessionMaxAge = 24 * time.Hour

	// sessionActiveWithin marks a session active rather than idle.
	sessionActiveWithin = 5 * time.Minute

	sessionGlob = "agents/*/sessions/sessions.json"
)

// Session activity actions.
const (
	ActionCron    = "cron"
	ActionSpawn   = "spawn"
	ActionSession = "session"
)

type sessionSnapshot struct {
	UpdatedAt int64  `json:"updatedAt"`
	Model     string `json:"model"`
}

// SessionSource derives activity from the gateway's per-agent session
// snapshots.
type SessionSource struct {
	root   string
	maxAge time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewSessionSource creates a source scanning <openclawDir>/agents/*/sessions.
func NewSessionSource(openclawDir string, maxAge time.Duration, logger *slog.Logger) *SessionSource {
	if maxAge <= 0 {
		maxAge = DefaultSessionMaxAge
	}
	return &SessionSource{root: openclawDir, maxAge: maxAge, logger: logger, now: time.Now}
}

// SetClock replaces the clock used for age calculations.
func (s *SessionSource) SetClock(now func() time.Time) { s.now = now }

// Name implements core.ActivityProvider.
func (s *SessionSource) Name() string { return core.SourceSession }

// List implements core.ActivityProvider. Unreadable snapshot files are
// skipped; the source only fails when every snapshot fails.
func (s *SessionSource) List(ctx context.Context) ([]core.ActivityEntry, error) {
	paths, err := doublestar.FilepathGlob(filepath.Join(s.root, filepath.FromSlash(sessionGlob)))
	if err != nil {
		return nil, fmt.Errorf("glob sessions: %w", err)
	}

	now := s.now()
	var entries []core.ActivityEntry
	var firstErr error
	failed := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return entries, err
		}
		snaps, err := readSessions(path)
		if err != nil {
			s.logger.Warn("session snapshot unreadable", "path", path, "err", err)
			if firstErr == nil {
				firstErr = err
			}
			failed++
			continue
		}
		dirAgent := filepath.Base(filepath.Dir(filepath.Dir(path)))
		for key, snap := range snaps {
			if entry, ok := s.sessionEntry(key, snap, dirAgent, now); ok {
				entries = append(entries, entry)
			}
		}
	}
	if failed > 0 && failed == len(paths) {
		return nil, firstErr
	}
	return entries, nil
}

func (s *SessionSource) sessionEntry(key string, snap sessionSnapshot, dirAgent string, now time.Time) (core.ActivityEntry, bool) {
	if snap.UpdatedAt <= 0 {
		return core.ActivityEntry{}, false
	}
	updated := time.UnixMilli(snap.UpdatedAt)
	age := now.Sub(updated)
	if age > s.maxAge {
		return core.ActivityEntry{}, false
	}

	action := ActionSession
	switch {
	case strings.Contains(key, "cron:"):
		action = ActionCron
	case strings.Contains(key, ":run:"):
		action = ActionSpawn
	}

	agent := dirAgent
	if parts := strings.Split(key, ":"); len(parts) > 1 && parts[1] != "" {
		agent = parts[1]
	}

	status := "idle"
	if age < sessionActiveWithin {
		status = "active"
	}

	details := map[string]string{"age": FormatAge(age)}
	if snap.Model != "" {
		details["model"] = snap.Model
	}

	return core.ActivityEntry{
		Timestamp: updated.UTC().Format(core.TimestampLayout),
		Action:    action,
		Target:    key,
		Agent:     agent,
		Status:    status,
		Details:   details,
		Source:    core.SourceSession,
	}, true
}

func readSessions(path string) (map[string]sessionSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	snaps := make(map[string]sessionSnapshot, len(raw))
	for key, msg := range raw {
		var snap sessionSnapshot
		if json.Unmarshal(msg, &snap) == nil {
			snaps[key] = snap
		}
	}
	return snaps, nil
}

// FormatAge renders a duration the way the feed shows session age.
func FormatAge(d time.Duration) string {
	if d < time.Minute {
		return "just now"
	}
	mins := int(d / time.Minute)
	if mins < 60 {
		return fmt.Sprintf("%dm ago", mins)
	}
	hours := mins / 60
	if hours < 24 {
		return fmt.Sprintf("%dh %dm ago", hours, mins%60)
	}
	return fmt.Sprintf("%dd %dh ago", hours/24, hours%24)
}
