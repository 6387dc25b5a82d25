package activity

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modoterra/gatewatch/pkg/core"
)

func sessionLine(key string, age time.Duration, model string) string {
	return fmt.Sprintf(`"%s":{"updatedAt":%d,"model":%q}`, key, testNow.Add(-age).UnixMilli(), model)
}

func TestSessionSource(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "agents", "atlas", "sessions", "sessions.json"),
		"{"+sessionLine("agent:atlas:main", 2*time.Minute, "claude-sonnet")+","+
			sessionLine("agent:atlas:cron:nightly", 3*time.Hour, "")+","+
			sessionLine("agent:main:run:42", 30*time.Minute, "")+","+
			sessionLine("agent:atlas:old", 48*time.Hour, "")+","+
			sessionLine("bare", 10*time.Second, "")+","+
			`"weird":"not an object"}`)
	writeFile(t, filepath.Join(root, "agents", "broken", "sessions", "sessions.json"), "{nope")

	s := NewSessionSource(root, 0, testLogger())
	s.SetClock(func() time.Time { return testNow })

	entries, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 4)

	byKey := map[string]core.ActivityEntry{}
	for _, e := range entries {
		byKey[e.Target] = e
	}

	sess := byKey["agent:atlas:main"]
	assert.Equal(t, ActionSession, sess.Action)
	assert.Equal(t, "atlas", sess.Agent)
	assert.Equal(t, "active", sess.Status)
	assert.Equal(t, map[string]string{"age": "2m ago", "model": "claude-sonnet"}, sess.Details)
	assert.Equal(t, "2026-02-10T11:58:00.000Z", sess.Timestamp)
	assert.Equal(t, core.SourceSession, sess.Source)

	cron := byKey["agent:atlas:cron:nightly"]
	assert.Equal(t, ActionCron, cron.Action)
	assert.Equal(t, "idle", cron.Status)
	assert.Equal(t, map[string]string{"age": "3h 0m ago"}, cron.Details)

	spawn := byKey["agent:main:run:42"]
	assert.Equal(t, ActionSpawn, spawn.Action)
	assert.Equal(t, "main", spawn.Agent)

	bare := byKey["bare"]
	assert.Equal(t, "atlas", bare.Agent)
	assert.Equal(t, map[string]string{"age": "just now"}, bare.Details)
}

func TestSessionSourceAllUnreadable(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "agents", "broken", "sessions", "sessions.json"), "{nope")

	s := NewSessionSource(root, time.Hour, testLogger())
	_, err := s.List(context.Background())
	assert.Error(t, err)
}

func TestSessionSourceNoAgents(t *testing.T) {
	s := NewSessionSource(t.TempDir(), time.Hour, testLogger())

	entries, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{2*time.Hour + 3*time.Minute, "2h 3m ago"},
		{28 * time.Hour, "1d 4h ago"},
	}
	for _, tt := range tests {
		if got := FormatAge(tt.d); got != tt.want {
			t.Errorf("FormatAge(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
