package activity

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modoterra/gatewatch/pkg/core"
)

func TestJournalMissingFile(t *testing.T) {
	j := NewJournal(filepath.Join(t.TempDir(), "activity.jsonl"), testLogger())

	entries, err := j.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJournalSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.jsonl")
	writeFile(t, path,
		`{"timestamp":"2026-02-10T10:00:00.000Z","action":"deploy","agent":"atlas","duration_ms":42}`,
		`{broken`,
		``,
		`{"timestamp":"2026-02-10T10:01:00.000Z","type":"note","content":"legacy","source":"cli"}`,
		`[1,2,3]`,
	)
	j := NewJournal(path, testLogger())

	entries, err := j.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "deploy", entries[0].Action)
	assert.Equal(t, "atlas", entries[0].Agent)
	assert.Equal(t, int64(42), entries[0].DurationMs)
	assert.Equal(t, core.SourceDashboard, entries[0].Source)

	assert.Equal(t, "note", entries[1].Action)
	assert.Equal(t, "legacy", entries[1].Details)
	assert.Equal(t, "cli", entries[1].Source)
}

func TestJournalAppendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "activity.jsonl")
	j := NewJournal(path, testLogger())
	j.now = func() time.Time { return testNow }

	stored, err := j.Append(context.Background(), core.ActivityEntry{Action: "restart", Target: "gateway", Agent: "main"})
	require.NoError(t, err)
	assert.Equal(t, "2026-02-10T12:00:00.000Z", stored.Timestamp)
	assert.Equal(t, core.SourceDashboard, stored.Source)

	_, err = j.Append(context.Background(), core.ActivityEntry{Action: "note", Timestamp: "2026-02-10T12:01:00.000Z", Details: map[string]any{"k": "v"}})
	require.NoError(t, err)

	entries, err := j.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, stored, entries[0])
	assert.Equal(t, map[string]any{"k": "v"}, entries[1].Details)

	_, err = os.Stat(path + ".lock")
	assert.NoError(t, err)
}

func TestJournalAppendRequiresAction(t *testing.T) {
	j := NewJournal(filepath.Join(t.TempDir(), "activity.jsonl"), testLogger())

	_, err := j.Append(context.Background(), core.ActivityEntry{Target: "x"})
	assert.Error(t, err)
}

func TestJournalNormalizesTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.jsonl")
	writeFile(t, path,
		`{"timestamp":"2026-02-10T12:30:00+02:00","action":"offset"}`,
		`{"timestamp":"2026-02-10T11:00:00Z","action":"whole-second"}`,
		`{"timestamp":"yesterday","action":"free-form"}`,
	)
	j := NewJournal(path, testLogger())

	entries, err := j.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "2026-02-10T10:30:00.000Z", entries[0].Timestamp)
	assert.Equal(t, "2026-02-10T11:00:00.000Z", entries[1].Timestamp)
	assert.Equal(t, "yesterday", entries[2].Timestamp)

	stored, err := j.Append(context.Background(), core.ActivityEntry{Action: "x", Timestamp: "2026-02-10T09:00:00-01:00"})
	require.NoError(t, err)
	assert.Equal(t, "2026-02-10T10:00:00.000Z", stored.Timestamp)
}
