package telemetry

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modoterra/gatewatch/pkg/core"
)

func record(ts, msg string) core.LogRecord {
	return core.LogRecord{Timestamp: ts, Level: "INFO", Message: msg, Category: Classify(msg)}
}

func TestBufferDedup(t *testing.T) {
	b := NewBuffer(0)

	first, ok := b.Insert(record("T1", "tool start"))
	require.True(t, ok)
	assert.Equal(t, int64(1), first.ID)

	_, ok = b.Insert(record("T1", "tool start"))
	assert.False(t, ok, "same timestamp and message is a duplicate")

	_, ok = b.Insert(record("T2", "tool start"))
	assert.True(t, ok, "different timestamp is not a duplicate")

	assert.Equal(t, 2, b.Len())
}

func TestBufferDedupUsesMessagePrefix(t *testing.T) {
	b := NewBuffer(0)
	prefix := strings.Repeat("m", 100)

	_, ok := b.Insert(record("T1", prefix+" first tail"))
	require.True(t, ok)
	_, ok = b.Insert(record("T1", prefix+" second tail"))
	assert.False(t, ok, "only the first 100 characters take part in the key")

	_, ok = b.Insert(record("T1", "x"+prefix))
	assert.True(t, ok)
}

func TestBufferIDsSurviveClear(t *testing.T) {
	b := NewBuffer(0)
	var last int64
	for i := 0; i < 3; i++ {
		e, ok := b.Insert(record(fmt.Sprintf("T%d", i), "run start"))
		require.True(t, ok)
		assert.Greater(t, e.ID, last)
		last = e.ID
	}

	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, last, b.LastID())

	e, ok := b.Insert(record("T0", "run start"))
	require.True(t, ok, "cleared keys no longer dedup")
	assert.Equal(t, last+1, e.ID)
}

func TestBufferBoundedRetention(t *testing.T) {
	b := NewBuffer(0)
	for i := 1; i <= 600; i++ {
		_, ok := b.Insert(record(fmt.Sprintf("T%04d", i), "tool start"))
		require.True(t, ok)
		require.LessOrEqual(t, b.Len(), Capacity)
	}

	entries := b.Snapshot()
	require.Len(t, entries, Capacity)
	assert.Equal(t, int64(101), entries[0].ID, "oldest survivor follows every evicted entry")
	assert.Equal(t, int64(600), entries[len(entries)-1].ID)

	_, ok := b.Insert(record("T0001", "tool start"))
	assert.True(t, ok, "evicted keys are forgotten")
}

func TestBufferListSince(t *testing.T) {
	b := NewBuffer(0)
	for i := 1; i <= 10; i++ {
		b.Insert(record(fmt.Sprintf("T%02d", i), "tool start"))
	}

	got := b.ListSince(6, 0)
	require.Len(t, got, 4)
	assert.Equal(t, int64(7), got[0].ID)

	got = b.ListSince(0, 3)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{8, 9, 10}, ids(got), "limit keeps the most recent")

	assert.Empty(t, b.ListSince(10, 5))
}

func TestBufferPause(t *testing.T) {
	b := NewBuffer(0)
	assert.False(t, b.Paused())
	assert.True(t, b.TogglePause())
	assert.True(t, b.Paused())
	assert.False(t, b.TogglePause())
	assert.True(t, b.SetPaused(true))
	assert.True(t, b.SetPaused(true))
}

func TestBufferConcurrentInsert(t *testing.T) {
	b := NewBuffer(0)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				b.Insert(record(fmt.Sprintf("W%d-%d", w, i), "tool start"))
				b.ListSince(0, 10)
			}
		}(w)
	}
	wg.Wait()

	entries := b.Snapshot()
	require.Len(t, entries, 400)
	for i := 1; i < len(entries); i++ {
		assert.Greater(t, entries[i].ID, entries[i-1].ID)
	}
	assert.Equal(t, int64(400), b.LastID())
}

func ids(entries []core.RetainedEntry) []int64 {
	out := make([]int64, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}
