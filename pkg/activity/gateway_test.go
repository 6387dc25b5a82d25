package activity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modoterra/gatewatch/pkg/core"
	"github.com/modoterra/gatewatch/pkg/providers/logs/filetail"
)

func newTestGateway(t *testing.T, agents ...string) (*GatewaySource, string) {
	t.Helper()
	dir := t.TempDir()
	g := NewGatewaySource(dir, 0, func() []string { return agents }, testLogger())
	g.SetClock(func() time.Time { return testNow })
	return g, filetail.DayLogPath(dir, testNow)
}

func TestGatewayMissingLog(t *testing.T) {
	g, _ := newTestGateway(t)

	entries, err := g.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGatewayEvents(t *testing.T) {
	g, path := newTestGateway(t, "atlas", "main", "main-2")
	writeFile(t, path,
		`{"0":"{\"subsystem\":\"agent\"}","1":"embedded run start runId=r1 agent=atlas","time":"2026-02-10T11:00:00.000Z"}`,
		`{"0":"tool end: browser durationMs=120","time":"2026-02-10T11:00:01.000Z"}`,
		`{"0":"tool_start tool=exec failed for main-2","time":"2026-02-10T11:00:02.000Z"}`,
		`{"0":"heartbeat ok","time":"2026-02-10T11:00:03.000Z"}`,
		`not json`,
		`{"0":"run done runId=r1","time":"2026-02-10T11:00:04+00:00"}`,
	)

	entries, err := g.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, core.ActivityEntry{
		Timestamp: "2026-02-10T11:00:00.000Z",
		Action:    ActionRunStart,
		Target:    "r1",
		Agent:     "atlas",
		Status:    "ok",
		Details:   "embedded run start runId=r1 agent=atlas",
		Source:    core.SourceGateway,
	}, entries[0])

	assert.Equal(t, ActionToolEnd, entries[1].Action)
	assert.Equal(t, "browser", entries[1].Target)
	assert.Equal(t, int64(120), entries[1].DurationMs)
	assert.Equal(t, "unknown", entries[1].Agent)

	assert.Equal(t, ActionToolStart, entries[2].Action)
	assert.Equal(t, "exec", entries[2].Target)
	assert.Equal(t, "main-2", entries[2].Agent)
	assert.Equal(t, "error", entries[2].Status)

	assert.Equal(t, ActionRunEnd, entries[3].Action)
	assert.Equal(t, "2026-02-10T11:00:04.000Z", entries[3].Timestamp)
}

func TestMatchAgentFallsBackToToken(t *testing.T) {
	assert.Equal(t, "scout", matchAgent("run start agent=scout", nil, keyValues("run start agent=scout")))
	assert.Equal(t, "unknown", matchAgent("run start", []string{"atlas"}, nil))
}

func TestGatewayNonASCIIBeforeKeyword(t *testing.T) {
	g, path := newTestGateway(t, "atlas")
	writeFile(t, path,
		`{"0":"ȺȺȺȺȺȺȺȺȺȺrun start: atlas","time":"2026-02-10T11:00:00.000Z"}`,
		`{"0":"ȺȺ TOOL END: Browser","time":"2026-02-10T11:00:01.000Z"}`,
	)

	entries, err := g.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ActionRunStart, entries[0].Action)
	assert.Equal(t, "atlas", entries[0].Target)
	assert.Equal(t, ActionToolEnd, entries[1].Action)
	assert.Equal(t, "Browser", entries[1].Target)
}

func TestIndexFold(t *testing.T) {
	assert.Equal(t, 0, indexFold("Run Start", "run start"))
	assert.Equal(t, 20, indexFold("ȺȺȺȺȺȺȺȺȺȺrun start", "run start"))
	assert.Equal(t, -1, indexFold("ȺȺ", "run start"))
	assert.Equal(t, -1, indexFold("", "tool"))
}
