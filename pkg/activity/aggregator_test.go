package activity

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modoterra/gatewatch/pkg/core"
)

type fakeProvider struct {
	name    string
	entries []core.ActivityEntry
	err     error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) List(context.Context) ([]core.ActivityEntry, error) {
	return f.entries, f.err
}

func feedFixture() *Aggregator {
	dashboard := &fakeProvider{name: core.SourceDashboard, entries: []core.ActivityEntry{
		{Agent: "atlas", Action: "a", Timestamp: "2026-02-10T10:00:03.000Z", Source: core.SourceDashboard},
		{Agent: "main", Action: "b", Timestamp: "2026-02-10T10:00:02.000Z", Source: core.SourceDashboard},
	}}
	gateway := &fakeProvider{name: core.SourceGateway, entries: []core.ActivityEntry{
		{Agent: "atlas", Action: "b", Timestamp: "2026-02-10T10:00:01.000Z", Source: core.SourceGateway},
	}}
	return NewAggregator(testLogger(), dashboard, gateway)
}

func TestQueryFilterAndPaginate(t *testing.T) {
	agg := feedFixture()

	page := agg.Query(context.Background(), Query{Agent: "atlas"})
	require.Len(t, page.Entries, 2)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, "2026-02-10T10:00:03.000Z", page.Entries[0].Timestamp)
	assert.Equal(t, "2026-02-10T10:00:01.000Z", page.Entries[1].Timestamp)

	page = agg.Query(context.Background(), Query{Agent: "atlas", Limit: 1})
	require.Len(t, page.Entries, 1)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, "2026-02-10T10:00:03.000Z", page.Entries[0].Timestamp)

	page = agg.Query(context.Background(), Query{Agent: "atlas", Limit: 1, Offset: 1})
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "2026-02-10T10:00:01.000Z", page.Entries[0].Timestamp)

	page = agg.Query(context.Background(), Query{Offset: 10})
	assert.Empty(t, page.Entries)
	assert.NotNil(t, page.Entries)
	assert.Equal(t, 3, page.Total)
}

func TestQueryActionAndSource(t *testing.T) {
	agg := feedFixture()

	page := agg.Query(context.Background(), Query{Action: "b"})
	assert.Equal(t, 2, page.Total)

	page = agg.Query(context.Background(), Query{Source: core.SourceGateway})
	assert.Equal(t, 1, page.Total)
	assert.Contains(t, page.Sources, core.SourceGateway)
	assert.NotContains(t, page.Sources, core.SourceDashboard)
}

func TestQuerySourceStatuses(t *testing.T) {
	agg := NewAggregator(testLogger(),
		&fakeProvider{name: core.SourceDashboard},
		&fakeProvider{name: core.SourceGateway, err: errors.New("permission denied")},
		&fakeProvider{name: core.SourceSession, entries: []core.ActivityEntry{{Action: "session", Timestamp: "t"}}},
	)

	page := agg.Query(context.Background(), Query{})
	assert.Equal(t, StatusEmpty, page.Sources[core.SourceDashboard].Status)
	assert.Equal(t, StatusReadError, page.Sources[core.SourceGateway].Status)
	assert.Equal(t, "permission denied", page.Sources[core.SourceGateway].Error)
	assert.Equal(t, SourceResult{Status: StatusOK, Count: 1}, page.Sources[core.SourceSession])
	assert.Equal(t, 1, page.Total)
}

func TestQueryLimitBounds(t *testing.T) {
	entries := make([]core.ActivityEntry, 600)
	for i := range entries {
		entries[i] = core.ActivityEntry{Action: "x", Timestamp: "t"}
	}
	agg := NewAggregator(testLogger(), &fakeProvider{name: core.SourceDashboard, entries: entries})

	assert.Len(t, agg.Query(context.Background(), Query{}).Entries, DefaultLimit)
	assert.Len(t, agg.Query(context.Background(), Query{Limit: 10_000}).Entries, MaxLimit)
}

func TestQueryJournalRoundTrip(t *testing.T) {
	j := NewJournal(filepath.Join(t.TempDir(), "activity.jsonl"), testLogger())
	_, err := j.Append(context.Background(), core.ActivityEntry{Action: "deploy", Agent: "atlas"})
	require.NoError(t, err)

	agg := NewAggregator(testLogger(), j)
	page := agg.Query(context.Background(), Query{Agent: "atlas"})
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "deploy", page.Entries[0].Action)
	assert.Equal(t, core.SourceDashboard, page.Entries[0].Source)
}

func TestQueryOrdersJournalAgainstGateway(t *testing.T) {
	dir := t.TempDir()
	journalPath := filepath.Join(dir, "activity.jsonl")
	writeFile(t, journalPath,
		`{"timestamp":"2026-02-10T12:30:00+02:00","action":"offset"}`,
		`{"timestamp":"2026-02-10T11:00:00Z","action":"whole-second"}`,
	)
	g, logPath := newTestGateway(t)
	writeFile(t, logPath,
		`{"0":"run start: r1","time":"2026-02-10T11:00:00.500Z"}`,
		`{"0":"run done: r1","time":"2026-02-10T10:00:00.000Z"}`,
	)

	agg := NewAggregator(testLogger(), NewJournal(journalPath, testLogger()), g)
	page := agg.Query(context.Background(), Query{})

	var actions []string
	for _, e := range page.Entries {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{ActionRunStart, "whole-second", "offset", ActionRunEnd}, actions)
}
