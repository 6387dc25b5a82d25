// Package activity merges the dashboard journal, gateway log events, and
// session snapshots into one filtered, newest-first feed.
package activity

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/modoterra/gatewatch/pkg/core"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// SourceStatus classifies the outcome of reading one source.
type SourceStatus string

const (
	StatusOK        SourceStatus = "ok"
	StatusEmpty     SourceStatus = "empty"
	StatusReadError SourceStatus = "read_error"
)

// SourceResult is what one source contributed to a query.
type SourceResult struct {
	Status SourceStatus `json:"status"`
	Count  int          `json:"count"`
	Error  string       `json:"error,omitempty"`

	entries []core.ActivityEntry
}

// Query selects and pages activity entries. Empty string fields match
// everything.
type Query struct {
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
	Agent  string `json:"agent,omitempty"`
	Action string `json:"action,omitempty"`
	Source string `json:"source,omitempty"`
}

// Page is one page of the merged feed.
type Page struct {
	Entries []core.ActivityEntry    `json:"entries"`
	Total   int                     `json:"total"`
	Sources map[string]SourceResult `json:"sources"`
}

// Aggregator merges activity providers.
type Aggregator struct {
	providers []core.ActivityProvider
	logger    *slog.Logger
}

// NewAggregator creates an aggregator over the given providers.
func NewAggregator(logger *slog.Logger, providers ...core.ActivityProvider) *Aggregator {
	return &Aggregator{providers: providers, logger: logger}
}

// Query reads the selected sources concurrently, filters, sorts newest first
// and returns the requested page. A failing source is reported in
// Page.Sources and never blocks the others.
func (a *Aggregator) Query(ctx context.Context, q Query) Page {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	offset := max(q.Offset, 0)

	var selected []core.ActivityProvider
	for _, p := range a.providers {
		if q.Source == "" || q.Source == p.Name() {
			selected = append(selected, p)
		}
	}

	results := make([]SourceResult, len(selected))
	var wg sync.WaitGroup
	for i, p := range selected {
		i, p := i, p
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = a.read(ctx, p)
		}()
	}
	wg.Wait()

	page := Page{Entries: []core.ActivityEntry{}, Sources: make(map[string]SourceResult, len(selected))}
	var matched []core.ActivityEntry
	for i, p := range selected {
		res := results[i]
		for _, e := range res.entries {
			if q.Agent != "" && e.Agent != q.Agent {
				continue
			}
			if q.Action != "" && e.Action != q.Action {
				continue
			}
			matched = append(matched, e)
		}
		res.entries = nil
		page.Sources[p.Name()] = res
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp > matched[j].Timestamp
	})

	page.Total = len(matched)
	if offset < len(matched) {
		end := min(offset+limit, len(matched))
		page.Entries = matched[offset:end]
	}
	return page
}

func (a *Aggregator) read(ctx context.Context, p core.ActivityProvider) SourceResult {
	entries, err := p.List(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			a.logger.Warn("activity source failed", "source", p.Name(), "err", err)
		}
		return SourceResult{Status: StatusReadError, Error: err.Error()}
	}
	if len(entries) == 0 {
		return SourceResult{Status: StatusEmpty}
	}
	return SourceResult{Status: StatusOK, Count: len(entries), entries: entries}
}
