package core

import "context"

// ActivityProvider is the interface all activity sources must implement.
type ActivityProvider interface {
	// Name returns the source identifier (e.g., "dashboard", "gateway", "session").
	Name() string

	// List returns every entry the source currently knows about.
	// A source with nothing to report returns no entries and a nil error.
	List(ctx context.Context) ([]ActivityEntry, error)
}
