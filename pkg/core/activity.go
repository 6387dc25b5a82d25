package core

import "time"

// Activity sources.
const (
	SourceDashboard = "dashboard"
	SourceGateway   = "gateway"
	SourceSession   = "session"
)

// Sources lists the activity sources in merge order.
var Sources = []string{SourceDashboard, SourceGateway, SourceSession}

// TimestampLayout is the format every activity source emits so that
// timestamps sort lexically.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// NormalizeTimestamp rewrites an RFC 3339 timestamp, with any offset or
// fractional precision, into TimestampLayout. Other strings are returned
// unchanged.
func NormalizeTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return t.UTC().Format(TimestampLayout)
}

// ActivityEntry is the normalized shape of one activity feed item.
type ActivityEntry struct {
	Timestamp  string `json:"timestamp"`
	Action     string `json:"action"`
	Target     string `json:"target,omitempty"`
	Agent      string `json:"agent,omitempty"`
	Status     string `json:"status,omitempty"`
	Details    any    `json:"details,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Source     string `json:"source"`
}
