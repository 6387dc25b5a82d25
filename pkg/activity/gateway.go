package activity

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/modoterra/gatewatch/pkg/core"
	"github.com/modoterra/gatewatch/pkg/providers/logs/filetail"
	"github.com/modoterra/gatewatch/pkg/telemetry"
)

// DefaultGatewayWindow is the number of trailing log lines scanned for
// activity events.
const DefaultGatewayWindow = 2000

// Gateway activity actions.
const (
	ActionRunStart  = "agent_run_start"
	ActionRunEnd    = "agent_run_end"
	ActionToolStart = "tool_start"
	ActionToolEnd   = "tool_end"
	ActionMessage   = "message"
)

// gatewayPatterns are checked in order, ignoring case. Keywords are ASCII.
var gatewayPatterns = []struct {
	action   string
	keywords []string
}{
	{ActionRunStart, []string{"run start", "run_start", "starting run"}},
	{ActionRunEnd, []string{"run end", "run done", "run complete", "run finished", "run_end"}},
	{ActionToolStart, []string{"tool start", "tool_start", "tool call", "invoking tool"}},
	{ActionToolEnd, []string{"tool end", "tool done", "tool result", "tool_end", "tool finished"}},
	{ActionMessage, []string{"sendmessage", "message sent", "message delivered", "message received", "inbound message", "outbound message"}},
}

var (
	kvPattern    = regexp.MustCompile(`(\w+)=("[^"]*"|\S+)`)
	durationTrim = regexp.MustCompile(`[^0-9.]`)
)

// GatewaySource derives activity from the tail of the current day's gateway
// log.
type GatewaySource struct {
	dir    string
	window int
	agents func() []string
	logger *slog.Logger
	now    func() time.Time
}

// NewGatewaySource creates a source reading <logDir>/openclaw-<date>.log.
// agents returns the known agent ids used for attribution; it may be nil.
func NewGatewaySource(logDir string, window int, agents func() []string, logger *slog.Logger) *GatewaySource {
	if window <= 0 {
		window = DefaultGatewayWindow
	}
	return &GatewaySource{dir: logDir, window: window, agents: agents, logger: logger, now: time.Now}
}

// SetClock replaces the clock used to pick the day log.
func (g *GatewaySource) SetClock(now func() time.Time) { g.now = now }

// Name implements core.ActivityProvider.
func (g *GatewaySource) Name() string { return core.SourceGateway }

// List implements core.ActivityProvider.
func (g *GatewaySource) List(ctx context.Context) ([]core.ActivityEntry, error) {
	path := filetail.DayLogPath(g.dir, g.now())
	lines, err := filetail.ReadLastLines(path, g.window)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read gateway log: %w", err)
	}

	var known []string
	if g.agents != nil {
		known = g.agents()
	}

	var entries []core.ActivityEntry
	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return entries, err
		}
		rec, ok := telemetry.Decode(line)
		if !ok {
			continue
		}
		if entry, ok := gatewayEntry(rec, known); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// gatewayEntry maps one decoded record onto an activity event.
func gatewayEntry(rec core.LogRecord, known []string) (core.ActivityEntry, bool) {
	action, rest := "", ""
	for _, p := range gatewayPatterns {
		for _, kw := range p.keywords {
			if i := indexFold(rec.Message, kw); i >= 0 {
				action = p.action
				rest = rec.Message[i+len(kw):]
				break
			}
		}
		if action != "" {
			break
		}
	}
	if action == "" {
		return core.ActivityEntry{}, false
	}

	kv := keyValues(rec.Message)
	entry := core.ActivityEntry{
		Timestamp: core.NormalizeTimestamp(rec.Timestamp),
		Action:    action,
		Target:    firstOf(kv, "tool", "toolName", "channel", "to", "runId"),
		Agent:     matchAgent(rec.Message, known, kv),
		Status:    "ok",
		Details:   rec.Message,
		Source:    core.SourceGateway,
	}
	if entry.Target == "" {
		entry.Target = leadingWord(rest)
	}
	if d := firstOf(kv, "durationMs", "duration_ms", "duration"); d != "" {
		if n, err := strconv.ParseFloat(durationTrim.ReplaceAllString(d, ""), 64); err == nil {
			entry.DurationMs = int64(n)
		}
	}
	if lower := strings.ToLower(rec.Message); strings.Contains(lower, "error") || strings.Contains(lower, "fail") {
		entry.Status = "error"
	}
	return entry, true
}

// indexFold returns the byte offset in s of the first case-insensitive match
// of the ASCII keyword kw, or -1. The offset indexes s, not a lowercased copy.
func indexFold(s, kw string) int {
	for i := 0; i+len(kw) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(kw)], kw) {
			return i
		}
	}
	return -1
}

// matchAgent picks the longest known agent id contained in msg, then an
// explicit agent= token, else "unknown".
func matchAgent(msg string, known []string, kv map[string]string) string {
	best := ""
	for _, id := range known {
		if id != "" && len(id) > len(best) && strings.Contains(msg, id) {
			best = id
		}
	}
	if best != "" {
		return best
	}
	if id := firstOf(kv, "agent", "agentId"); id != "" {
		return id
	}
	return "unknown"
}

func keyValues(msg string) map[string]string {
	kv := make(map[string]string)
	for _, m := range kvPattern.FindAllStringSubmatch(msg, -1) {
		if _, ok := kv[m[1]]; !ok {
			kv[m[1]] = strings.Trim(m[2], `"`)
		}
	}
	return kv
}

func firstOf(kv map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := kv[k]; v != "" {
			return v
		}
	}
	return ""
}

// leadingWord returns the first bare word after a matched keyword, as in
// "tool end: browser".
func leadingWord(s string) string {
	s = strings.TrimLeft(s, " :-")
	fields := strings.Fields(s)
	if len(fields) == 0 || strings.Contains(fields[0], "=") {
		return ""
	}
	return strings.Trim(fields[0], ",.;")
}
