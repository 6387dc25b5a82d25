// Package telemetry tails the gateway log and turns its JSON lines into
// classified, deduplicated records held in a bounded buffer.
package telemetry

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/modoterra/gatewatch/pkg/core"
)

// interestKeywords gate which messages are worth retaining. A message must
// contain at least one of them after case folding.
var interestKeywords = []string{
	// run lifecycle
	"run start", "run end", "run done", "runid", "agent", "lane", "session",
	// tool lifecycle
	"tool",
	// messaging and delivery
	"message", "deliver", "send", "reply", "inbound", "outbound",
	"telegram", "discord", "whatsapp", "slack", "signal", "channel",
	// provider, model, tokens
	"provider", "model", "token", "anthropic", "openai", "gemini", "claude", "llm",
	// http and network
	"http", "fetch", "request", "response", "websocket", "webhook", "api",
	// errors and retries
	"error", "fail", "retry", "timeout", "exception",
	// streaming
	"stream", "chunk",
}

// shapeKind identifies which layout a gateway record uses for its message.
type shapeKind int

const (
	// shapePlain carries the message directly in field "0" (or "1").
	shapePlain shapeKind = iota
	// shapeNamed carries a JSON-encoded {"subsystem": ...} object in field
	// "0" and the message in its "message" field or in field "1".
	shapeNamed
)

// rawRecord is the subset of a gateway log line this package reads.
type rawRecord struct {
	Zero json.RawMessage `json:"0"`
	One  json.RawMessage `json:"1"`
	Time string          `json:"time"`
	Meta struct {
		LogLevelName string `json:"logLevelName"`
		Date         string `json:"date"`
	} `json:"_meta"`
}

// namedSubsystem is the decoded form of a JSON-encoded field "0".
type namedSubsystem struct {
	Subsystem string `json:"subsystem"`
	Message   string `json:"message"`
}

// recordShape is the result of decoding one line into one of the known
// layouts.
type recordShape struct {
	kind      shapeKind
	subsystem string
	message   string
	timestamp string
	level     string
}

// decode parses a raw line into a recordShape without applying the interest
// filter. It returns false for non-JSON lines and lines without a message.
func decode(line string) (recordShape, bool) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] != '{' {
		return recordShape{}, false
	}

	var rec rawRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return recordShape{}, false
	}

	shape := recordShape{
		kind:      shapePlain,
		timestamp: rec.Time,
		level:     strings.ToUpper(strings.TrimSpace(rec.Meta.LogLevelName)),
	}
	if shape.timestamp == "" {
		shape.timestamp = rec.Meta.Date
	}
	if shape.level == "" {
		shape.level = "INFO"
	}

	zero := fieldText(rec.Zero)
	if named, ok := decodeNamed(zero); ok {
		shape.kind = shapeNamed
		shape.subsystem = named.Subsystem
		shape.message = named.Message
		if shape.message == "" {
			shape.message = fieldText(rec.One)
		}
	} else {
		shape.message = zero
		if shape.message == "" {
			shape.message = fieldText(rec.One)
		}
	}

	shape.message = strings.TrimSpace(shape.message)
	if shape.message == "" {
		return recordShape{}, false
	}
	return shape, true
}

// decodeNamed recognises the JSON-encoded subsystem object some loggers
// write into field "0".
func decodeNamed(s string) (namedSubsystem, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return namedSubsystem{}, false
	}
	var named namedSubsystem
	if err := json.Unmarshal([]byte(s), &named); err != nil || named.Subsystem == "" {
		return namedSubsystem{}, false
	}
	return named, true
}

// fieldText renders a positional field as text: strings are unquoted, any
// other JSON value is kept in compact form.
func fieldText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// Interesting reports whether a message passes the interest filter.
func Interesting(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range interestKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Decode turns one gateway log line into an unclassified record without
// applying the interest filter. Lines that are not JSON objects or carry no
// message are rejected.
func Decode(line string) (core.LogRecord, bool) {
	shape, ok := decode(line)
	if !ok {
		return core.LogRecord{}, false
	}
	return core.LogRecord{
		Timestamp: shape.timestamp,
		Level:     shape.level,
		Subsystem: shape.subsystem,
		Message:   truncateRunes(shape.message, core.MaxMessageLen),
		Raw:       truncateRunes(strings.TrimSpace(line), core.MaxRawLen),
	}, true
}

// Parse turns one gateway log line into a classified record. Lines that are
// not JSON, carry no message, or fail the interest filter are rejected.
func Parse(line string) (core.LogRecord, bool) {
	rec, ok := Decode(line)
	if !ok || !Interesting(rec.Message) {
		return core.LogRecord{}, false
	}
	rec.Category = Classify(rec.Message)
	return rec, true
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
