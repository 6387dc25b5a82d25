package core

// Category is the semantic label assigned to an accepted gateway log record.
type Category string

const (
	CategoryLLM      Category = "llm"
	CategoryTelegram Category = "telegram"
	CategoryTool     Category = "tool"
	CategoryAgent    Category = "agent"
	CategoryError    Category = "error"
	CategoryChannel  Category = "channel"
	CategoryOther    Category = "other"
)

// Categories lists every category in classifier priority order, with the
// catch-all last.
var Categories = []Category{
	CategoryLLM,
	CategoryTelegram,
	CategoryTool,
	CategoryAgent,
	CategoryError,
	CategoryChannel,
	CategoryOther,
}

// Valid reports whether c is one of the closed set of categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Field limits for parsed records.
const (
	MaxMessageLen = 500
	MaxRawLen     = 2000
)

// LogRecord is one parsed and classified line of the gateway log.
type LogRecord struct {
	Timestamp string   `json:"timestamp"`
	Level     string   `json:"level"`
	Subsystem string   `json:"subsystem,omitempty"`
	Message   string   `json:"message"`
	Category  Category `json:"category"`
	Raw       string   `json:"raw"`
}

// RetainedEntry is a LogRecord held by the retention buffer.
// IDs increase strictly for the lifetime of the process and are never reused.
type RetainedEntry struct {
	ID int64 `json:"id"`
	LogRecord
}
