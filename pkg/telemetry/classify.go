package telemetry

import (
	"strings"

	"github.com/modoterra/gatewatch/pkg/core"
)

type rule struct {
	category core.Category
	keywords []string
}

// rules are evaluated in order; the first group with a matching keyword wins.
// Provider terms come first so that "anthropic request failed" is llm, not
// error.
var rules = []rule{
	{core.CategoryLLM, []string{
		"anthropic", "openai", "gemini", "claude", "openrouter", "ollama",
		"provider", "model", "token", "llm", "completion",
	}},
	{core.CategoryTelegram, []string{
		"telegram", "sendmessage", "getupdates", "bot api", "api.telegram.org",
	}},
	{core.CategoryTool, []string{
		"tool",
	}},
	{core.CategoryAgent, []string{
		"agent", "run start", "run end", "run done", "runid", "lane", "session",
	}},
	{core.CategoryError, []string{
		"error", "fail", "exception", "timeout", "retry", "panic",
	}},
	{core.CategoryChannel, []string{
		"channel", "deliver", "message", "discord", "whatsapp", "slack",
		"signal", "imessage", "inbound", "outbound", "webhook",
	}},
}

// Classify assigns a category to a message. Matching is case-insensitive.
func Classify(message string) core.Category {
	lower := strings.ToLower(message)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.category
			}
		}
	}
	return core.CategoryOther
}
