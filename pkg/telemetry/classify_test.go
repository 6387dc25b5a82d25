package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/modoterra/gatewatch/pkg/core"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		message string
		want    core.Category
	}{
		{"anthropic request failed", core.CategoryLLM},
		{"Provider openai returned 429, retry in 2s", core.CategoryLLM},
		{"usage: input tokens=1200", core.CategoryLLM},
		{"telegram sendMessage failed", core.CategoryTelegram},
		{"Bot API getUpdates timeout", core.CategoryTelegram},
		{"tool start: browser", core.CategoryTool},
		{"tool error: exec exited 1", core.CategoryTool},
		{"embedded run start runId=9", core.CategoryAgent},
		{"agent atlas lane busy", core.CategoryAgent},
		{"websocket error: connection reset", core.CategoryError},
		{"fetch failed", core.CategoryError},
		{"discord message delivered", core.CategoryChannel},
		{"outbound reply queued", core.CategoryChannel},
		{"http GET /health 200", core.CategoryOther},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.message))
		})
	}
}

func TestClassifyAlwaysReturnsKnownCategory(t *testing.T) {
	for _, msg := range []string{"", "???", "TOOL", "Claude"} {
		assert.True(t, Classify(msg).Valid(), msg)
	}
}
