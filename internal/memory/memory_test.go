package memory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppendEvictsOldestBeyondCapacity(t *testing.T) {
	m := New()
	for i := 0; i < Capacity+5; i++ {
		m.Append(Entry{Role: RoleUser, Text: "turn"})
	}
	assert.Len(t, m.All(), Capacity)
}

func TestRenderPromptUsesOnlyLastWindow(t *testing.T) {
	m := New()
	for i := 0; i < Capacity; i++ {
		m.Append(Entry{Role: RoleAssistant, Source: "clovis", Text: "msg"})
	}
	rendered := m.RenderPrompt()
	assert.Equal(t, PromptWindow, strings.Count(rendered, "[clovis] msg"))
}

func TestRenderPromptEmptyWhenNoEntries(t *testing.T) {
	m := New()
	assert.Empty(t, m.RenderPrompt())
}

func TestRenderPromptFallsBackToRoleWhenNoSource(t *testing.T) {
	m := New()
	m.Append(Entry{Role: RoleUser, Text: "hello"})
	assert.Contains(t, m.RenderPrompt(), "[user] hello")
}
