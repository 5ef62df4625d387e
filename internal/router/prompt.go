package router

import (
	"fmt"
	"strings"

	"github.com/clovis-agent/clovis/internal/screenjudge"
)

// repeatPhraseMarkers are substrings that suggest the router model has
// fallen back to claiming a request was already handled.
var repeatPhraseMarkers = []string{
	"already completed",
	"already did that",
	"i already did",
	"i've already done",
	"as i already",
	"i already ran",
	"as mentioned before",
}

// explicitRepeatMarkers, when present in the *user's* prompt, mean the
// repeat was intentional and the router's message should pass through
// unsanitized.
var explicitRepeatMarkers = []string{
	"again",
	"repeat",
	"once more",
	"one more time",
}

// buildSystemPrompt renders the router's static system text once, with the
// personalization string folded in.
func buildSystemPrompt(personalization string) string {
	var b strings.Builder
	b.WriteString("You are the router for a multi-agent computer-use assistant. ")
	b.WriteString("Delegate to exactly one of clovis, browser, cua_cli, cua_vision, or request_screen_context per step, ")
	b.WriteString("or emit a direct_response when the task is finished or requires no delegation. ")
	b.WriteString("Reserve clovis for explanation and on-screen annotation; prefer the other agents for execution.")
	if personalization != "" {
		b.WriteString("\n\n")
		b.WriteString(personalization)
	}
	return b.String()
}

// buildPrompt assembles the per-step prompt: static system text, the
// conversation-memory transcript, the chain-state block, the latest
// ScreenContext (if any), and the original user prompt.
func (r *Router) buildPrompt(userPrompt string, steps []ChainStep, screenCtx *screenjudge.Context) string {
	var b strings.Builder
	b.WriteString(r.systemPrompt)
	b.WriteString("\n\n")

	if transcript := r.mem.RenderPrompt(); transcript != "" {
		b.WriteString("Conversation so far:\n")
		b.WriteString(transcript)
		b.WriteString("\n")
	}

	if len(steps) > 0 {
		b.WriteString("Chain state so far:\n")
		for _, s := range steps {
			status := "ok"
			if !s.Success {
				status = "failed"
			}
			fmt.Fprintf(&b, "- %s(%q) -> %s: %s\n", s.Agent, s.Task, status, s.Message)
		}
		b.WriteString("\n")
	}

	if screenCtx != nil {
		fmt.Fprintf(&b, "Screen context: summary=%q repo_url=%q local_url=%q recommended_agent=%q recommended_task=%q\n\n",
			screenCtx.Summary, screenCtx.RepoURL, screenCtx.LocalURL, screenCtx.RecommendedAgent, screenCtx.RecommendedTask)
	}

	b.WriteString("User request: ")
	b.WriteString(userPrompt)
	return b.String()
}

// sanitizeDirectResponse replaces a router message that falsely claims a
// repeat/already-done state with a synthesized summary of the last
// successful chain steps, unless the user explicitly asked for a repeat.
func sanitizeDirectResponse(text, userPrompt string, steps []ChainStep) string {
	lower := strings.ToLower(text)
	matchesKnown := false
	for _, m := range repeatPhraseMarkers {
		if strings.Contains(lower, m) {
			matchesKnown = true
			break
		}
	}
	if !matchesKnown {
		return text
	}

	lowerPrompt := strings.ToLower(userPrompt)
	for _, m := range explicitRepeatMarkers {
		if strings.Contains(lowerPrompt, m) {
			return text
		}
	}

	var msgs []string
	for i := len(steps) - 1; i >= 0 && len(msgs) < 2; i-- {
		if steps[i].Success {
			msgs = append([]string{steps[i].Message}, msgs...)
		}
	}
	if len(msgs) == 0 {
		return text
	}
	return "Task completed: " + strings.Join(msgs, " ")
}
