package browser

import (
	"fmt"
	"regexp"
	"strings"
)

var goToOpenVisit = regexp.MustCompile(`(?i)\b(go to|open|visit)\b`)

// IsOpenNewTabTask reports whether task explicitly asks for a new browser tab.
func IsOpenNewTabTask(task string) bool {
	return containsAny(strings.ToLower(task), []string{
		"open a new browser tab", "open new browser tab",
		"open a new tab", "open new tab", "new tab",
	})
}

// IsCurrentTabContextTask reports whether task references a page the user
// considers already open.
func IsCurrentTabContextTask(task string) bool {
	return containsAny(strings.ToLower(task), []string{
		"currently open", "current tab", "already open",
		"on the page", "on this page", "that is open",
	})
}

// ShouldReuseExistingPage reports whether the task implies the target page
// is already open in the active session.
func ShouldReuseExistingPage(task string) bool {
	return IsCurrentTabContextTask(task)
}

// MustAvoidSearch reports whether the task must not fall back to a web
// search — because it reuses an existing page or references a local server.
func MustAvoidSearch(task string) bool {
	lowered := strings.ToLower(task)
	if ShouldReuseExistingPage(task) {
		return true
	}
	return strings.Contains(lowered, "localhost") || strings.Contains(lowered, "127.0.0.1")
}

// SteerTaskForExistingPage prepends a hard-constraint preamble instructing
// the rich-automation backend to stay on the already-open page, when the
// task implies one exists. Only meaningful when a rich session is already
// active; callers must gate on that themselves.
func SteerTaskForExistingPage(task string) string {
	lowered := strings.ToLower(task)
	wantsLocalhost := strings.Contains(lowered, "localhost") || strings.Contains(lowered, "127.0.0.1")

	if !ShouldReuseExistingPage(task) && !wantsLocalhost {
		return task
	}

	if wantsLocalhost {
		return "HARD CONSTRAINT (LOCAL-SITE MODE):\n" +
			"- You MUST use the currently open local-server page/tab in this browser session.\n" +
			"- Do NOT perform web search.\n" +
			"- Do NOT navigate to unrelated public websites.\n" +
			"- If a navigation is required, only use local-server URLs (e.g. http://127.0.0.1:PORT).\n" +
			"- Prioritize interacting with the existing on-page UI to complete the task.\n\n" +
			"Task:\n" + task
	}

	return "IMPORTANT EXECUTION CONSTRAINTS:\n" +
		"- The target page is already open in the current browser session.\n" +
		"- Stay on the currently open relevant tab/page.\n" +
		"- Do NOT perform web search and do NOT navigate to unrelated sites.\n" +
		"- Only navigate if the task explicitly gives a direct URL.\n" +
		"- Prioritize interacting with existing on-page UI to complete the task.\n\n" +
		"Task:\n" + task
}

// TaskToSearchQuery turns task text into a DuckDuckGo query, appending
// "official website" unless the task already reads like a navigation
// instruction.
func TaskToSearchQuery(task string) string {
	cleaned := strings.Join(strings.Fields(task), " ")
	if cleaned == "" {
		return "official website"
	}
	if goToOpenVisit.MatchString(cleaned) {
		return cleaned
	}
	return cleaned + " official website"
}

// BuildFallbackSummary composes the direct-driver's human-readable result
// summary.
func BuildFallbackSummary(finalURL, title string, usedSearch, usedHeadless bool, actionMode string) string {
	var modeText string
	switch actionMode {
	case "new_tab":
		modeText = "new-tab action"
	case "current_tab_context":
		modeText = "current-tab context fallback"
	default:
		if usedSearch {
			modeText = "search fallback"
		} else {
			modeText = "direct navigation fallback"
		}
	}
	if usedHeadless {
		modeText += " (headless)"
	}

	title = strings.TrimSpace(title)
	if title != "" {
		return fmt.Sprintf("Browser task completed via %s: %s (%s)", modeText, title, finalURL)
	}
	return fmt.Sprintf("Browser task completed via %s: %s", modeText, finalURL)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
