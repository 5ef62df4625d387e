package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsOpenNewTabTask(t *testing.T) {
	assert.True(t, IsOpenNewTabTask("open a new tab and search for cats"))
	assert.False(t, IsOpenNewTabTask("click the login button"))
}

func TestShouldReuseExistingPage(t *testing.T) {
	assert.True(t, ShouldReuseExistingPage("on the page that is currently open, click submit"))
	assert.False(t, ShouldReuseExistingPage("search for the weather forecast"))
}

func TestMustAvoidSearch(t *testing.T) {
	assert.True(t, MustAvoidSearch("fill out the form on the currently open page"))
	assert.True(t, MustAvoidSearch("check what's running on localhost:8080"))
	assert.False(t, MustAvoidSearch("find the capital of France"))
}

func TestSteerTaskForExistingPageLocalhost(t *testing.T) {
	out := SteerTaskForExistingPage("fill out the form on localhost:8080")
	assert.Contains(t, out, "HARD CONSTRAINT (LOCAL-SITE MODE)")
	assert.Contains(t, out, "fill out the form on localhost:8080")
}

func TestSteerTaskForExistingPageGeneric(t *testing.T) {
	out := SteerTaskForExistingPage("on the page that is currently open, click submit")
	assert.Contains(t, out, "IMPORTANT EXECUTION CONSTRAINTS")
}

func TestSteerTaskForExistingPageNoOp(t *testing.T) {
	task := "search for the best pizza place nearby"
	assert.Equal(t, task, SteerTaskForExistingPage(task))
}

func TestTaskToSearchQuery(t *testing.T) {
	assert.Equal(t, "go to github.com", TaskToSearchQuery("go to github.com"))
	assert.Equal(t, "acme corp official website", TaskToSearchQuery("  acme   corp  "))
}

func TestBuildFallbackSummary(t *testing.T) {
	s := BuildFallbackSummary("https://example.com", "Example Domain", false, false, "direct_navigation")
	assert.Contains(t, s, "direct navigation fallback")
	assert.Contains(t, s, "Example Domain")

	s2 := BuildFallbackSummary("https://duckduckgo.com/?q=x", "", true, true, "search_fallback")
	assert.Contains(t, s2, "search fallback")
	assert.Contains(t, s2, "(headless)")
}
