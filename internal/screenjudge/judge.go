// Package screenjudge implements the one-shot multimodal call that extracts
// routing context (repo/local URLs, a recommended agent) from the current
// screen. It owns its own screenshot capture and a single
// model invocation per call; there is no retry loop — a malformed response
// either recovers through the bracket-extraction fallback or the call fails
// outright and becomes a failed ChainStep at the Router.
package screenjudge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/clovis-agent/clovis/internal/modelclient"
)

const maxFieldLen = 420

var allowedRecommendedAgents = map[string]bool{
	"cua_cli":    true,
	"cua_vision": true,
	"browser":    true,
	"clovis":     true,
	"direct":     true,
	"":           true,
}

// Context is the routing context Screen-Judge extracts.
type Context struct {
	Summary          string `json:"summary"`
	RepoURL          string `json:"repo_url"`
	LocalURL         string `json:"local_url"`
	RecommendedAgent string `json:"recommended_agent"`
	RecommendedTask  string `json:"recommended_task"`
	Hints            string `json:"hints"`
	Model            string `json:"-"`
}

// Capturer captures the current screen as an encoded image (PNG/JPEG).
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// Judge is the Screen-Judge component.
type Judge struct {
	invoker modelclient.Invoker
	model   string
	capture Capturer
}

// New constructs a Judge that captures via capture and calls model through invoker.
func New(invoker modelclient.Invoker, model string, capture Capturer) *Judge {
	return &Judge{invoker: invoker, model: model, capture: capture}
}

// Judge runs one multimodal call and returns the normalized routing context.
func (j *Judge) Judge(ctx context.Context, task string) (Context, error) {
	shot, err := j.capture.Capture(ctx)
	if err != nil {
		return Context{}, err
	}

	messages := []modelclient.Message{{
		Role: "user",
		Content: "Examine the attached screenshot and return a JSON object with fields " +
			"summary, repo_url, local_url, recommended_agent, recommended_task, hints, " +
			"describing what is relevant to this request: " + task,
		Images: [][]byte{shot},
	}}

	res, err := j.invoker.Invoke(ctx, j.model, messages, nil)
	if err != nil {
		return Context{}, err
	}

	raw, err := parseJSON(res.Text)
	if err != nil {
		return normalize(Context{}, res.Text, task, j.model), nil
	}
	return normalize(raw, res.Text, task, j.model), nil
}

// parseJSON implements the "parse, then bracket-extract, then parse again"
// policy for near-JSON model replies.
func parseJSON(text string) (Context, error) {
	var c Context
	if err := json.Unmarshal([]byte(text), &c); err == nil {
		return c, nil
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return Context{}, errNoJSON
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &c); err != nil {
		return Context{}, err
	}
	return c, nil
}

var errNoJSON = errors.New("screenjudge: no JSON object found in model response")

// normalize bounds and defaults every field.
func normalize(c Context, rawText, originalTask, model string) Context {
	c.Summary = truncate(strings.TrimSpace(c.Summary), maxFieldLen)
	c.RepoURL = truncate(strings.TrimSpace(c.RepoURL), maxFieldLen)
	c.LocalURL = truncate(strings.TrimSpace(c.LocalURL), maxFieldLen)
	c.Hints = truncate(strings.TrimSpace(c.Hints), maxFieldLen)

	if !allowedRecommendedAgents[c.RecommendedAgent] {
		c.RecommendedAgent = ""
	}

	c.RecommendedTask = truncate(strings.TrimSpace(c.RecommendedTask), maxFieldLen)
	if c.RecommendedTask == "" {
		c.RecommendedTask = originalTask
	}

	if c.Summary == "" {
		c.Summary = truncate(strings.TrimSpace(rawText), maxFieldLen)
	}

	c.Model = model
	return c
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
