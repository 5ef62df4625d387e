// Package browser implements the Browser Agent: a
// persistent browser session that fields natural-language tasks, steering
// an already-open page when the task implies one exists and otherwise
// resolving a direct URL, an existing matching tab, or a search fallback.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/clovis-agent/clovis/internal/router"
	"github.com/clovis-agent/clovis/pkg/logger"
)

// RichSession is the rich-automation backend boundary: an LLM-driven
// browser-interaction session capable of on-page interaction. No suitable
// library exists for this, so it is an injectable interface rather than a
// fabricated dependency; a nil RichSession means the Agent always uses
// the direct chromedp driver (see DESIGN.md, Component F).
type RichSession interface {
	// Run executes task against the rich session's current page/context
	// and returns a user-facing result summary.
	Run(ctx context.Context, task string) (string, error)
	// Close tears down the rich session's underlying resources.
	Close()
}

type backend int

const (
	backendNone backend = iota
	backendRich
	backendDirect
)

// Agent implements router.Agent for the browser capability, switching
// between the rich-automation backend and the direct chromedp driver.
// Only one backend is active at a time; switching from one to the other
// tears the previous one down first.
type Agent struct {
	newDir func() *Driver
	rich   RichSession

	mu     sync.Mutex
	active backend
	direct *Driver
}

// New constructs a browser Agent. rich may be nil (direct-driver only).
func New(rich RichSession) *Agent {
	return &Agent{
		rich:   rich,
		newDir: NewDriver,
	}
}

// Execute runs one browser task to completion (router.Agent).
func (a *Agent) Execute(ctx context.Context, task string) (router.AgentResult, error) {
	originalDirectURL := ExtractDirectURL(task)

	a.mu.Lock()
	active := a.active
	a.mu.Unlock()

	if active == backendRich && a.rich != nil {
		steered := task
		if MustAvoidSearch(task) {
			steered = SteerTaskForExistingPage(task)
		}
		summary, err := a.rich.Run(ctx, steered)
		if err != nil {
			if !shouldFallbackToDirect(err) {
				return router.AgentResult{Success: false, Message: err.Error(), Source: "browser"}, nil
			}
			return a.runDirect(ctx, task, originalDirectURL, err.Error())
		}
		return router.AgentResult{Success: true, Message: summary, Source: "browser"}, nil
	}

	if active == backendDirect {
		return a.runDirect(ctx, task, originalDirectURL, "")
	}

	// No backend chosen yet: prefer the rich session, since it can
	// actually interact with a page rather than only navigate.
	if a.rich != nil {
		summary, err := a.rich.Run(ctx, task)
		if err == nil {
			a.mu.Lock()
			a.active = backendRich
			a.mu.Unlock()
			return router.AgentResult{Success: true, Message: summary, Source: "browser"}, nil
		}
		if !shouldFallbackToDirect(err) {
			return router.AgentResult{Success: false, Message: err.Error(), Source: "browser"}, nil
		}
		logger.Debug().Err(err).Msg("rich browser backend unavailable, falling back to direct driver")
		return a.runDirect(ctx, task, originalDirectURL, err.Error())
	}

	return a.runDirect(ctx, task, originalDirectURL, "")
}

func (a *Agent) runDirect(ctx context.Context, task, preExtractedURL, bootstrapErr string) (router.AgentResult, error) {
	a.mu.Lock()
	if a.active == backendRich && a.rich != nil {
		a.rich.Close()
	}
	if a.direct == nil {
		a.direct = a.newDir()
	}
	a.active = backendDirect
	driver := a.direct
	a.mu.Unlock()

	summary, err := driver.Execute(ctx, task, preExtractedURL)
	if err != nil {
		msg := err.Error()
		if bootstrapErr != "" {
			msg = fmt.Sprintf("browser task failed in both the rich session and the direct driver: bootstrap_error=%s; fallback_error=%s", bootstrapErr, msg)
		}
		return router.AgentResult{Success: false, Message: msg, Source: "browser"}, nil
	}
	return router.AgentResult{Success: true, Message: summary, Source: "browser"}, nil
}

// Close tears down whichever backend is currently active.
func (a *Agent) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rich != nil {
		a.rich.Close()
	}
	if a.direct != nil {
		a.direct.Close()
	}
	a.active = backendNone
}

// shouldFallbackToDirect: only bootstrap/import-shaped failures trigger a
// fallback to the direct driver, not ordinary task failures.
func shouldFallbackToDirect(err error) bool {
	lowered := strings.ToLower(err.Error())
	markers := []string{
		"failed to import",
		"no module named",
		"cannot import name",
		"not implemented",
		"unsupported",
	}
	for _, m := range markers {
		if strings.Contains(lowered, m) {
			return true
		}
	}
	return false
}
