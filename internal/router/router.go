// Package router implements the per-turn delegation loop: it asks a router
// model for one tool call at a time, dispatches to the named agent or the
// Screen-Judge, tracks repeated steps, and finalizes every session with
// exactly one direct response.
//
// The step loop builds a prompt, calls the model, dispatches the returned
// tool call, accumulates a typed history, and decides whether to continue
// or terminate, against a closed six-tool vocabulary.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/clovis-agent/clovis/internal/memory"
	"github.com/clovis-agent/clovis/internal/screenjudge"
)

// MaxSteps bounds the number of delegated agent/screen-context invocations
// per session.
const MaxSteps = 6

// RepeatLimit is the number of times the same (agent, task) signature may
// recur before the router breaks the loop.
const RepeatLimit = 3

// Decision kinds, matching the router's fixed tool vocabulary.
const (
	KindDirect        = "direct"
	KindClovis        = "clovis"
	KindBrowser       = "browser"
	KindCuaCLI        = "cua_cli"
	KindCuaVision     = "cua_vision"
	KindScreenContext = "screen_context"
)

// ErrAlreadyRunning is returned by Handle when a session is already in
// flight; only one Router Session runs at a time.
var ErrAlreadyRunning = errors.New("task already running")

// Decision is one router-model step result: exactly one of ResponseText
// (for KindDirect) or Task (for every delegated kind) is meaningful.
type Decision struct {
	Kind         string
	Task         string
	ResponseText string
}

// ModelRouter is the router-model wrapper: a single call that
// returns one tagged decision given the assembled prompt. Concrete
// implementations adapt modelclient.Invoker plus the closed tool vocabulary;
// tests substitute a deterministic stub.
type ModelRouter interface {
	NextStep(ctx context.Context, prompt string) (Decision, error)
}

// ScreenJudge performs the one-shot multimodal routing-context
// extraction.
type ScreenJudge interface {
	Judge(ctx context.Context, task string) (screenjudge.Context, error)
}

// Agent is the single capability every delegated backend exposes: run a
// task to completion and report success/failure with a user-facing message.
type Agent interface {
	Execute(ctx context.Context, task string) (AgentResult, error)
}

// AgentResult is a delegated agent's outcome.
type AgentResult struct {
	Success bool
	Message string
	Source  string
}

// ChainStep is an immutable record of one delegated invocation.
type ChainStep struct {
	Agent   string
	Task    string
	Success bool
	Message string
	Source  string
}

// Result is what Handle returns for a finished Router Session: the single
// terminal direct response plus the steps that led to it.
type Result struct {
	Text       string
	ChainSteps []ChainStep
}

// Router owns the step loop, the agent table, and the Screen-Judge. A
// Router is long-lived; each call to Handle runs one Router Session.
type Router struct {
	model        ModelRouter
	mem          *memory.Memory
	agents       map[string]Agent
	judge        ScreenJudge
	systemPrompt string

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New constructs a Router. agents is keyed by decision kind (KindClovis,
// KindBrowser, KindCuaCLI, KindCuaVision). personalization is rendered into
// the system prompt once at construction.
func New(model ModelRouter, mem *memory.Memory, agents map[string]Agent, judge ScreenJudge, personalization string) *Router {
	return &Router{
		model:        model,
		mem:          mem,
		agents:       agents,
		judge:        judge,
		systemPrompt: buildSystemPrompt(personalization),
	}
}

// HasAgent reports whether an agent is wired for the given decision kind
// (e.g. for a `doctor` command reporting which capabilities are
// available).
func (r *Router) HasAgent(kind string) bool {
	_, ok := r.agents[kind]
	return ok
}

// StopAll cancels the in-flight Router Session, if any.
func (r *Router) StopAll() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Handle runs one Router Session to completion, returning exactly one
// terminal direct response. It returns
// ErrAlreadyRunning if another session is in flight.
func (r *Router) Handle(ctx context.Context, userPrompt string) (Result, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return Result{}, ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	r.running = true
	r.cancel = cancel
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.cancel = nil
		r.mu.Unlock()
		cancel()
	}()

	r.mem.Append(memory.Entry{Role: memory.RoleUser, Text: userPrompt})

	var (
		chainSteps []ChainStep
		screenCtx  *screenjudge.Context
		sigCounts  = map[string]int{}
	)

	finalize := func(text string) Result {
		r.mem.Append(memory.Entry{Role: memory.RoleAssistant, Source: "router", Text: text})
		return Result{Text: text, ChainSteps: chainSteps}
	}

	for steps := 0; ; {
		prompt := r.buildPrompt(userPrompt, chainSteps, screenCtx)

		decision, err := r.model.NextStep(ctx, prompt)
		if err != nil {
			return finalize(truncate(err.Error(), 420)), nil
		}
		if !validDecision(decision) {
			return finalize("Router returned an invalid response shape"), nil
		}

		if decision.Kind == KindDirect {
			return finalize(sanitizeDirectResponse(decision.ResponseText, userPrompt, chainSteps)), nil
		}

		sig := decision.Kind + "|" + normalizeTask(decision.Task)
		sigCounts[sig]++
		if sigCounts[sig] >= RepeatLimit {
			return finalize("I kept repeating the same step, so I stopped."), nil
		}

		if decision.Kind == KindScreenContext {
			sc, err := r.judge.Judge(ctx, decision.Task)
			if err != nil {
				step := ChainStep{Agent: KindScreenContext, Task: decision.Task, Success: false, Message: err.Error(), Source: KindScreenContext}
				chainSteps = append(chainSteps, step)
				return finalize(fmt.Sprintf("Stopping chained execution because screen_context failed: %s", err.Error())), nil
			}
			screenCtx = &sc
			step := ChainStep{Agent: KindScreenContext, Task: decision.Task, Success: true, Message: sc.Summary, Source: KindScreenContext}
			chainSteps = append(chainSteps, step)
			r.mem.Append(memory.Entry{Role: memory.RoleAssistant, Source: step.Source, Text: step.Message})
		} else {
			agent, ok := r.agents[decision.Kind]
			if !ok {
				return finalize("Router returned an invalid response shape"), nil
			}
			result, err := agent.Execute(ctx, decision.Task)
			if err != nil {
				result = AgentResult{Success: false, Message: err.Error(), Source: decision.Kind}
			}
			step := ChainStep{Agent: decision.Kind, Task: decision.Task, Success: result.Success, Message: result.Message, Source: result.Source}
			chainSteps = append(chainSteps, step)
			r.mem.Append(memory.Entry{Role: memory.RoleAssistant, Source: step.Source, Text: step.Message})
			if !result.Success {
				return finalize(fmt.Sprintf("Stopping chained execution because %s failed: %s", decision.Kind, result.Message)), nil
			}
		}

		steps++
		if steps >= MaxSteps {
			return finalize(fmt.Sprintf("I've reached my step budget (%d steps) without finishing, so I'm stopping here.", MaxSteps)), nil
		}
	}
}

func validDecision(d Decision) bool {
	switch d.Kind {
	case KindDirect, KindClovis, KindBrowser, KindCuaCLI, KindCuaVision, KindScreenContext:
		return true
	default:
		return false
	}
}

func normalizeTask(task string) string {
	return strings.ToLower(strings.TrimSpace(task))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
