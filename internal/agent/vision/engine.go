// This file holds the engine: the per-task step loop that repeatedly
// captures the active window, asks the interaction model for one or more
// function
// calls, dispatches them against the Desktop/Locator, and stops once the
// model calls task_is_complete, a loop guard trips, or the step budget is
// exhausted.
package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clovis-agent/clovis/internal/agent/toolcall"
	"github.com/clovis-agent/clovis/internal/memory"
	"github.com/clovis-agent/clovis/internal/modelclient"
	"github.com/clovis-agent/clovis/internal/overlay/drawqueue"
)

// MaxEngineSteps bounds one task's function-call/observe cycles.
const MaxEngineSteps = 40

// MaxCallsPerStep is the widest function-call batch the interaction model
// may return in one turn, bounding how far one step can run ahead of the
// screen it was judged against.
const MaxCallsPerStep = 3

// statusSettleDelay is how long the engine waits after a status update
// before capturing the next screenshot, giving the UI time to repaint.
const statusSettleDelay = 150 * time.Millisecond

// statusHideDelay keeps the status bubble and cursor pill visible briefly
// after the task terminates, so the final caption is readable.
const statusHideDelay = 400 * time.Millisecond

// EngineConfig configures one Engine.
type EngineConfig struct {
	// InteractionModel is the model used for the main step loop.
	InteractionModel string
	// LocatorModel overrides the crop-and-search/legacy-locator model.
	LocatorModel string
	// MaxSteps overrides MaxEngineSteps if nonzero.
	MaxSteps int
	// RepeatedFailuresBeforeFallback is how many consecutive failures or
	// identical re-issues of a click trigger a LegacyFindAndClick fallback
	// attempt.
	RepeatedFailuresBeforeFallback int
}

func (c EngineConfig) maxSteps() int {
	if c.MaxSteps > 0 {
		return c.MaxSteps
	}
	return MaxEngineSteps
}

func (c EngineConfig) interactionModel() string {
	if c.InteractionModel != "" {
		return c.InteractionModel
	}
	return "gemini-3-pro-preview"
}

func (c EngineConfig) repeatedFailureThreshold() int {
	if c.RepeatedFailuresBeforeFallback > 0 {
		return c.RepeatedFailuresBeforeFallback
	}
	return 3
}

// Engine runs one task to completion against a Desktop/Capturer pair,
// driven by a single model doing direct function calls against
// screenshots.
type Engine struct {
	invoker modelclient.Invoker
	desktop Desktop
	capture Capturer
	locator *Locator
	tools   *toolcall.Registry
	mem     *memory.Memory
	draw    *drawqueue.Dispatcher
	cfg     EngineConfig

	currentShot WindowCapture
}

// NewEngine constructs an Engine. draw may be nil (status bubbles/cursor
// dots are then simply skipped).
func NewEngine(invoker modelclient.Invoker, desktop Desktop, capture Capturer, mem *memory.Memory, draw *drawqueue.Dispatcher, cfg EngineConfig) *Engine {
	if draw != nil {
		desktop = cursorReportingDesktop{Desktop: desktop, draw: draw}
	}
	locator := NewLocator(invoker, desktop, capture, cfg.LocatorModel)
	e := &Engine{
		invoker: invoker,
		desktop: desktop,
		capture: capture,
		locator: locator,
		mem:     mem,
		draw:    draw,
		cfg:     cfg,
	}
	e.tools = BuildToolRegistry(desktop, locator, nil, e.lastShot)
	return e
}

// WithSpeaker rebuilds the tool registry with a Speaker wired to tts_speak.
func (e *Engine) WithSpeaker(speaker Speaker) *Engine {
	e.tools = BuildToolRegistry(e.desktop, e.locator, speaker, e.lastShot)
	return e
}

func (e *Engine) lastShot() WindowCapture { return e.currentShot }

// stepOutcome is one executed function call's bookkeeping result. A
// zero-flag outcome means the step ran (or was rescued) and the loop
// continues.
type stepOutcome struct {
	name      string
	completed bool
	stopLoop  bool
}

// runState is the per-task mutable bookkeeping threaded through one Run:
// the alternating-cycle detector, the immediate-repeat counter, and the
// consecutive-execution-failure counter that together drive the auto-click
// and legacy-locator rescues.
type runState struct {
	task               string
	statusID           string
	taskExpectsRepeats bool

	detector              clickLoopDetector
	lastTargetDescription string

	lastSignature       *actionSignature
	repeatedActionCount int
	consecutiveFailures int

	// allowAutoClick is recomputed per batch: a batch that already carries
	// an explicit click never auto-synthesizes one from its positioning
	// call.
	allowAutoClick bool
}

// Run executes task to completion, returning a user-facing summary.
func (e *Engine) Run(ctx context.Context, task string) (string, error) {
	st := &runState{
		task:               task,
		statusID:           "vision-status",
		taskExpectsRepeats: TaskExpectsRepeatedClicks(task),
	}

	defer e.hideStatus(st.statusID)

	for step := 0; step < e.cfg.maxSteps(); step++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		shot, err := e.capture.CaptureActiveWindow(ctx)
		if err != nil {
			return "", fmt.Errorf("vision engine: capture failed: %w", err)
		}
		e.currentShot = shot

		prompt := e.buildPrompt(task)
		result, err := e.generateStepResponse(ctx, prompt, shot)
		if err != nil {
			return "", err
		}

		if !result.IsFunctionCall() {
			text := strings.TrimSpace(result.Text)
			e.mem.Append(memory.Entry{Role: memory.RoleAssistant, Source: Source, Text: text})
			return text, nil
		}

		calls := normalizeCallBatch(result.FunctionCalls)
		st.allowAutoClick = true
		for _, call := range calls {
			if clickToolToType[call.Name] != "" {
				st.allowAutoClick = false
			}
		}

		for _, call := range calls {
			outcome, err := e.handleFunctionCall(ctx, call, st)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return "Stopped by user request.", nil
				}
				return "", err
			}

			if outcome.completed {
				e.mem.Append(memory.Entry{Role: memory.RoleAssistant, Source: Source, Text: "Task completed."})
				return "Task completed.", nil
			}
			if outcome.stopLoop {
				return "Stopped: the same action kept repeating.", nil
			}
		}

		e.waitForUISettle()
	}

	return "Stopped after reaching the step limit without completing the task.", nil
}

// normalizeCallBatch constrains one model response to the allowed call
// sequences: a single call, a position+click pair, a position+click+
// complete triple, or a click+complete pair. Anything else collapses to
// the first call, so a response like three consecutive clicks fires one
// click, not three, against a screen the model saw only once.
func normalizeCallBatch(calls []modelclient.FunctionCall) []modelclient.FunctionCall {
	if len(calls) <= 1 {
		return calls
	}

	first, second := calls[0], calls[1]
	if first.Name == "task_is_complete" {
		return calls[:1]
	}

	if positioningTools[first.Name] && clickToolToType[second.Name] != "" {
		if len(calls) >= MaxCallsPerStep && calls[2].Name == "task_is_complete" {
			return calls[:MaxCallsPerStep]
		}
		return calls[:2]
	}

	if clickToolToType[first.Name] != "" && second.Name == "task_is_complete" {
		return calls[:2]
	}

	return calls[:1]
}

// handleFunctionCall dispatches one model function call against the tool
// registry, updating status bubbles, the repeat counters, and the
// click-loop detector.
func (e *Engine) handleFunctionCall(ctx context.Context, call modelclient.FunctionCall, st *runState) (stepOutcome, error) {
	if call.Name == "task_is_complete" {
		return stepOutcome{name: call.Name, completed: true}, nil
	}

	if target, ok := call.Args["target_description"].(string); ok && target != "" {
		st.lastTargetDescription = target
	}

	e.setStatus(st.statusID, e.statusText(call))

	clickType := clickToolToType[call.Name]
	sig := computeActionSignature(call.Name, call.Args, st.lastTargetDescription)
	if st.lastSignature != nil && *st.lastSignature == sig {
		st.repeatedActionCount++
	} else {
		sigCopy := sig
		st.lastSignature = &sigCopy
		st.repeatedActionCount = 1
	}

	// A click re-issued with the identical signature is going nowhere even
	// when every execution "succeeds"; hand the target to the legacy
	// whole-screen locator instead of clicking the same spot again.
	if clickType != "" && st.repeatedActionCount >= e.cfg.repeatedFailureThreshold() {
		if ok, fallbackErr := e.locator.LegacyFindAndClick(ctx, clickType, st.lastTargetDescription); fallbackErr == nil && ok {
			st.resetRepeats()
			st.consecutiveFailures = 0
			return stepOutcome{name: call.Name}, nil
		}
	}

	// Pure positioning repeated on the same bucket means the model keeps
	// hovering without committing; synthesize the click it is circling.
	if st.allowAutoClick && positioningTools[call.Name] && st.repeatedActionCount >= autoClickAfterRepeatPositioningThreshold {
		autoType := inferClickType(st.task, call.Args)
		e.setStatus(st.statusID, fmt.Sprintf("Position repeated. Executing %s on %s", autoType, st.lastTargetDescription))
		if res, execErr := e.tools.Execute(ctx, clickTypeToTool[autoType], map[string]any{}); execErr == nil && !res.IsError {
			st.resetRepeats()
			st.consecutiveFailures = 0
			return stepOutcome{name: clickTypeToTool[autoType]}, nil
		}
		return e.recordFailure(ctx, st, call.Name, clickType)
	}

	args, known := e.tools.FilterArgs(call.Name, call.Args)
	if !known {
		return e.recordFailure(ctx, st, call.Name, clickType)
	}

	if positioningTools[call.Name] {
		args["target_description"] = st.lastTargetDescription
	}

	res, err := e.tools.Execute(ctx, call.Name, args)
	if err != nil || res.IsError {
		return e.recordFailure(ctx, st, call.Name, clickType)
	}
	st.consecutiveFailures = 0

	stop := st.detector.Register(call.Name, sig, clickType, st.taskExpectsRepeats)
	return stepOutcome{name: call.Name, stopLoop: stop}, nil
}

// recordFailure counts one failed execution and, once a click has failed
// enough times in a row, tries the legacy whole-screen locator rescue.
func (e *Engine) recordFailure(ctx context.Context, st *runState, name string, clickType ClickType) (stepOutcome, error) {
	st.consecutiveFailures++
	if clickType != "" && st.consecutiveFailures >= e.cfg.repeatedFailureThreshold() {
		if ok, fallbackErr := e.locator.LegacyFindAndClick(ctx, clickType, st.lastTargetDescription); fallbackErr == nil && ok {
			st.consecutiveFailures = 0
			st.resetRepeats()
		}
	}
	return stepOutcome{name: name}, nil
}

func (st *runState) resetRepeats() {
	st.lastSignature = nil
	st.repeatedActionCount = 0
}

// statusText resolves a user-facing status caption for one function call.
func (e *Engine) statusText(call modelclient.FunctionCall) string {
	if text, ok := call.Args["status_text"].(string); ok && text != "" {
		return text
	}
	switch call.Name {
	case "go_to_element", "crop_and_search":
		if target, ok := call.Args["target_description"].(string); ok && target != "" {
			return "Looking for " + target
		}
		return "Locating element"
	case "click_left_click":
		return "Clicking"
	case "click_double_left_click":
		return "Double-clicking"
	case "click_right_click":
		return "Right-clicking"
	case "type_string":
		return "Typing"
	default:
		return "Working"
	}
}

func (e *Engine) setStatus(id, text string) {
	if e.draw == nil {
		return
	}
	e.draw.ShowStatusBubble(0, id, text)
	e.draw.ShowCursorStatus(0, id+"-cursor", text)
}

func (e *Engine) hideStatus(id string) {
	if e.draw == nil {
		return
	}
	e.draw.HideStatusBubble(statusHideDelay, id)
	e.draw.HideCursorStatus(statusHideDelay, id+"-cursor")
}

// cursorReportingDesktop forwards every Desktop call unchanged and mirrors
// cursor moves to the overlay's cursor pill anchor.
type cursorReportingDesktop struct {
	Desktop
	draw *drawqueue.Dispatcher
}

func (c cursorReportingDesktop) MoveCursor(ctx context.Context, x, y float64, duration time.Duration) error {
	err := c.Desktop.MoveCursor(ctx, x, y, duration)
	if err == nil {
		c.draw.SetCursorStatusPosition(x, y)
	}
	return err
}

func (e *Engine) waitForUISettle() {
	time.Sleep(statusSettleDelay)
}

// buildPrompt assembles the system instructions plus rendered memory.
func (e *Engine) buildPrompt(task string) string {
	var b strings.Builder
	b.WriteString(visionSystemInstructions)
	b.WriteString("\n\nTask: ")
	b.WriteString(task)
	if rendered := e.mem.RenderPrompt(); rendered != "" {
		b.WriteString("\n\nRecent context:\n")
		b.WriteString(rendered)
	}
	return b.String()
}

const visionSystemInstructions = `You control the desktop directly by calling functions against the current
screenshot. Call exactly one to three functions per turn. Prefer go_to_element
to position the cursor, then a click tool. Use crop_and_search when the
target is small or ambiguous in the full screenshot. Call task_is_complete,
with no other function, once the task is fully done.`

// generateStepResponse calls the interaction model with the current
// screenshot attached, retrying once on a transient provider error.
func (e *Engine) generateStepResponse(ctx context.Context, prompt string, shot WindowCapture) (modelclient.Result, error) {
	msg := modelclient.Message{Role: "user", Content: prompt, Images: [][]byte{shot.Image}}
	defs := e.tools.ToModelDefs()

	res, err := e.invoker.Invoke(ctx, e.cfg.interactionModel(), []modelclient.Message{msg}, defs)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return modelclient.Result{}, ctx.Err()
	}

	select {
	case <-time.After(500 * time.Millisecond):
	case <-ctx.Done():
		return modelclient.Result{}, ctx.Err()
	}
	return e.invoker.Invoke(ctx, e.cfg.interactionModel(), []modelclient.Message{msg}, defs)
}
