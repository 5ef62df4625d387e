// Package clovis implements Clovis, the screen-annotation agent the
// Router delegates to for
// explanation and on-screen-annotation requests via invoke_clovis. Unlike
// the Vision Agent's multi-step interaction loop, Clovis is a single model
// call: it is shown one screenshot and the user's request, and returns a
// time-ordered batch of draw-action tool calls (or, for queries that need
// no annotation, a direct_response) which this package replays through the
// shared Draw Action Queue (internal/overlay/drawqueue).
package clovis

import (
	"context"
	"fmt"
	"strings"

	"github.com/clovis-agent/clovis/internal/agent/toolcall"
	"github.com/clovis-agent/clovis/internal/memory"
	"github.com/clovis-agent/clovis/internal/modelclient"
	"github.com/clovis-agent/clovis/internal/overlay/drawqueue"
	"github.com/clovis-agent/clovis/internal/router"
)

// Source is the ChainStep/logging tag for this agent, matching
// router.KindClovis.
const Source = "clovis"

// Text-overlap avoidance is instructed in the prompt but
// mechanically enforced downstream by drawqueue's layout, not by this
// agent; the model only needs to be told to try.
const systemPrompt = `# About you
You are Clovis, a computer-use assistant with the ability to annotate directly on the user's screen. You have a set of tools available, including drawing bounding boxes, drawing text on screen, and the other tools listed in your tool definitions.
You are a helpful assistant and expert in any subject. What makes you distinctive is that when given a request you annotate with respect to time: explain one thing, wait for the user to read it, then move on to the next.

# Functionality
To draw bounding boxes, use your object detection capabilities to compute the box dimensions from the attached screenshot.
To draw text, reason from the bounding box locations and place the label in an appropriate spot relative to font size and the target's location.
Do your best to avoid overlapping text labels; treat each label as a full panel, not just a point. Estimate the label's full width/height and padding before placing it.

Call tools directly using function calling. Each call includes a time argument in seconds, measured from the start of this response.
Example function calls, ordered by time:
- draw_bounding_box(time=0.2, y_min=120, x_min=180, y_max=420, x_max=620, box_id="box_1", stroke="#2D6CDF", stroke_width=3, opacity=0.9)
- create_text(time=0.2, x=180, y=110, text="Search bar", font_size=16, align="left", baseline="alphabetic")
- create_text_for_box(time=0.3, box={"x": 180, "y": 120, "width": 440, "height": 300}, text="Main content", position="bottom", font_size=14, align="left", padding=8)
- draw_pointer_to_object(time=0.5, x_pos=150, y_pos=200, text="This is the sidebar", text_x=300, text_y=180)
- destroy_text(time=2.3, text_id="text_1")
- destroy_box(time=2.3, box_id="box_1")

If you call direct_response, it must be the very first (and only) function call.
Tool calls must be ordered earliest to latest; every time is seconds since the start of this response.
Coordinates are pixel values, not normalized.

A screenshot of the user's current screen is attached.`

// Capturer supplies the screenshot Clovis annotates, the same shape
// internal/screenjudge.Capturer already exposes.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// Agent implements router.Agent for the screen-annotation capability: one
// model call plus a replay of its returned tool calls per Execute.
type Agent struct {
	invoker modelclient.Invoker
	capture Capturer
	mem     *memory.Memory
	draw    *drawqueue.Dispatcher
	model   string
	tools   *toolcall.Registry
}

// New constructs a Clovis Agent. mem may be nil (a private ring is used).
func New(invoker modelclient.Invoker, capture Capturer, mem *memory.Memory, draw *drawqueue.Dispatcher, model string) (*Agent, error) {
	if invoker == nil {
		return nil, fmt.Errorf("clovis agent: invoker is required")
	}
	if capture == nil {
		return nil, fmt.Errorf("clovis agent: capture is required")
	}
	if draw == nil {
		return nil, fmt.Errorf("clovis agent: draw dispatcher is required")
	}
	if mem == nil {
		mem = memory.New()
	}
	if model == "" {
		model = "gpt-4o"
	}
	return &Agent{
		invoker: invoker,
		capture: capture,
		mem:     mem,
		draw:    draw,
		model:   model,
		tools:   BuildToolRegistry(draw),
	}, nil
}

// Execute runs one annotation task to completion (router.Agent).
func (a *Agent) Execute(ctx context.Context, task string) (router.AgentResult, error) {
	shot, err := a.capture.Capture(ctx)
	if err != nil {
		return router.AgentResult{Success: false, Message: fmt.Sprintf("clovis agent: capture failed: %v", err), Source: Source}, nil
	}

	messages := []modelclient.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: task, Images: [][]byte{shot}},
	}

	result, err := a.invoker.Invoke(ctx, a.model, messages, a.tools.ToModelDefs())
	if err != nil {
		return router.AgentResult{Success: false, Message: err.Error(), Source: Source}, nil
	}

	if !result.IsFunctionCall() {
		text := strings.TrimSpace(result.Text)
		a.mem.Append(memory.Entry{Role: memory.RoleAssistant, Source: Source, Text: text})
		return router.AgentResult{Success: true, Message: text, Source: Source}, nil
	}

	calls := result.FunctionCalls
	if calls[0].Name == toolDirectResponse {
		res, execErr := a.tools.Execute(ctx, calls[0].Name, calls[0].Args)
		if execErr != nil {
			return router.AgentResult{Success: false, Message: execErr.Error(), Source: Source}, nil
		}
		a.mem.Append(memory.Entry{Role: memory.RoleAssistant, Source: Source, Text: res.Content})
		return router.AgentResult{Success: true, Message: res.Content, Source: Source}, nil
	}

	actions := make([]string, 0, len(calls))
	for _, call := range calls {
		res, execErr := a.tools.Execute(ctx, call.Name, call.Args)
		if execErr != nil {
			return router.AgentResult{Success: false, Message: fmt.Sprintf("clovis agent: %s failed: %v", call.Name, execErr), Source: Source}, nil
		}
		actions = append(actions, res.Content)
	}

	summary := fmt.Sprintf("Annotated the screen (%d actions).", len(actions))
	a.mem.Append(memory.Entry{Role: memory.RoleAssistant, Source: Source, Text: summary})
	return router.AgentResult{Success: true, Message: summary, Source: Source}, nil
}
