// Package vision implements the Vision Agent: a single-model step loop that
// observes the active window as a screenshot and drives the desktop
// directly through a closed function-call vocabulary (cursor, clicks,
// keyboard, and a zoom-and-relocate secondary pass for small targets).
//
// OS-level mouse/keyboard automation and text-to-speech are exposed as
// injectable interfaces (Desktop, Speaker); the engine never touches the
// OS directly.
package vision

import (
	"context"
	"fmt"

	"github.com/clovis-agent/clovis/internal/memory"
	"github.com/clovis-agent/clovis/internal/modelclient"
	"github.com/clovis-agent/clovis/internal/overlay/drawqueue"
	"github.com/clovis-agent/clovis/internal/router"
)

// Source is the ChainStep/logging tag for this agent, matching
// router.KindCuaVision.
const Source = "cua_vision"

// Config configures the Vision Agent.
type Config struct {
	Engine EngineConfig
}

// Agent implements router.Agent for the vision capability: one Engine run
// per Execute call.
type Agent struct {
	invoker modelclient.Invoker
	desktop Desktop
	capture Capturer
	speaker Speaker
	mem     *memory.Memory
	draw    *drawqueue.Dispatcher
	cfg     Config
}

// New constructs a vision Agent. speaker and draw may both be nil.
func New(invoker modelclient.Invoker, desktop Desktop, capture Capturer, speaker Speaker, mem *memory.Memory, draw *drawqueue.Dispatcher, cfg Config) (*Agent, error) {
	if invoker == nil {
		return nil, fmt.Errorf("vision agent: invoker is required")
	}
	if desktop == nil {
		return nil, fmt.Errorf("vision agent: desktop is required")
	}
	if capture == nil {
		return nil, fmt.Errorf("vision agent: capture is required")
	}
	if mem == nil {
		mem = memory.New()
	}
	return &Agent{invoker: invoker, desktop: desktop, capture: capture, speaker: speaker, mem: mem, draw: draw, cfg: cfg}, nil
}

// Execute runs one vision task to completion (router.Agent).
func (a *Agent) Execute(ctx context.Context, task string) (router.AgentResult, error) {
	engine := NewEngine(a.invoker, a.desktop, a.capture, a.mem, a.draw, a.cfg.Engine)
	if a.speaker != nil {
		engine = engine.WithSpeaker(a.speaker)
	}

	summary, err := engine.Run(ctx, task)
	if err != nil {
		return router.AgentResult{Success: false, Message: err.Error(), Source: Source}, nil
	}
	return router.AgentResult{Success: true, Message: summary, Source: Source}, nil
}
