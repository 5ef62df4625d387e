// Package daemon wires every component into one running orchestrator
// process, pulled out of the serve command so the plain CLI entrypoint
// and the tray entrypoint share one bootstrap instead of duplicating it.
package daemon

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/clovis-agent/clovis/internal/agent/browser"
	"github.com/clovis-agent/clovis/internal/agent/clovis"
	cliagent "github.com/clovis-agent/clovis/internal/agent/cli"
	"github.com/clovis-agent/clovis/internal/agent/vision"
	"github.com/clovis-agent/clovis/internal/memory"
	"github.com/clovis-agent/clovis/internal/modelclient"
	"github.com/clovis-agent/clovis/internal/overlay/drawqueue"
	"github.com/clovis-agent/clovis/internal/overlay/theme"
	"github.com/clovis-agent/clovis/internal/overlay/transport"
	"github.com/clovis-agent/clovis/internal/platform"
	"github.com/clovis-agent/clovis/internal/procmgr"
	"github.com/clovis-agent/clovis/internal/router"
	"github.com/clovis-agent/clovis/internal/screenjudge"
	"github.com/clovis-agent/clovis/pkg/config"
	"github.com/clovis-agent/clovis/pkg/logger"
)

// registryProxy defers to a drawqueue.Registry that does not exist yet at
// transport.NewHub construction time (the Hub needs a Registry; the
// Dispatcher that owns one needs the Hub). Both sides of the cycle are
// satisfied by handing the Hub a proxy and pointing it at the real
// registry once the Dispatcher exists.
type registryProxy struct {
	reg *drawqueue.Registry
}

func (p *registryProxy) Snapshot() []transport.Outbound {
	if p.reg == nil {
		return nil
	}
	return p.reg.Snapshot()
}

// Daemon owns every long-lived component the orchestrator needs and runs
// them for the lifetime of one `clovisd serve` invocation.
type Daemon struct {
	settings *config.Settings

	server  *transport.Server
	draw    *drawqueue.Dispatcher
	sampler *theme.Sampler
	procs   *procmgr.Manager
	router  *router.Router
	mem     *memory.Memory

	capture platform.Unconfigured
}

// New constructs the full object graph from settings. CLI Agent
// construction failures (missing runner bundle, missing API key) are
// logged and leave cua_cli unavailable rather than failing the whole
// daemon: a missing CLI runner is local to that one capability, not the
// process as a whole.
func New(settings *config.Settings) (*Daemon, error) {
	invoker, err := modelclient.NewHTTPInvoker(settings.ModelProvider.Endpoint, settings.ModelProvider.APIKey)
	if err != nil {
		return nil, fmt.Errorf("daemon: model provider: %w", err)
	}

	mem := memory.New()
	procs := procmgr.NewManager()
	procs.InstallShutdownHook()

	proxy := &registryProxy{}
	hub := transport.NewHub(proxy)
	sampler := theme.NewSampler()
	draw := drawqueue.NewDispatcher(hub, sampler)
	proxy.reg = draw.Registry()
	draw.SetViewport(float64(settings.Viewport.Width), float64(settings.Viewport.Height))

	server := transport.NewServer(hub)

	var capture platform.Unconfigured

	judge := screenjudge.New(invoker, settings.ScreenJudgeModel, capture)

	browserAgent := browser.New(nil)

	visionAgent, err := vision.New(invoker, capture, capture, nil, mem, draw, vision.Config{
		Engine: vision.EngineConfig{
			InteractionModel: settings.VisionModel,
			LocatorModel:     settings.VisionLocatorModel,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("daemon: vision agent: %w", err)
	}

	clovisAgent, err := clovis.New(invoker, capture, mem, draw, settings.ClovisModel)
	if err != nil {
		return nil, fmt.Errorf("daemon: clovis agent: %w", err)
	}

	agents := map[string]router.Agent{
		router.KindClovis:    clovisAgent,
		router.KindBrowser:   browserAgent,
		router.KindCuaVision: visionAgent,
	}

	if cliAgent, err := cliagent.New(cliagent.Config{
		RunnerPath: settings.CLIRunner.RunnerPath,
		NodeBin:    settings.CLIRunner.NodeBin,
		APIKeyEnv:  settings.CLIRunner.APIKeyEnv,
	}, procs); err != nil {
		logger.Warn().Err(err).Msg("daemon: cua_cli agent unavailable")
	} else {
		agents[router.KindCuaCLI] = cliAgent
	}

	llmRouter := router.NewLLMRouter(invoker, settings.RapidResponseModel)
	rtr := router.New(llmRouter, mem, agents, judge, settings.Personalization)

	d := &Daemon{
		settings: settings,
		server:   server,
		draw:     draw,
		sampler:  sampler,
		procs:    procs,
		router:   rtr,
		mem:      mem,
		capture:  capture,
	}
	d.wireServer()
	return d, nil
}

func (d *Daemon) wireServer() {
	d.server.OnOverlayInput(func(text, requestID string) {
		go d.handleInput(text, requestID)
	})
	d.server.OnStopAll(func() {
		d.StopAll()
	})
	d.server.OnViewport(func(width, height float64) {
		d.draw.SetViewport(width, height)
	})
	d.server.OnCaptureScreenshot(func() {
		d.refreshTheme()
	})
	d.server.OnProcsList(func() []transport.ProcessInfo {
		procs := d.procs.List()
		out := make([]transport.ProcessInfo, 0, len(procs))
		for _, p := range procs {
			out = append(out, transport.ProcessInfo{
				ID:      p.ID,
				PID:     p.PID,
				Command: p.Command,
				Uptime:  p.Uptime(),
				Port:    p.ActivePort,
			})
		}
		return out
	})
	d.server.OnProcsStop(func(id string) error { return d.procs.Stop(id) })
	d.server.OnProcsStopAll(func() int { return d.procs.StopAll() })
}

// handleInput runs one Router Session for a deduplicated overlay_input
// event and replays the terminal response through the Draw Action Queue.
func (d *Daemon) handleInput(text, requestID string) {
	ctx := context.Background()
	result, err := d.router.Handle(ctx, text)
	if err != nil {
		logger.Error().Err(err).Msg("router session failed")
		return
	}
	id := requestID
	if id == "" {
		id = "router-response"
	}
	d.draw.DirectResponse(0, id, result.Text)
}

// refreshTheme re-samples the Theme Sampler's palette against a freshly
// captured screenshot, triggered by the overlay renderer's periodic
// capture_screenshot event.
func (d *Daemon) refreshTheme() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	raw, err := d.capture.Capture(ctx)
	if err != nil {
		logger.Debug().Err(err).Msg("daemon: screenshot capture unavailable for theme sampling")
		return
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		logger.Warn().Err(err).Msg("daemon: failed to decode captured screenshot")
		return
	}
	d.sampler.SetScreenshot(img)
}

// Run starts the overlay transport and blocks until ctx is cancelled,
// tearing every component down gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	boundPort, err := d.server.Start(d.settings.Overlay.Host, d.settings.Overlay.Port)
	if err != nil {
		return fmt.Errorf("daemon: overlay transport: %w", err)
	}
	if boundPort != d.settings.Overlay.Port {
		if err := d.settings.PersistBoundPort(d.settings.Overlay.Host, boundPort); err != nil {
			logger.Warn().Err(err).Msg("daemon: failed to persist rebound overlay port")
		}
	}
	go d.draw.Start()
	d.draw.SetModelName(d.settings.RapidResponseModel)

	logger.Info().Int("port", boundPort).Msg("clovisd serving")

	<-ctx.Done()
	logger.Info().Msg("clovisd shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("daemon: overlay transport shutdown error")
	}
	d.draw.StopAll()
	d.procs.StopAll()
	return nil
}

// StopAll cancels the in-flight router session, clears queued draw
// actions, and stops every tracked background process. Invoked by the
// overlay's stop_all event and by the tray's stop item.
func (d *Daemon) StopAll() {
	d.router.StopAll()
	d.draw.StopAll()
	d.procs.StopAll()
}

// ProcMgr exposes the process manager to tests. Background process
// management during a conversation is natural-language, handled
// in-process by the CLI Agent (internal/agent/cli); the standalone
// `clovisd background list|stop` subcommand instead talks to a running
// daemon's /procs HTTP endpoints (wireServer), since a separate CLI
// invocation is a different OS process with no other way to observe
// this daemon's ProcMgr table.
func (d *Daemon) ProcMgr() *procmgr.Manager { return d.procs }
