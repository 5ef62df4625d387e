package drawqueue

import (
	"time"

	"github.com/clovis-agent/clovis/internal/overlay/theme"
	"github.com/clovis-agent/clovis/internal/overlay/transport"
)

// Dispatcher is the component-B/C seam: it turns high-level draw requests
// into time-ordered Queue actions, resolves text placement against the
// RectCache, enriches draw payloads with a sampled Palette, and broadcasts
// the result through the Hub. It also keeps the Overlay Entity Registry
// current so new clients can be replayed the live screen state.
type Dispatcher struct {
	queue     *Queue
	registry  *Registry
	rectCache *RectCache
	sampler   *theme.Sampler
	hub       *transport.Hub

	viewportW, viewportH float64

	lastStatusPalette *theme.Palette
	lastCursorPalette *theme.Palette
	cursorX, cursorY  float64
}

// NewDispatcher wires a Dispatcher to a Hub and a Sampler. Viewport defaults
// to 1920x1080 until SetViewport reports the renderer's real size.
func NewDispatcher(hub *transport.Hub, sampler *theme.Sampler) *Dispatcher {
	return &Dispatcher{
		queue:     NewQueue(nil),
		registry:  NewRegistry(),
		rectCache: NewRectCache(),
		sampler:   sampler,
		hub:       hub,
		viewportW: 1920,
		viewportH: 1080,
	}
}

// Registry exposes the live entity registry (e.g. to hand to transport.NewHub).
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Start begins the queue's consumer loop; run in its own goroutine.
func (d *Dispatcher) Start() { d.queue.Run() }

// SetViewport updates the viewport size used for anchor clamping.
func (d *Dispatcher) SetViewport(width, height float64) {
	if width > 0 {
		d.viewportW = width
	}
	if height > 0 {
		d.viewportH = height
	}
}

// StopAll clears the queue, cancels the consumer, and clears the rectangle
// cache and entity registry.
func (d *Dispatcher) StopAll() {
	d.queue.StopAll(d.rectCache)
	d.registry.Clear()
}

func (d *Dispatcher) broadcast(payload transport.Outbound) {
	d.registry.Put(payload.ID(), payload)
	_ = d.hub.Broadcast(payload)
}

// DrawBox queues a box draw, optionally auto-contrasting its stroke color
// against the sampled background.
func (d *Dispatcher) DrawBox(offset time.Duration, id string, x, y, w, h float64, autoContrast bool) {
	d.queue.Enqueue(Action{Offset: offset, Run: func() {
		x, w = ToViewport(x, d.viewportW), ToViewport(w, d.viewportW)
		y, h = ToViewport(y, d.viewportH), ToViewport(h, d.viewportH)
		payload := transport.Outbound{
			"command": transport.CmdDrawBox, "id": id,
			"x": x, "y": y, "width": w, "height": h,
		}
		if autoContrast && d.sampler != nil {
			p := d.sampler.ForPoint(int(x+w/2), int(y+h/2))
			payload["stroke"] = p.BoxStroke
		}
		d.broadcast(payload)
	}})
}

// DrawText queues a text draw, resolving its rectangle against the live
// RectCache before shipping the command, and enriching it with a sampled
// theme.
func (d *Dispatcher) DrawText(offset time.Duration, id, text string, x, y float64, fontSize float64, align, baseline string) {
	d.queue.Enqueue(Action{Offset: offset, Run: func() {
		x, y := ToViewport(x, d.viewportW), ToViewport(y, d.viewportH)
		width, height := EstimatePanelSize(text, fontSize)
		anchor := ResolveAnchor(x, y, width, height, align, baseline, d.viewportW, d.viewportH)
		placed := PlaceNonOverlapping(anchor, x, y, d.rectCache.Others(id), d.viewportW, d.viewportH)
		d.rectCache.Put(id, placed)

		payload := transport.Outbound{
			"command": transport.CmdDrawText, "id": id,
			"x": placed.X, "y": placed.Y, "text": text,
			"fontSize": fontSize, "align": align, "baseline": baseline,
		}
		if d.sampler != nil {
			p := d.sampler.ForText(int(placed.X+placed.W/2), int(placed.Y+placed.H/2))
			payload["theme"] = p
		}
		d.broadcast(payload)
	}})
}

// DrawDot queues a dot draw at an absolute point.
func (d *Dispatcher) DrawDot(offset time.Duration, id string, x, y float64) {
	d.queue.Enqueue(Action{Offset: offset, Run: func() {
		d.broadcast(transport.Outbound{
			"command": transport.CmdDrawDot, "id": id,
			"x": ToViewport(x, d.viewportW), "y": ToViewport(y, d.viewportH),
		})
	}})
}

// RemoveBox, RemoveText, and RemoveDot queue removal of a previously drawn
// entity and drop its bookkeeping state.
func (d *Dispatcher) RemoveBox(offset time.Duration, id string) {
	d.queueRemove(offset, transport.CmdRemoveBox, id, false)
}

func (d *Dispatcher) RemoveText(offset time.Duration, id string) {
	d.queueRemove(offset, transport.CmdRemoveText, id, true)
}

func (d *Dispatcher) RemoveDot(offset time.Duration, id string) {
	d.queueRemove(offset, transport.CmdRemoveDot, id, false)
}

func (d *Dispatcher) queueRemove(offset time.Duration, cmd, id string, isText bool) {
	d.queue.Enqueue(Action{Offset: offset, Run: func() {
		d.registry.Remove(id)
		if isText {
			d.rectCache.Remove(id)
		}
		_ = d.hub.Broadcast(transport.Outbound{"command": cmd, "id": id})
	}})
}

// Clear queues a full-board clear.
func (d *Dispatcher) Clear(offset time.Duration) {
	d.queue.Enqueue(Action{Offset: offset, Run: func() {
		d.registry.Clear()
		d.rectCache.Clear()
		_ = d.hub.Broadcast(transport.Outbound{"command": transport.CmdClear})
	}})
}

// ShowStatusBubble queues the initial status bubble for an in-flight agent
// action, computing and caching its palette so later update calls in the
// same status flow stay visually consistent.
func (d *Dispatcher) ShowStatusBubble(offset time.Duration, id, text string) {
	d.queue.Enqueue(Action{Offset: offset, Run: func() {
		payload := transport.Outbound{"command": transport.CmdShowStatusBubble, "id": id, "text": text}
		if d.sampler != nil {
			p := d.sampler.ForStatus(int(d.viewportW), int(d.viewportH))
			d.lastStatusPalette = &p
			payload["theme"] = p
		}
		d.broadcast(payload)
	}})
}

// UpdateStatusBubble queues a status text update, reusing the cached
// palette from ShowStatusBubble so the flow's colors do not drift.
func (d *Dispatcher) UpdateStatusBubble(offset time.Duration, id, text string) {
	d.queue.Enqueue(Action{Offset: offset, Run: func() {
		payload := transport.Outbound{"command": transport.CmdUpdateStatusBubble, "id": id, "text": text}
		if d.lastStatusPalette != nil {
			payload["theme"] = *d.lastStatusPalette
		}
		d.broadcast(payload)
	}})
}

// CompleteStatusBubble queues the terminal state for a status bubble flow
// and clears the cached flow palette.
func (d *Dispatcher) CompleteStatusBubble(offset time.Duration, id, text string) {
	d.queue.Enqueue(Action{Offset: offset, Run: func() {
		payload := transport.Outbound{"command": transport.CmdCompleteStatusBubble, "id": id, "text": text}
		if d.lastStatusPalette != nil {
			payload["theme"] = *d.lastStatusPalette
		}
		d.broadcast(payload)
		d.lastStatusPalette = nil
	}})
}

// HideStatusBubble queues removal of a status bubble.
func (d *Dispatcher) HideStatusBubble(offset time.Duration, id string) {
	d.queueRemove(offset, transport.CmdHideStatusBubble, id, false)
}

// ShowCursorStatus queues the cursor-adjacent status pill, themed with the
// inverted cursor palette so the pill contrasts with the strip behind it.
// The palette is cached so update calls in the same flow stay consistent.
func (d *Dispatcher) ShowCursorStatus(offset time.Duration, id, text string) {
	d.queue.Enqueue(Action{Offset: offset, Run: func() {
		payload := transport.Outbound{"command": transport.CmdShowCursorStatus, "id": id, "text": text}
		if d.sampler != nil {
			p := d.sampler.ForCursor(int(d.cursorX), int(d.cursorY))
			d.lastCursorPalette = &p
			payload["theme"] = p
		}
		d.broadcast(payload)
	}})
}

// UpdateCursorStatus queues a cursor pill text update, reusing the cached
// flow palette.
func (d *Dispatcher) UpdateCursorStatus(offset time.Duration, id, text string) {
	d.queue.Enqueue(Action{Offset: offset, Run: func() {
		payload := transport.Outbound{"command": transport.CmdUpdateCursorStatus, "id": id, "text": text}
		if d.lastCursorPalette != nil {
			payload["theme"] = *d.lastCursorPalette
		}
		d.broadcast(payload)
	}})
}

// HideCursorStatus queues removal of the cursor pill and clears the cached
// flow palette.
func (d *Dispatcher) HideCursorStatus(offset time.Duration, id string) {
	d.queue.Enqueue(Action{Offset: offset, Run: func() {
		d.lastCursorPalette = nil
		d.registry.Remove(id)
		_ = d.hub.Broadcast(transport.Outbound{"command": transport.CmdHideCursorStatus, "id": id})
	}})
}

// SetCursorStatusPosition records where the cursor pill should anchor and
// broadcasts the move immediately, bypassing the queue: the pill follows
// the live cursor, not the draw timeline.
func (d *Dispatcher) SetCursorStatusPosition(x, y float64) {
	d.cursorX, d.cursorY = x, y
	_ = d.hub.Broadcast(transport.Outbound{"command": transport.CmdSetCursorStatusPos, "x": x, "y": y})
}

// SetModelName broadcasts the model name badge shown by the renderer.
func (d *Dispatcher) SetModelName(name string) {
	_ = d.hub.Broadcast(transport.Outbound{"command": transport.CmdSetModelName, "name": name})
}

// SetBackground broadcasts a renderer background change.
func (d *Dispatcher) SetBackground(value string) {
	_ = d.hub.Broadcast(transport.Outbound{"command": transport.CmdSetBackground, "value": value})
}

// DirectResponse queues a terminal router response for display, marking it
// so the consumer holds it on screen for the minimum display time before
// the next action may hide it.
func (d *Dispatcher) DirectResponse(offset time.Duration, id, text string) {
	d.queue.Enqueue(Action{Offset: offset, DirectResponse: true, Run: func() {
		d.SetBackground("dim")
		d.broadcast(transport.Outbound{"command": transport.CmdShowCommandOverlay, "id": id, "text": text})
	}})
	d.queue.SetHideDirectResponse(func() {
		_ = d.hub.Broadcast(transport.Outbound{"command": transport.CmdOverlayHide, "id": id})
		d.SetBackground("")
		d.registry.Remove(id)
	})
}
