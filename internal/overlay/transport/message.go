// Package transport implements the WebSocket bus between the orchestrator
// and the external overlay renderer (component A in the design: one
// overlay client, fanned-out draw/status commands, de-duplicated inbound
// events).
package transport

import "encoding/json"

// Inbound event names sent by the overlay renderer.
const (
	EventOverlayInput      = "overlay_input"
	EventCaptureScreenshot = "capture_screenshot"
	EventStopAll           = "stop_all"
	EventViewport          = "viewport"
	EventClick             = "click"
)

// Outbound command names understood by the overlay renderer.
const (
	CmdDrawBox              = "draw_box"
	CmdDrawText             = "draw_text"
	CmdDrawDot              = "draw_dot"
	CmdRemoveBox            = "remove_box"
	CmdRemoveText           = "remove_text"
	CmdRemoveDot            = "remove_dot"
	CmdClear                = "clear"
	CmdShowStatusBubble     = "show_status_bubble"
	CmdUpdateStatusBubble   = "update_status_bubble"
	CmdCompleteStatusBubble = "complete_status_bubble"
	CmdHideStatusBubble     = "hide_status_bubble"
	CmdShowCursorStatus     = "show_cursor_status"
	CmdUpdateCursorStatus   = "update_cursor_status"
	CmdHideCursorStatus     = "hide_cursor_status"
	CmdSetCursorStatusPos   = "set_cursor_status_position"
	CmdShowCommandOverlay   = "show_command_overlay"
	CmdOverlayHide          = "overlay_hide"
	CmdSetModelName         = "set_model_name"
	CmdSetBackground        = "set_background"
)

// Inbound is a single JSON frame received from the overlay renderer.
// Exactly one of the Event/command-shaped fields is meaningful per frame;
// the renderer distinguishes state-mutating "commands" (draw_box, ...)
// that it never itself sends, from control "events" below.
type Inbound struct {
	Event     string  `json:"event,omitempty"`
	Text      string  `json:"text,omitempty"`
	RequestID string  `json:"requestId,omitempty"`
	Width     float64 `json:"width,omitempty"`
	Height    float64 `json:"height,omitempty"`
	ID        string  `json:"id,omitempty"`
}

// Outbound is a single JSON frame sent to the overlay renderer. Command
// payloads are free-form (box/text/dot/status fields vary by Command), so
// Outbound carries them as a generic map plus a typed Command/ID for the
// transport's own bookkeeping (registry replay, theme injection).
type Outbound map[string]any

// Command returns the outbound payload's "command" field, or "".
func (o Outbound) Command() string {
	v, _ := o["command"].(string)
	return v
}

// ID returns the outbound payload's "id" field, or "".
func (o Outbound) ID() string {
	v, _ := o["id"].(string)
	return v
}

// Marshal serializes the outbound payload to a single JSON frame.
func (o Outbound) Marshal() ([]byte, error) {
	return json.Marshal(map[string]any(o))
}
