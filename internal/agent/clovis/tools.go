// This file wires Clovis's fixed, closed tool vocabulary
// onto
// internal/agent/toolcall.Registry and internal/overlay/drawqueue.Dispatcher,
// the same draw-action path the Vision Agent's status bubbles and cursor
// dots already use. Every tool except direct_response carries a "time"
// argument, seconds from the start of the response; argOffset converts
// that to the Dispatcher's offset time.Duration.
package clovis

import (
	"context"
	"fmt"
	"time"

	"github.com/clovis-agent/clovis/internal/agent/toolcall"
	"github.com/clovis-agent/clovis/internal/overlay/drawqueue"
)

func schema(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func strProp(desc string) map[string]any    { return map[string]any{"type": "string", "description": desc} }
func numProp(desc string) map[string]any    { return map[string]any{"type": "number", "description": desc} }
func objProp(desc string) map[string]any {
	return map[string]any{
		"type":        "object",
		"description": desc,
		"properties": map[string]any{
			"x":      numProp("Box left edge, pixels."),
			"y":      numProp("Box top edge, pixels."),
			"width":  numProp("Box width, pixels."),
			"height": numProp("Box height, pixels."),
		},
	}
}

type funcTool struct {
	name   string
	desc   string
	params map[string]any
	run    func(ctx context.Context, args map[string]any) (toolcall.ToolResult, error)
}

func (t *funcTool) Name() string        { return t.name }
func (t *funcTool) Description() string { return t.desc }
func (t *funcTool) Parameters() map[string]any { return t.params }
func (t *funcTool) Execute(ctx context.Context, args map[string]any) (toolcall.ToolResult, error) {
	return t.run(ctx, args)
}

func argFloat(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func argOffset(args map[string]any) time.Duration {
	return time.Duration(argFloat(args, "time") * float64(time.Second))
}

// boxPlacement resolves create_text_for_box's box+position+padding into an
// absolute x/y the Dispatcher's DrawText understands.
func boxPlacement(args map[string]any) (x, y float64) {
	box, _ := args["box"].(map[string]any)
	bx := argFloat(box, "x")
	by := argFloat(box, "y")
	bw := argFloat(box, "width")
	bh := argFloat(box, "height")
	padding := argFloat(args, "padding")

	switch argString(args, "position") {
	case "top":
		return bx, by - padding
	case "left":
		return bx - padding, by + bh/2
	case "right":
		return bx + bw + padding, by + bh/2
	default: // "bottom" and unrecognized positions default to below the box
		return bx, by + bh + padding
	}
}

// toolDirectResponse names the direct_response tool so Execute can short-circuit the
// remaining batch (CLOVIS_SYSTEM_PROMPT: "that function MUST be the very
// first function called").
const toolDirectResponse = "direct_response"

// BuildToolRegistry registers Clovis's closed tool vocabulary against a
// concrete draw-action Dispatcher, mirroring CLOVIS_TOOLS/CLOVIS_TOOL_MAP.
func BuildToolRegistry(draw *drawqueue.Dispatcher) *toolcall.Registry {
	reg := toolcall.NewRegistry()

	reg.MustRegister(&funcTool{
		name: "draw_bounding_box",
		desc: "Draw a bounding box around a UI element at a given time offset.",
		params: schema(map[string]any{
			"time":         numProp("Seconds from the start of this response."),
			"y_min":        numProp("Top edge, pixels."),
			"x_min":        numProp("Left edge, pixels."),
			"y_max":        numProp("Bottom edge, pixels."),
			"x_max":        numProp("Right edge, pixels."),
			"box_id":       strProp("Unique identifier for this box, reused by destroy_box."),
			"stroke":       strProp("Box stroke color. Omit to use the ambient theme accent; any non-empty value turns that accent off, and the color itself is not sent to the renderer."),
			"stroke_width": numProp("Stroke width in pixels. Accepted but not sent to the renderer."),
			"opacity":      numProp("Stroke opacity, 0-1. Accepted but not sent to the renderer."),
		}, "time", "y_min", "x_min", "y_max", "x_max", "box_id"),
		run: func(ctx context.Context, args map[string]any) (toolcall.ToolResult, error) {
			xMin, yMin := argFloat(args, "x_min"), argFloat(args, "y_min")
			w := argFloat(args, "x_max") - xMin
			h := argFloat(args, "y_max") - yMin
			boxID := argString(args, "box_id")
			autoContrast := argString(args, "stroke") == ""
			draw.DrawBox(argOffset(args), boxID, xMin, yMin, w, h, autoContrast)
			return toolcall.NewSuccessResult(fmt.Sprintf("drew box %s", boxID)), nil
		},
	})

	reg.MustRegister(&funcTool{
		name: "create_text",
		desc: "Draw a text label at an absolute position at a given time offset.",
		params: schema(map[string]any{
			"time":      numProp("Seconds from the start of this response."),
			"x":         numProp("Left edge, pixels."),
			"y":         numProp("Baseline position, pixels."),
			"text":      strProp("Text content."),
			"font_size": numProp("Font size, pixels."),
			"align":     strProp("Horizontal alignment: left, center, right."),
			"baseline":  strProp("Vertical baseline: alphabetic, top, middle, bottom."),
		}, "time", "x", "y", "text"),
		run: func(ctx context.Context, args map[string]any) (toolcall.ToolResult, error) {
			textID := fmt.Sprintf("text-%d", time.Duration(argFloat(args, "time")*float64(time.Second)))
			draw.DrawText(argOffset(args), textID, argString(args, "text"), argFloat(args, "x"), argFloat(args, "y"),
				defaultFontSize(args), defaultOr(argString(args, "align"), "left"), defaultOr(argString(args, "baseline"), "alphabetic"))
			return toolcall.NewSuccessResult("drew text " + textID), nil
		},
	})

	reg.MustRegister(&funcTool{
		name: "create_text_for_box",
		desc: "Draw a text label positioned relative to an existing bounding box (above/below/left/right).",
		params: schema(map[string]any{
			"time":      numProp("Seconds from the start of this response."),
			"box":       objProp("The box this label is placed relative to."),
			"text":      strProp("Text content."),
			"position":  strProp("Placement relative to the box: top, bottom, left, right."),
			"font_size": numProp("Font size, pixels."),
			"align":     strProp("Horizontal alignment: left, center, right."),
			"padding":   numProp("Gap between the box edge and the label, pixels."),
		}, "time", "box", "text"),
		run: func(ctx context.Context, args map[string]any) (toolcall.ToolResult, error) {
			x, y := boxPlacement(args)
			textID := fmt.Sprintf("text-box-%d", time.Duration(argFloat(args, "time")*float64(time.Second)))
			draw.DrawText(argOffset(args), textID, argString(args, "text"), x, y,
				defaultFontSize(args), defaultOr(argString(args, "align"), "left"), "alphabetic")
			return toolcall.NewSuccessResult("drew text " + textID), nil
		},
	})

	reg.MustRegister(&funcTool{
		name: "draw_pointer_to_object",
		desc: "Draw a pointer dot at a screen location with an explanatory text label beside it.",
		params: schema(map[string]any{
			"time":   numProp("Seconds from the start of this response."),
			"x_pos":  numProp("Pointer dot x position, pixels."),
			"y_pos":  numProp("Pointer dot y position, pixels."),
			"text":   strProp("Explanatory label text."),
			"text_x": numProp("Label x position, pixels."),
			"text_y": numProp("Label y position, pixels."),
		}, "time", "x_pos", "y_pos", "text", "text_x", "text_y"),
		run: func(ctx context.Context, args map[string]any) (toolcall.ToolResult, error) {
			offset := argOffset(args)
			stamp := time.Duration(argFloat(args, "time") * float64(time.Second))
			dotID := fmt.Sprintf("dot-%d", stamp)
			textID := fmt.Sprintf("pointer-text-%d", stamp)
			draw.DrawDot(offset, dotID, argFloat(args, "x_pos"), argFloat(args, "y_pos"))
			draw.DrawText(offset, textID, argString(args, "text"), argFloat(args, "text_x"), argFloat(args, "text_y"), 14, "left", "alphabetic")
			return toolcall.NewSuccessResult("drew pointer " + dotID), nil
		},
	})

	reg.MustRegister(&funcTool{
		name:   "destroy_box",
		desc:   "Remove a previously drawn bounding box.",
		params: schema(map[string]any{"time": numProp("Seconds from the start of this response."), "box_id": strProp("Box to remove.")}, "time", "box_id"),
		run: func(ctx context.Context, args map[string]any) (toolcall.ToolResult, error) {
			boxID := argString(args, "box_id")
			draw.RemoveBox(argOffset(args), boxID)
			return toolcall.NewSuccessResult("removed box " + boxID), nil
		},
	})

	reg.MustRegister(&funcTool{
		name:   "destroy_text",
		desc:   "Remove a previously drawn text label.",
		params: schema(map[string]any{"time": numProp("Seconds from the start of this response."), "text_id": strProp("Text label to remove.")}, "time", "text_id"),
		run: func(ctx context.Context, args map[string]any) (toolcall.ToolResult, error) {
			textID := argString(args, "text_id")
			draw.RemoveText(argOffset(args), textID)
			return toolcall.NewSuccessResult("removed text " + textID), nil
		},
	})

	reg.MustRegister(&funcTool{
		name:   "clear_screen",
		desc:   "Remove every annotation currently drawn on screen.",
		params: schema(map[string]any{"time": numProp("Seconds from the start of this response.")}, "time"),
		run: func(ctx context.Context, args map[string]any) (toolcall.ToolResult, error) {
			draw.Clear(argOffset(args))
			return toolcall.NewSuccessResult("cleared"), nil
		},
	})

	reg.MustRegister(&funcTool{
		name: toolDirectResponse,
		desc: "Answer the user's query directly, with no on-screen annotation. Must be the first and only call when used.",
		params: schema(map[string]any{
			"response_text": strProp("The answer shown to the user."),
		}, "response_text"),
		run: func(ctx context.Context, args map[string]any) (toolcall.ToolResult, error) {
			return toolcall.NewSuccessResult(argString(args, "response_text")), nil
		},
	})

	return reg
}

func defaultFontSize(args map[string]any) float64 {
	if v := argFloat(args, "font_size"); v > 0 {
		return v
	}
	return 16
}

func defaultOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
