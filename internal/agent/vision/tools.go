// This file wires the Vision Agent's fixed, closed tool vocabulary
// onto internal/agent/toolcall.Registry, the same dispatch mechanism used
// throughout the orchestrator's closed tool vocabularies.
package vision

import (
	"context"
	"fmt"
	"time"

	"github.com/clovis-agent/clovis/internal/agent/toolcall"
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

func strProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func numProp(desc string) map[string]any {
	return map[string]any{"type": "number", "description": desc}
}

func boolProp(desc string) map[string]any {
	return map[string]any{"type": "boolean", "description": desc}
}

var statusMeta = map[string]any{
	"status_text":         strProp("Concise user-facing status describing this action."),
	"target_description":  strProp("Short human label for the target element."),
}

func withStatus(props map[string]any) map[string]any {
	merged := make(map[string]any, len(props)+len(statusMeta))
	for k, v := range props {
		merged[k] = v
	}
	for k, v := range statusMeta {
		merged[k] = v
	}
	return merged
}

type funcTool struct {
	name   string
	desc   string
	params map[string]any
	run    func(ctx context.Context, args map[string]any) (toolcall.ToolResult, error)
}

func (t *funcTool) Name() string                  { return t.name }
func (t *funcTool) Description() string           { return t.desc }
func (t *funcTool) Parameters() map[string]any    { return t.params }
func (t *funcTool) Execute(ctx context.Context, args map[string]any) (toolcall.ToolResult, error) {
	return t.run(ctx, args)
}

// BuildToolRegistry registers the Vision Agent's closed tool vocabulary
// against a concrete Desktop/Locator/Speaker, mirroring VISION_TOOLS.
// currentShot is called by the positioning tools (go_to_element,
// crop_and_search) to fetch the screenshot the model's coordinates were
// judged against; the engine updates it once per step before dispatch.
func BuildToolRegistry(desktop Desktop, locator *Locator, speaker Speaker, currentShot func() WindowCapture) *toolcall.Registry {
	reg := toolcall.NewRegistry()
	if currentShot == nil {
		currentShot = func() WindowCapture { return WindowCapture{} }
	}

	argFloat := func(args map[string]any, key string) float64 {
		v, _ := toFloat(args[key])
		return v
	}
	argString := func(args map[string]any, key string) string {
		s, _ := args[key].(string)
		return s
	}
	argBool := func(args map[string]any, key string) bool {
		b, _ := args[key].(bool)
		return b
	}

	reg.MustRegister(&funcTool{
		name: "go_to_element",
		desc: "Position the cursor over a described UI element without clicking.",
		params: schema(withStatus(map[string]any{
			"ymin": numProp("Top edge, 0-1000 normalized."),
			"xmin": numProp("Left edge, 0-1000 normalized."),
			"ymax": numProp("Bottom edge, 0-1000 normalized."),
			"xmax": numProp("Right edge, 0-1000 normalized."),
		}), "ymin", "xmin", "ymax", "xmax"),
		run: func(ctx context.Context, args map[string]any) (toolcall.ToolResult, error) {
			box := BBox{
				YMin: argFloat(args, "ymin"), XMin: argFloat(args, "xmin"),
				YMax: argFloat(args, "ymax"), XMax: argFloat(args, "xmax"),
			}
			res, err := locator.CropAndSearch(ctx, currentShot(), box, argString(args, "target_description"), "", false)
			if err != nil {
				return toolcall.NewErrorResult(err.Error()), err
			}
			if err := desktop.MoveCursor(ctx, res.X, res.Y, 200*time.Millisecond); err != nil {
				return toolcall.NewErrorResult(err.Error()), err
			}
			return toolcall.NewSuccessResult(fmt.Sprintf("positioned at (%.0f, %.0f)", res.X, res.Y)), nil
		},
	})

	reg.MustRegister(&funcTool{
		name: "crop_and_search",
		desc: "Zoom into a coarse region and precisely locate a described target before clicking.",
		params: schema(withStatus(map[string]any{
			"ymin": numProp("Top edge, 0-1000 normalized."),
			"xmin": numProp("Left edge, 0-1000 normalized."),
			"ymax": numProp("Bottom edge, 0-1000 normalized."),
			"xmax": numProp("Right edge, 0-1000 normalized."),
		}), "ymin", "xmin", "ymax", "xmax"),
		run: func(ctx context.Context, args map[string]any) (toolcall.ToolResult, error) {
			box := BBox{
				YMin: argFloat(args, "ymin"), XMin: argFloat(args, "xmin"),
				YMax: argFloat(args, "ymax"), XMax: argFloat(args, "xmax"),
			}
			res, err := locator.CropAndSearch(ctx, currentShot(), box, argString(args, "target_description"), "", false)
			if err != nil {
				return toolcall.NewErrorResult(err.Error()), err
			}
			if err := desktop.MoveCursor(ctx, res.X, res.Y, 200*time.Millisecond); err != nil {
				return toolcall.NewErrorResult(err.Error()), err
			}
			return toolcall.NewSuccessResult(fmt.Sprintf("positioned at (%.0f, %.0f)", res.X, res.Y)), nil
		},
	})

	registerClick := func(name string, kind ClickType) {
		reg.MustRegister(&funcTool{
			name:   name,
			desc:   fmt.Sprintf("Perform a %s at the current cursor position.", kind),
			params: schema(withStatus(map[string]any{})),
			run: func(ctx context.Context, args map[string]any) (toolcall.ToolResult, error) {
				if err := desktop.Click(ctx, kind); err != nil {
					return toolcall.NewErrorResult(err.Error()), err
				}
				return toolcall.NewSuccessResult(string(kind)), nil
			},
		})
	}
	registerClick("click_left_click", ClickLeft)
	registerClick("click_double_left_click", ClickDouble)
	registerClick("click_right_click", ClickRight)

	registerHold := func(name string, kind ClickType, down bool) {
		reg.MustRegister(&funcTool{
			name:   name,
			desc:   fmt.Sprintf("%s the mouse button for a %s.", map[bool]string{true: "Hold down", false: "Release"}[down], kind),
			params: schema(withStatus(map[string]any{})),
			run: func(ctx context.Context, args map[string]any) (toolcall.ToolResult, error) {
				var err error
				if down {
					err = desktop.HoldDown(ctx, kind)
				} else {
					err = desktop.Release(ctx, kind)
				}
				if err != nil {
					return toolcall.NewErrorResult(err.Error()), err
				}
				return toolcall.NewSuccessResult("ok"), nil
			},
		})
	}
	registerHold("hold_down_left_click", ClickLeft, true)
	registerHold("hold_down_right_click", ClickRight, true)
	registerHold("release_left_click", ClickLeft, false)
	registerHold("release_right_click", ClickRight, false)

	reg.MustRegister(&funcTool{
		name: "type_string",
		desc: "Type text at the current focus, optionally submitting with Enter.",
		params: schema(withStatus(map[string]any{
			"string": strProp("Text to type."),
			"submit": boolProp("Press Enter after typing."),
		}), "string"),
		run: func(ctx context.Context, args map[string]any) (toolcall.ToolResult, error) {
			if err := desktop.TypeString(ctx, argString(args, "string"), argBool(args, "submit")); err != nil {
				return toolcall.NewErrorResult(err.Error()), err
			}
			return toolcall.NewSuccessResult("typed"), nil
		},
	})

	reg.MustRegister(&funcTool{
		name:   "press_ctrl_hotkey",
		desc:   "Press Ctrl (or Cmd on macOS) plus the given key.",
		params: schema(withStatus(map[string]any{"key": strProp("Key to combine with Ctrl/Cmd.")}), "key"),
		run: func(ctx context.Context, args map[string]any) (toolcall.ToolResult, error) {
			if err := desktop.PressCtrlHotkey(ctx, argString(args, "key")); err != nil {
				return toolcall.NewErrorResult(err.Error()), err
			}
			return toolcall.NewSuccessResult("ok"), nil
		},
	})

	reg.MustRegister(&funcTool{
		name:   "press_alt_hotkey",
		desc:   "Press Alt plus the given key.",
		params: schema(withStatus(map[string]any{"key": strProp("Key to combine with Alt.")}), "key"),
		run: func(ctx context.Context, args map[string]any) (toolcall.ToolResult, error) {
			if err := desktop.PressAltHotkey(ctx, argString(args, "key")); err != nil {
				return toolcall.NewErrorResult(err.Error()), err
			}
			return toolcall.NewSuccessResult("ok"), nil
		},
	})

	reg.MustRegister(&funcTool{
		name:   "hold_down_key",
		desc:   "Hold a keyboard key down until released.",
		params: schema(withStatus(map[string]any{"key": strProp("Key to hold.")}), "key"),
		run: func(ctx context.Context, args map[string]any) (toolcall.ToolResult, error) {
			if err := desktop.HoldKey(ctx, argString(args, "key")); err != nil {
				return toolcall.NewErrorResult(err.Error()), err
			}
			return toolcall.NewSuccessResult("ok"), nil
		},
	})

	reg.MustRegister(&funcTool{
		name:   "release_held_key",
		desc:   "Release a previously held keyboard key.",
		params: schema(withStatus(map[string]any{"key": strProp("Key to release.")}), "key"),
		run: func(ctx context.Context, args map[string]any) (toolcall.ToolResult, error) {
			if err := desktop.ReleaseKey(ctx, argString(args, "key")); err != nil {
				return toolcall.NewErrorResult(err.Error()), err
			}
			return toolcall.NewSuccessResult("ok"), nil
		},
	})

	reg.MustRegister(&funcTool{
		name: "press_key_for_duration",
		desc: "Hold a keyboard key down for a fixed duration.",
		params: schema(withStatus(map[string]any{
			"key":             strProp("Key to press."),
			"duration_seconds": numProp("How long to hold the key, in seconds."),
		}), "key", "duration_seconds"),
		run: func(ctx context.Context, args map[string]any) (toolcall.ToolResult, error) {
			d := time.Duration(argFloat(args, "duration_seconds") * float64(time.Second))
			if err := desktop.PressKeyForDuration(ctx, argString(args, "key"), d); err != nil {
				return toolcall.NewErrorResult(err.Error()), err
			}
			return toolcall.NewSuccessResult("ok"), nil
		},
	})

	reg.MustRegister(&funcTool{
		name:   "tts_speak",
		desc:   "Speak a short message aloud to the user.",
		params: schema(withStatus(map[string]any{"text": strProp("What to say.")}), "text"),
		run: func(ctx context.Context, args map[string]any) (toolcall.ToolResult, error) {
			if speaker == nil {
				return toolcall.NewSuccessResult("ok"), nil
			}
			if err := speaker.Speak(ctx, argString(args, "text")); err != nil {
				return toolcall.NewErrorResult(err.Error()), err
			}
			return toolcall.NewSuccessResult("ok"), nil
		},
	})

	reg.MustRegister(&funcTool{
		name:   "task_is_complete",
		desc:   "Declare the task fully complete. Call with no other function.",
		params: schema(withStatus(map[string]any{})),
		run: func(ctx context.Context, args map[string]any) (toolcall.ToolResult, error) {
			return toolcall.NewSuccessResult("done"), nil
		},
	})

	return reg
}
