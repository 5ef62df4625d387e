package vision

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ClickType enumerates the three supported click gestures.
type ClickType string

const (
	ClickLeft   ClickType = "left click"
	ClickDouble ClickType = "double left click"
	ClickRight  ClickType = "right click"
)

// NormalizeClickType accepts loose aliases ("left", "double", "right
// click", ...) and resolves them to a canonical ClickType.
func NormalizeClickType(raw string) (ClickType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "left", "left click", "click", "":
		return ClickLeft, nil
	case "double", "double click", "double left click":
		return ClickDouble, nil
	case "right", "right click":
		return ClickRight, nil
	default:
		return "", fmt.Errorf("unsupported click type: %s", raw)
	}
}

// Desktop is the low-level mouse/keyboard backend the Vision Agent drives.
// Like browser.RichSession, it is an injectable seam a concrete platform
// integration satisfies.
type Desktop interface {
	MoveCursor(ctx context.Context, x, y float64, duration time.Duration) error
	Click(ctx context.Context, kind ClickType) error
	HoldDown(ctx context.Context, kind ClickType) error
	Release(ctx context.Context, kind ClickType) error
	TypeString(ctx context.Context, text string, submit bool) error
	PressCtrlHotkey(ctx context.Context, key string) error
	PressAltHotkey(ctx context.Context, key string) error
	HoldKey(ctx context.Context, key string) error
	ReleaseKey(ctx context.Context, key string) error
	PressKeyForDuration(ctx context.Context, key string, duration time.Duration) error
	ActiveWindowTitle(ctx context.Context) (string, error)
}

// Capturer captures the active window (or whole screen) as encoded image
// bytes, plus the geometry needed to map crop-local coordinates back to
// screen space. Mirrors screenjudge.Capturer, extended with window
// geometry since the Vision Agent's crop-and-search tool needs it and
// Screen-Judge's single call does not.
type Capturer interface {
	CaptureActiveWindow(ctx context.Context) (WindowCapture, error)
}

// WindowCapture is one screenshot plus the window geometry needed to map
// image-local coordinates back to full-screen logical coordinates.
type WindowCapture struct {
	Image         []byte
	Width, Height int
	OffsetX       float64
	OffsetY       float64
	ScaleX        float64
	ScaleY        float64
	Title         string
}

// Speaker speaks text aloud. The TTS endpoint is optional;
// modeled the same way as Desktop, an injectable seam.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}
