// Package platform holds the injectable seams for the OS-level
// collaborators the orchestrator core does not implement itself: screen
// capture, mouse/keyboard automation, and audio playback. Like
// browser.RichSession, each is modeled as a narrow interface a concrete
// platform integration satisfies. Unconfigured is the stand-in wired by
// default: every call fails fast with a clear configuration-missing error
// instead of silently doing nothing.
package platform

import (
	"context"
	"errors"
	"time"

	"github.com/clovis-agent/clovis/internal/agent/clovis"
	"github.com/clovis-agent/clovis/internal/agent/vision"
)

// ErrNotConfigured is returned by every Unconfigured method.
var ErrNotConfigured = errors.New("platform: no backend configured for this OS capability")

// Unconfigured implements screenjudge.Capturer, clovis.Capturer,
// vision.Desktop, vision.Capturer, and vision.Speaker, failing every call
// until a real platform integration is injected in its place.
type Unconfigured struct{}

// Capture implements screenjudge.Capturer and clovis.Capturer.
func (Unconfigured) Capture(ctx context.Context) ([]byte, error) {
	return nil, ErrNotConfigured
}

var _ clovis.Capturer = Unconfigured{}

// CaptureActiveWindow implements vision.Capturer.
func (Unconfigured) CaptureActiveWindow(ctx context.Context) (vision.WindowCapture, error) {
	return vision.WindowCapture{}, ErrNotConfigured
}

// MoveCursor implements vision.Desktop.
func (Unconfigured) MoveCursor(ctx context.Context, x, y float64, duration time.Duration) error {
	return ErrNotConfigured
}

// Click implements vision.Desktop.
func (Unconfigured) Click(ctx context.Context, kind vision.ClickType) error { return ErrNotConfigured }

// HoldDown implements vision.Desktop.
func (Unconfigured) HoldDown(ctx context.Context, kind vision.ClickType) error {
	return ErrNotConfigured
}

// Release implements vision.Desktop.
func (Unconfigured) Release(ctx context.Context, kind vision.ClickType) error {
	return ErrNotConfigured
}

// TypeString implements vision.Desktop.
func (Unconfigured) TypeString(ctx context.Context, text string, submit bool) error {
	return ErrNotConfigured
}

// PressCtrlHotkey implements vision.Desktop.
func (Unconfigured) PressCtrlHotkey(ctx context.Context, key string) error { return ErrNotConfigured }

// PressAltHotkey implements vision.Desktop.
func (Unconfigured) PressAltHotkey(ctx context.Context, key string) error { return ErrNotConfigured }

// HoldKey implements vision.Desktop.
func (Unconfigured) HoldKey(ctx context.Context, key string) error { return ErrNotConfigured }

// ReleaseKey implements vision.Desktop.
func (Unconfigured) ReleaseKey(ctx context.Context, key string) error { return ErrNotConfigured }

// PressKeyForDuration implements vision.Desktop.
func (Unconfigured) PressKeyForDuration(ctx context.Context, key string, duration time.Duration) error {
	return ErrNotConfigured
}

// ActiveWindowTitle implements vision.Desktop.
func (Unconfigured) ActiveWindowTitle(ctx context.Context) (string, error) {
	return "", ErrNotConfigured
}

// Speak implements vision.Speaker.
func (Unconfigured) Speak(ctx context.Context, text string) error { return ErrNotConfigured }
