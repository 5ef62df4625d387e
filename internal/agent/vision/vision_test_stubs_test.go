package vision

import (
	"context"
	"time"

	"github.com/clovis-agent/clovis/internal/modelclient"
)

// fakeDesktop records every call it receives, for assertions in tests.
type fakeDesktop struct {
	moves    []fakeMove
	clicks   []ClickType
	typed    []string
	holds    []ClickType
	releases []ClickType
	title    string
	err      error
}

type fakeMove struct {
	X, Y float64
}

func (d *fakeDesktop) MoveCursor(ctx context.Context, x, y float64, duration time.Duration) error {
	if d.err != nil {
		return d.err
	}
	d.moves = append(d.moves, fakeMove{X: x, Y: y})
	return nil
}

func (d *fakeDesktop) Click(ctx context.Context, kind ClickType) error {
	if d.err != nil {
		return d.err
	}
	d.clicks = append(d.clicks, kind)
	return nil
}

func (d *fakeDesktop) HoldDown(ctx context.Context, kind ClickType) error {
	d.holds = append(d.holds, kind)
	return d.err
}

func (d *fakeDesktop) Release(ctx context.Context, kind ClickType) error {
	d.releases = append(d.releases, kind)
	return d.err
}

func (d *fakeDesktop) TypeString(ctx context.Context, text string, submit bool) error {
	if d.err != nil {
		return d.err
	}
	d.typed = append(d.typed, text)
	return nil
}

func (d *fakeDesktop) PressCtrlHotkey(ctx context.Context, key string) error { return d.err }
func (d *fakeDesktop) PressAltHotkey(ctx context.Context, key string) error { return d.err }
func (d *fakeDesktop) HoldKey(ctx context.Context, key string) error        { return d.err }
func (d *fakeDesktop) ReleaseKey(ctx context.Context, key string) error     { return d.err }
func (d *fakeDesktop) PressKeyForDuration(ctx context.Context, key string, duration time.Duration) error {
	return d.err
}
func (d *fakeDesktop) ActiveWindowTitle(ctx context.Context) (string, error) {
	return d.title, d.err
}

// fakeCapturer returns a fixed WindowCapture on every call.
type fakeCapturer struct {
	shot WindowCapture
	err  error
}

func (c *fakeCapturer) CaptureActiveWindow(ctx context.Context) (WindowCapture, error) {
	return c.shot, c.err
}

// fakeInvoker returns queued results in order, looping the last one.
type fakeInvoker struct {
	results []modelclient.Result
	errs    []error
	calls   int
}

func (f *fakeInvoker) Invoke(ctx context.Context, model string, messages []modelclient.Message, tools []modelclient.ToolDef) (modelclient.Result, error) {
	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return f.results[i], err
}

// fakeSpeaker records spoken text.
type fakeSpeaker struct {
	said []string
	err  error
}

func (s *fakeSpeaker) Speak(ctx context.Context, text string) error {
	if s.err != nil {
		return s.err
	}
	s.said = append(s.said, text)
	return nil
}
