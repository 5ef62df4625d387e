package clovis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clovis-agent/clovis/internal/memory"
	"github.com/clovis-agent/clovis/internal/modelclient"
	"github.com/clovis-agent/clovis/internal/overlay/drawqueue"
	"github.com/clovis-agent/clovis/internal/overlay/theme"
	"github.com/clovis-agent/clovis/internal/overlay/transport"
)

type fakeInvoker struct {
	result modelclient.Result
	err    error
	gotTools []modelclient.ToolDef
}

func (f *fakeInvoker) Invoke(ctx context.Context, model string, messages []modelclient.Message, tools []modelclient.ToolDef) (modelclient.Result, error) {
	f.gotTools = tools
	return f.result, f.err
}

type fakeCapturer struct {
	shot []byte
	err  error
}

func (f *fakeCapturer) Capture(ctx context.Context) ([]byte, error) {
	return f.shot, f.err
}

func newTestDispatcher() *drawqueue.Dispatcher {
	hub := transport.NewHub(nil)
	d := drawqueue.NewDispatcher(hub, theme.NewSampler())
	go hub.Run()
	go d.Start()
	return d
}

func TestNew_RequiresInvokerCaptureDraw(t *testing.T) {
	_, err := New(nil, &fakeCapturer{}, nil, newTestDispatcher(), "")
	assert.Error(t, err)

	_, err = New(&fakeInvoker{}, nil, nil, newTestDispatcher(), "")
	assert.Error(t, err)

	_, err = New(&fakeInvoker{}, &fakeCapturer{}, nil, nil, "")
	assert.Error(t, err)
}

func TestNew_DefaultsModel(t *testing.T) {
	a, err := New(&fakeInvoker{}, &fakeCapturer{}, nil, newTestDispatcher(), "")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", a.model)
}

func TestAgent_Execute_CaptureFailureIsUnsuccessful(t *testing.T) {
	a, err := New(&fakeInvoker{}, &fakeCapturer{err: errors.New("no display")}, memory.New(), newTestDispatcher(), "gpt-4o")
	require.NoError(t, err)

	res, err := a.Execute(context.Background(), "what is this")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, Source, res.Source)
}

func TestAgent_Execute_DirectResponseShortCircuits(t *testing.T) {
	invoker := &fakeInvoker{result: modelclient.Result{FunctionCalls: []modelclient.FunctionCall{
		{Name: "direct_response", Args: map[string]any{"response_text": "That's a search bar."}},
	}}}
	a, err := New(invoker, &fakeCapturer{shot: []byte{1, 2, 3}}, memory.New(), newTestDispatcher(), "gpt-4o")
	require.NoError(t, err)

	res, err := a.Execute(context.Background(), "what is this")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "That's a search bar.", res.Message)
	assert.NotEmpty(t, invoker.gotTools)
}

func TestAgent_Execute_DispatchesTimeOrderedAnnotations(t *testing.T) {
	invoker := &fakeInvoker{result: modelclient.Result{FunctionCalls: []modelclient.FunctionCall{
		{Name: "draw_bounding_box", Args: map[string]any{
			"time": 0.2, "y_min": 10.0, "x_min": 10.0, "y_max": 60.0, "x_max": 110.0, "box_id": "box_1",
		}},
		{Name: "create_text", Args: map[string]any{
			"time": 0.3, "x": 10.0, "y": 5.0, "text": "Search bar",
		}},
		{Name: "destroy_box", Args: map[string]any{"time": 2.0, "box_id": "box_1"}},
	}}}
	a, err := New(invoker, &fakeCapturer{shot: []byte{1, 2, 3}}, memory.New(), newTestDispatcher(), "gpt-4o")
	require.NoError(t, err)

	res, err := a.Execute(context.Background(), "explain the search bar")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Message, "3 actions")
}

func TestAgent_Execute_FreeTextResponse(t *testing.T) {
	invoker := &fakeInvoker{result: modelclient.Result{Text: "This is a login form."}}
	a, err := New(invoker, &fakeCapturer{shot: []byte{1, 2, 3}}, memory.New(), newTestDispatcher(), "gpt-4o")
	require.NoError(t, err)

	res, err := a.Execute(context.Background(), "what is this")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "This is a login form.", res.Message)
}

func TestAgent_Execute_UnknownToolFailsChainStep(t *testing.T) {
	invoker := &fakeInvoker{result: modelclient.Result{FunctionCalls: []modelclient.FunctionCall{
		{Name: "not_a_real_tool", Args: map[string]any{}},
	}}}
	a, err := New(invoker, &fakeCapturer{shot: []byte{1, 2, 3}}, memory.New(), newTestDispatcher(), "gpt-4o")
	require.NoError(t, err)

	res, err := a.Execute(context.Background(), "do something weird")
	require.NoError(t, err)
	assert.False(t, res.Success)
}
