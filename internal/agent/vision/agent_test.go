package vision

import (
	"context"
	"testing"

	"github.com/clovis-agent/clovis/internal/memory"
	"github.com/clovis-agent/clovis/internal/modelclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresInvokerDesktopCapture(t *testing.T) {
	_, err := New(nil, &fakeDesktop{}, &fakeCapturer{}, nil, nil, nil, Config{})
	assert.Error(t, err)

	_, err = New(&fakeInvoker{}, nil, &fakeCapturer{}, nil, nil, nil, Config{})
	assert.Error(t, err)

	_, err = New(&fakeInvoker{}, &fakeDesktop{}, nil, nil, nil, nil, Config{})
	assert.Error(t, err)
}

func TestAgent_Execute_ReturnsSuccessResult(t *testing.T) {
	shot := WindowCapture{Image: encodeTestJPEG(200, 200), Width: 200, Height: 200, ScaleX: 1, ScaleY: 1}
	invoker := &fakeInvoker{results: []modelclient.Result{
		{FunctionCalls: []modelclient.FunctionCall{{Name: "task_is_complete", Args: map[string]any{}}}},
	}}
	a, err := New(invoker, &fakeDesktop{}, &fakeCapturer{shot: shot}, nil, memory.New(), nil, Config{})
	require.NoError(t, err)

	res, err := a.Execute(context.Background(), "finish immediately")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, Source, res.Source)
	assert.Equal(t, "Task completed.", res.Message)
}

func TestAgent_Execute_ReportsCaptureFailureAsUnsuccessful(t *testing.T) {
	a, err := New(&fakeInvoker{}, &fakeDesktop{}, &fakeCapturer{err: assertErr}, nil, memory.New(), nil, Config{})
	require.NoError(t, err)

	res, err := a.Execute(context.Background(), "do something")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, Source, res.Source)
}

var assertErr = errCapture{}

type errCapture struct{}

func (errCapture) Error() string { return "capture failed" }
