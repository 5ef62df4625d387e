package vision

import (
	"context"
	"testing"

	"github.com/clovis-agent/clovis/internal/memory"
	"github.com/clovis-agent/clovis/internal/modelclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_Run_StopsOnTaskIsComplete(t *testing.T) {
	shot := WindowCapture{Image: encodeTestJPEG(200, 200), Width: 200, Height: 200, ScaleX: 1, ScaleY: 1}
	invoker := &fakeInvoker{results: []modelclient.Result{
		{FunctionCalls: []modelclient.FunctionCall{{Name: "click_left_click", Args: map[string]any{}}}},
		{FunctionCalls: []modelclient.FunctionCall{{Name: "task_is_complete", Args: map[string]any{}}}},
	}}
	desktop := &fakeDesktop{}
	engine := NewEngine(invoker, desktop, &fakeCapturer{shot: shot}, memory.New(), nil, EngineConfig{})

	summary, err := engine.Run(context.Background(), "click the button")
	require.NoError(t, err)
	assert.Equal(t, "Task completed.", summary)
	assert.Len(t, desktop.clicks, 1)
}

func TestEngine_Run_ReturnsDirectTextWhenModelStopsCallingTools(t *testing.T) {
	shot := WindowCapture{Image: encodeTestJPEG(200, 200), Width: 200, Height: 200, ScaleX: 1, ScaleY: 1}
	invoker := &fakeInvoker{results: []modelclient.Result{{Text: "I cannot find that window."}}}
	engine := NewEngine(invoker, &fakeDesktop{}, &fakeCapturer{shot: shot}, memory.New(), nil, EngineConfig{})

	summary, err := engine.Run(context.Background(), "open the settings panel")
	require.NoError(t, err)
	assert.Equal(t, "I cannot find that window.", summary)
}

func TestEngine_Run_StopsAfterRepeatedClickLoop(t *testing.T) {
	shot := WindowCapture{Image: encodeTestJPEG(200, 200), Width: 200, Height: 200, ScaleX: 1, ScaleY: 1}
	// Text doubles as the crop-and-search locator reply so the positioning
	// call succeeds and the cycle detector sees a full position+click pair.
	cycle := modelclient.Result{
		Text: "[100, 100, 200, 200]",
		FunctionCalls: []modelclient.FunctionCall{
			{Name: "go_to_element", Args: map[string]any{"ymin": 0.0, "xmin": 0.0, "ymax": 20.0, "xmax": 20.0, "target_description": "icon"}},
			{Name: "click_left_click", Args: map[string]any{}},
		},
	}
	invoker := &fakeInvoker{results: []modelclient.Result{cycle}}
	engine := NewEngine(invoker, &fakeDesktop{}, &fakeCapturer{shot: shot}, memory.New(), nil, EngineConfig{MaxSteps: 10})

	summary, err := engine.Run(context.Background(), "click the icon")
	require.NoError(t, err)
	assert.Equal(t, "Stopped: the same action kept repeating.", summary)
}

func TestEngine_Run_RespectsMaxSteps(t *testing.T) {
	shot := WindowCapture{Image: encodeTestJPEG(200, 200), Width: 200, Height: 200, ScaleX: 1, ScaleY: 1}
	invoker := &fakeInvoker{results: []modelclient.Result{
		{FunctionCalls: []modelclient.FunctionCall{{Name: "type_string", Args: map[string]any{"string": "x"}}}},
	}}
	engine := NewEngine(invoker, &fakeDesktop{}, &fakeCapturer{shot: shot}, memory.New(), nil, EngineConfig{MaxSteps: 2})

	summary, err := engine.Run(context.Background(), "type forever")
	require.NoError(t, err)
	assert.Equal(t, "Stopped after reaching the step limit without completing the task.", summary)
}

func TestEngine_Run_WithSpeakerRoutesTTSSpeak(t *testing.T) {
	shot := WindowCapture{Image: encodeTestJPEG(200, 200), Width: 200, Height: 200, ScaleX: 1, ScaleY: 1}
	invoker := &fakeInvoker{results: []modelclient.Result{
		{FunctionCalls: []modelclient.FunctionCall{{Name: "tts_speak", Args: map[string]any{"text": "hi"}}}},
		{FunctionCalls: []modelclient.FunctionCall{{Name: "task_is_complete", Args: map[string]any{}}}},
	}}
	speaker := &fakeSpeaker{}
	engine := NewEngine(invoker, &fakeDesktop{}, &fakeCapturer{shot: shot}, memory.New(), nil, EngineConfig{}).WithSpeaker(speaker)

	_, err := engine.Run(context.Background(), "say hi then finish")
	require.NoError(t, err)
	require.Len(t, speaker.said, 1)
	assert.Equal(t, "hi", speaker.said[0])
}

func TestNormalizeCallBatch_AllowedShapes(t *testing.T) {
	pos := modelclient.FunctionCall{Name: "go_to_element", Args: map[string]any{}}
	click := modelclient.FunctionCall{Name: "click_left_click", Args: map[string]any{}}
	rightClick := modelclient.FunctionCall{Name: "click_right_click", Args: map[string]any{}}
	complete := modelclient.FunctionCall{Name: "task_is_complete", Args: map[string]any{}}
	typing := modelclient.FunctionCall{Name: "type_string", Args: map[string]any{}}

	cases := []struct {
		name string
		in   []modelclient.FunctionCall
		want []string
	}{
		{"single call passes", []modelclient.FunctionCall{click}, []string{"click_left_click"}},
		{"position+click passes", []modelclient.FunctionCall{pos, click}, []string{"go_to_element", "click_left_click"}},
		{"position+click+complete passes", []modelclient.FunctionCall{pos, click, complete}, []string{"go_to_element", "click_left_click", "task_is_complete"}},
		{"click+complete passes", []modelclient.FunctionCall{click, complete}, []string{"click_left_click", "task_is_complete"}},
		{"complete first drops the rest", []modelclient.FunctionCall{complete, click}, []string{"task_is_complete"}},
		{"consecutive clicks collapse to the first", []modelclient.FunctionCall{click, rightClick, click}, []string{"click_left_click"}},
		{"position+click+extra drops the extra", []modelclient.FunctionCall{pos, click, typing}, []string{"go_to_element", "click_left_click"}},
		{"unsupported pair collapses to the first", []modelclient.FunctionCall{typing, click}, []string{"type_string"}},
	}

	for _, tc := range cases {
		got := normalizeCallBatch(tc.in)
		names := make([]string, 0, len(got))
		for _, c := range got {
			names = append(names, c.Name)
		}
		assert.Equal(t, tc.want, names, tc.name)
	}
}

func TestEngine_Run_AutoClicksAfterRepeatedPositioning(t *testing.T) {
	shot := WindowCapture{Image: encodeTestJPEG(200, 200), Width: 200, Height: 200, ScaleX: 1, ScaleY: 1}
	// The looped result doubles as the locator reply: the crop-and-search
	// pass parses the bbox out of Text while the engine reads FunctionCalls.
	positionOnly := modelclient.Result{
		Text: "[100, 100, 200, 200]",
		FunctionCalls: []modelclient.FunctionCall{{
			Name: "go_to_element",
			Args: map[string]any{"ymin": 100.0, "xmin": 100.0, "ymax": 300.0, "xmax": 300.0, "target_description": "save icon"},
		}},
	}
	invoker := &fakeInvoker{results: []modelclient.Result{positionOnly}}
	desktop := &fakeDesktop{}
	engine := NewEngine(invoker, desktop, &fakeCapturer{shot: shot}, memory.New(), nil, EngineConfig{MaxSteps: 2})

	_, err := engine.Run(context.Background(), "click the save icon")
	require.NoError(t, err)

	// First step positions; the identical second step synthesizes the click
	// instead of hovering again.
	require.Len(t, desktop.clicks, 1)
	assert.Equal(t, ClickLeft, desktop.clicks[0])
}

func TestEngine_Run_LegacyFallbackAfterRepeatedIdenticalClick(t *testing.T) {
	shot := WindowCapture{Image: encodeTestJPEG(200, 200), Width: 200, Height: 200, ScaleX: 1, ScaleY: 1}
	// Every step re-issues the identical click; the looped Text gives the
	// legacy locator a parseable bbox when the rescue fires.
	clickOnly := modelclient.Result{
		Text: "[100, 100, 200, 200]",
		FunctionCalls: []modelclient.FunctionCall{{
			Name: "click_left_click",
			Args: map[string]any{"target_description": "submit button"},
		}},
	}
	invoker := &fakeInvoker{results: []modelclient.Result{clickOnly}}
	desktop := &fakeDesktop{}
	engine := NewEngine(invoker, desktop, &fakeCapturer{shot: shot}, memory.New(), nil, EngineConfig{MaxSteps: 3})

	_, err := engine.Run(context.Background(), "press submit")
	require.NoError(t, err)

	// Steps 1-2 click directly; step 3 hits the repeat threshold and the
	// legacy locator repositions the cursor before clicking.
	require.Len(t, desktop.clicks, 3)
	require.Len(t, desktop.moves, 1)
}
