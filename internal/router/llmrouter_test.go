package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clovis-agent/clovis/internal/modelclient"
)

func TestLLMRouterTranslatesDirectResponseCall(t *testing.T) {
	invoker := modelclient.InvokerFunc(func(ctx context.Context, model string, messages []modelclient.Message, tools []modelclient.ToolDef) (modelclient.Result, error) {
		assert.Len(t, tools, 6)
		return modelclient.Result{FunctionCalls: []modelclient.FunctionCall{
			{Name: toolDirectResponse, Args: map[string]any{"response_text": "4"}},
		}}, nil
	})

	lr := NewLLMRouter(invoker, "rapid-response")
	d, err := lr.NextStep(context.Background(), "what is 2+2?")
	require.NoError(t, err)
	assert.Equal(t, KindDirect, d.Kind)
	assert.Equal(t, "4", d.ResponseText)
}

func TestLLMRouterTranslatesDelegateCall(t *testing.T) {
	invoker := modelclient.InvokerFunc(func(ctx context.Context, model string, messages []modelclient.Message, tools []modelclient.ToolDef) (modelclient.Result, error) {
		return modelclient.Result{FunctionCalls: []modelclient.FunctionCall{
			{Name: toolInvokeCuaCLI, Args: map[string]any{"task": "clone the repo"}},
		}}, nil
	})

	lr := NewLLMRouter(invoker, "rapid-response")
	d, err := lr.NextStep(context.Background(), "clone it")
	require.NoError(t, err)
	assert.Equal(t, KindCuaCLI, d.Kind)
	assert.Equal(t, "clone the repo", d.Task)
}

func TestLLMRouterTreatsPlainTextAsDirect(t *testing.T) {
	invoker := modelclient.InvokerFunc(func(ctx context.Context, model string, messages []modelclient.Message, tools []modelclient.ToolDef) (modelclient.Result, error) {
		return modelclient.Result{Text: "just text"}, nil
	})

	lr := NewLLMRouter(invoker, "rapid-response")
	d, err := lr.NextStep(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, KindDirect, d.Kind)
	assert.Equal(t, "just text", d.ResponseText)
}

func TestLLMRouterRejectsUnknownTool(t *testing.T) {
	invoker := modelclient.InvokerFunc(func(ctx context.Context, model string, messages []modelclient.Message, tools []modelclient.ToolDef) (modelclient.Result, error) {
		return modelclient.Result{FunctionCalls: []modelclient.FunctionCall{{Name: "mystery_tool"}}}, nil
	})

	lr := NewLLMRouter(invoker, "rapid-response")
	_, err := lr.NextStep(context.Background(), "hi")
	assert.Error(t, err)
}
