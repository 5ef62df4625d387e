package screenjudge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clovis-agent/clovis/internal/modelclient"
)

type stubCapturer struct {
	shot []byte
	err  error
}

func (s stubCapturer) Capture(ctx context.Context) ([]byte, error) { return s.shot, s.err }

func TestJudgeParsesCleanJSON(t *testing.T) {
	invoker := modelclient.InvokerFunc(func(ctx context.Context, model string, messages []modelclient.Message, tools []modelclient.ToolDef) (modelclient.Result, error) {
		require.Len(t, messages, 1)
		require.Len(t, messages[0].Images, 1)
		return modelclient.Result{Text: `{"summary":"GitHub repo visible","repo_url":"https://github.com/example/repo","recommended_agent":"cua_cli"}`}, nil
	})

	j := New(invoker, "judge-model", stubCapturer{shot: []byte("fake-png")})
	c, err := j.Judge(context.Background(), "extract repo url")
	require.NoError(t, err)
	assert.Equal(t, "GitHub repo visible", c.Summary)
	assert.Equal(t, "https://github.com/example/repo", c.RepoURL)
	assert.Equal(t, "cua_cli", c.RecommendedAgent)
	assert.Equal(t, "extract repo url", c.RecommendedTask)
}

func TestJudgeBracketExtractsWrappedJSON(t *testing.T) {
	invoker := modelclient.InvokerFunc(func(ctx context.Context, model string, messages []modelclient.Message, tools []modelclient.ToolDef) (modelclient.Result, error) {
		return modelclient.Result{Text: "Here is the result:\n```json\n{\"summary\":\"a local dev server\"}\n```\nDone."}, nil
	})

	j := New(invoker, "judge-model", stubCapturer{shot: []byte("x")})
	c, err := j.Judge(context.Background(), "check the screen")
	require.NoError(t, err)
	assert.Equal(t, "a local dev server", c.Summary)
}

func TestJudgeDropsUnknownRecommendedAgent(t *testing.T) {
	invoker := modelclient.InvokerFunc(func(ctx context.Context, model string, messages []modelclient.Message, tools []modelclient.ToolDef) (modelclient.Result, error) {
		return modelclient.Result{Text: `{"summary":"x","recommended_agent":"not_a_real_agent"}`}, nil
	})

	j := New(invoker, "judge-model", stubCapturer{shot: []byte("x")})
	c, err := j.Judge(context.Background(), "task")
	require.NoError(t, err)
	assert.Empty(t, c.RecommendedAgent)
}

func TestJudgeSynthesizesFallbackSummaryWhenNoJSON(t *testing.T) {
	invoker := modelclient.InvokerFunc(func(ctx context.Context, model string, messages []modelclient.Message, tools []modelclient.ToolDef) (modelclient.Result, error) {
		return modelclient.Result{Text: "I cannot parse this screen meaningfully."}, nil
	})

	j := New(invoker, "judge-model", stubCapturer{shot: []byte("x")})
	c, err := j.Judge(context.Background(), "original request text")
	require.NoError(t, err)
	assert.Equal(t, "I cannot parse this screen meaningfully.", c.Summary)
	assert.Equal(t, "original request text", c.RecommendedTask)
}

func TestJudgeBoundsLongFields(t *testing.T) {
	long := strings.Repeat("x", 1000)
	invoker := modelclient.InvokerFunc(func(ctx context.Context, model string, messages []modelclient.Message, tools []modelclient.ToolDef) (modelclient.Result, error) {
		return modelclient.Result{Text: `{"summary":"` + long + `","repo_url":"` + long + `"}`}, nil
	})

	j := New(invoker, "judge-model", stubCapturer{shot: []byte("x")})
	c, err := j.Judge(context.Background(), "task")
	require.NoError(t, err)
	assert.Len(t, c.Summary, maxFieldLen)
	assert.Len(t, c.RepoURL, maxFieldLen)
}

func TestJudgePropagatesCaptureError(t *testing.T) {
	invoker := modelclient.InvokerFunc(func(ctx context.Context, model string, messages []modelclient.Message, tools []modelclient.ToolDef) (modelclient.Result, error) {
		t.Fatal("model should not be called when capture fails")
		return modelclient.Result{}, nil
	})

	j := New(invoker, "judge-model", stubCapturer{err: errors.New("capture failed")})
	_, err := j.Judge(context.Background(), "task")
	assert.Error(t, err)
}

func TestJudgePropagatesModelError(t *testing.T) {
	invoker := modelclient.InvokerFunc(func(ctx context.Context, model string, messages []modelclient.Message, tools []modelclient.ToolDef) (modelclient.Result, error) {
		return modelclient.Result{}, errors.New("model unavailable")
	})

	j := New(invoker, "judge-model", stubCapturer{shot: []byte("x")})
	_, err := j.Judge(context.Background(), "task")
	assert.Error(t, err)
}
