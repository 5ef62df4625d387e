package router

import (
	"context"
	"fmt"

	"github.com/clovis-agent/clovis/internal/agent/toolcall"
	"github.com/clovis-agent/clovis/internal/modelclient"
)

// Router tool names, the closed vocabulary the router model may call.
const (
	toolDirectResponse   = "direct_response"
	toolInvokeClovis     = "invoke_clovis"
	toolInvokeBrowser    = "invoke_browser"
	toolInvokeCuaCLI     = "invoke_cua_cli"
	toolInvokeCuaVision  = "invoke_cua_vision"
	toolRequestScreenCtx = "request_screen_context"
)

var toolNameToKind = map[string]string{
	toolDirectResponse:   KindDirect,
	toolInvokeClovis:     KindClovis,
	toolInvokeBrowser:    KindBrowser,
	toolInvokeCuaCLI:     KindCuaCLI,
	toolInvokeCuaVision:  KindCuaVision,
	toolRequestScreenCtx: KindScreenContext,
}

type directResponseArgs struct {
	ResponseText string `json:"response_text" jsonschema:"description=The final message shown to the user,required"`
}

type delegateArgs struct {
	Task string `json:"task" jsonschema:"description=The task to hand off to this agent,required"`
}

func routerToolDefs() []modelclient.ToolDef {
	delegateSchema := toolcall.BuildSchema(delegateArgs{})
	return []modelclient.ToolDef{
		{Name: toolDirectResponse, Description: "Emit the terminal, user-visible response for this session.", Schema: toolcall.BuildSchema(directResponseArgs{})},
		{Name: toolInvokeClovis, Description: "Delegate an explanation or on-screen annotation task to Clovis. Not for execution requests.", Schema: delegateSchema},
		{Name: toolInvokeBrowser, Description: "Delegate a web browsing or browser-automation task.", Schema: delegateSchema},
		{Name: toolInvokeCuaCLI, Description: "Delegate a shell/CLI task, including long-running server launches.", Schema: delegateSchema},
		{Name: toolInvokeCuaVision, Description: "Delegate a desktop GUI task driven by screen vision.", Schema: delegateSchema},
		{Name: toolRequestScreenCtx, Description: "Ask the Screen-Judge to extract routing context from the current screen before delegating.", Schema: delegateSchema},
	}
}

// LLMRouter adapts a modelclient.Invoker into the ModelRouter contract by
// presenting the router's closed six-tool vocabulary and translating the
// returned function call into a Decision.
type LLMRouter struct {
	invoker modelclient.Invoker
	model   string
	tools   []modelclient.ToolDef
}

// NewLLMRouter constructs a ModelRouter backed by invoker, calling model for
// every step.
func NewLLMRouter(invoker modelclient.Invoker, model string) *LLMRouter {
	return &LLMRouter{invoker: invoker, model: model, tools: routerToolDefs()}
}

// NextStep implements ModelRouter.
func (l *LLMRouter) NextStep(ctx context.Context, prompt string) (Decision, error) {
	res, err := l.invoker.Invoke(ctx, l.model, []modelclient.Message{{Role: "user", Content: prompt}}, l.tools)
	if err != nil {
		return Decision{}, err
	}

	if !res.IsFunctionCall() {
		// Free text with no tool call is treated as an implicit direct
		// response rather than an invalid shape.
		return Decision{Kind: KindDirect, ResponseText: res.Text}, nil
	}

	call := res.FunctionCalls[0]
	kind, ok := toolNameToKind[call.Name]
	if !ok {
		return Decision{}, fmt.Errorf("router: unknown tool %q", call.Name)
	}

	if kind == KindDirect {
		text, _ := call.Args["response_text"].(string)
		return Decision{Kind: KindDirect, ResponseText: text}, nil
	}

	task, _ := call.Args["task"].(string)
	return Decision{Kind: kind, Task: task}, nil
}
