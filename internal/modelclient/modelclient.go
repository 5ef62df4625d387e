// Package modelclient defines the black-box model invocation contract
// shared by the Router, Screen-Judge, and every agent. It wires no provider
// SDK: which provider backs a model name is an external, swappable concern.
// Besides the contract, the package ships one concrete Invoker,
// HTTPInvoker, which speaks the OpenAI-compatible chat-completions protocol.
package modelclient

import "context"

// ToolDef describes one callable tool offered to a model invocation. Schema
// is a JSON Schema document, normally produced by
// internal/agent/toolcall.BuildSchema.
type ToolDef struct {
	Name        string
	Description string
	Schema      map[string]any
}

// FunctionCall is one function-call record a model asked the caller to run.
type FunctionCall struct {
	Name string
	Args map[string]any
}

// Result is the tagged outcome of a single model invocation: either one or
// more FunctionCalls, or free-text content, never both.
type Result struct {
	FunctionCalls []FunctionCall
	Text          string
}

// IsFunctionCall reports whether the model asked to invoke at least one tool.
func (r Result) IsFunctionCall() bool { return len(r.FunctionCalls) > 0 }

// Message is one turn in a model conversation.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
	// Images holds raw image bytes attached to this message, for
	// multimodal calls (Screen-Judge, Vision Agent).
	Images [][]byte
}

// Invoker is the contract every router/agent/judge component calls through.
// HTTPInvoker is the implementation this module ships; others may adapt a
// specific provider's SDK.
type Invoker interface {
	// Invoke sends messages (optionally with a fixed tool set) to the named
	// model and returns its tagged result.
	Invoke(ctx context.Context, model string, messages []Message, tools []ToolDef) (Result, error)
}

// InvokerFunc adapts a plain function to the Invoker interface.
type InvokerFunc func(ctx context.Context, model string, messages []Message, tools []ToolDef) (Result, error)

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, model string, messages []Message, tools []ToolDef) (Result, error) {
	return f(ctx, model, messages, tools)
}
