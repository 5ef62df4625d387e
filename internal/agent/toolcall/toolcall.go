// Package toolcall implements the closed tool vocabularies the router and
// agents expose to their models. A Tool is one callable entry; a Registry
// is the fixed set an agent declares at construction and dispatches
// model-returned function calls against.
//
// Vocabularies are sealed: every tool is registered while the owning agent
// is being built and the set never changes afterwards. The Registry
// therefore needs no locking, and it preserves declaration order so the
// tool list presented to the model is stable across calls.
package toolcall

import (
	"context"
	"errors"
	"fmt"

	"github.com/clovis-agent/clovis/internal/modelclient"
)

// Tool is one entry in a closed vocabulary.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the tool's JSON Schema object
	// ({"type": "object", "properties": ...}).
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) (ToolResult, error)
}

// ToolResult is the outcome of one tool execution. Content carries the
// user- or model-facing text either way; IsError marks it as a failure
// the caller reports rather than output it forwards.
type ToolResult struct {
	Content string
	IsError bool
}

// NewSuccessResult wraps content in a successful ToolResult.
func NewSuccessResult(content string) ToolResult {
	return ToolResult{Content: content}
}

// NewErrorResult wraps an error message in a failed ToolResult.
func NewErrorResult(msg string) ToolResult {
	return ToolResult{Content: msg, IsError: true}
}

// ErrUnknownTool reports a dispatch against a name outside the vocabulary.
var ErrUnknownTool = errors.New("toolcall: unknown tool")

// Registry is a closed, ordered tool vocabulary.
type Registry struct {
	byName map[string]Tool
	order  []Tool
}

// NewRegistry creates an empty Registry ready for declaration.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Tool)}
}

// MustRegister adds a tool while the vocabulary is being declared. The
// vocabularies are fixed at compile time, so an unnamed or duplicate tool
// is a programming error and panics.
func (r *Registry) MustRegister(tool Tool) {
	name := tool.Name()
	if name == "" {
		panic("toolcall: tool with empty name")
	}
	if _, dup := r.byName[name]; dup {
		panic("toolcall: duplicate tool " + name)
	}
	r.byName[name] = tool
	r.order = append(r.order, tool)
}

// List returns the vocabulary in declaration order.
func (r *Registry) List() []Tool {
	out := make([]Tool, len(r.order))
	copy(out, r.order)
	return out
}

// Execute dispatches one model function call to the named tool.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (ToolResult, error) {
	tool, ok := r.byName[name]
	if !ok {
		return ToolResult{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return tool.Execute(ctx, args)
}

// FilterArgs drops every key from args that is not a declared property of
// the named tool's schema, and reports whether the tool itself is known.
// Engines call this before dispatch so metadata keys riding along on a
// model's function call (status_text, target_description, and similar)
// never reach a tool's Execute.
func (r *Registry) FilterArgs(name string, args map[string]any) (map[string]any, bool) {
	tool, ok := r.byName[name]
	if !ok {
		return nil, false
	}

	props, _ := tool.Parameters()["properties"].(map[string]any)
	filtered := make(map[string]any, len(args))
	for k, v := range args {
		if _, declared := props[k]; declared {
			filtered[k] = v
		}
	}
	return filtered, true
}

// ToModelDefs shapes the vocabulary for a model invocation, in declaration
// order.
func (r *Registry) ToModelDefs() []modelclient.ToolDef {
	defs := make([]modelclient.ToolDef, 0, len(r.order))
	for _, tool := range r.order {
		defs = append(defs, modelclient.ToolDef{
			Name:        tool.Name(),
			Description: tool.Description(),
			Schema:      tool.Parameters(),
		})
	}
	return defs
}
