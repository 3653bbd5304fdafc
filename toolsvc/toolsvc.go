// Package toolsvc defines the external tool-calling contract Agent.act
// invokes, plus a Registry broker that carries each tool's labels on its
// descriptors (it does not filter by label) and two ready-made Tool
// implementations (MockTool, HTTPTool).
package toolsvc

import (
	"context"

	"github.com/loomwork/loomwork/model"
)

// Tool is one capability an Agent may invoke on behalf of an LLM.
type Tool interface {
	// Name returns the tool's unique identifier, matching the name the LLM
	// uses in a ToolCallRequest.
	Name() string

	// Description is advertised to the LLM alongside Schema.
	Description() string

	// Schema describes Call's expected input, following JSON Schema
	// conventions.
	Schema() map[string]any

	// Labels tags this tool for filtering against a task's tags.
	Labels() []string

	// Call executes the tool and returns a role=TOOL message. On failure,
	// the returned message (if any) should have IsError set rather than
	// returning a bare error, so the caller can feed the failure back to
	// the LLM as a tool result rather than aborting the run; Call may
	// still return a non-nil error for failures that are not tool-result
	// material (e.g. context cancellation).
	Call(ctx context.Context, input map[string]any) (model.Message, error)
}

// ToolService is the broker an Agent talks to. It never exposes individual
// Tool values to the core; the core only lists descriptors and calls by
// name.
type ToolService interface {
	// ListTools returns every tool currently registered, regardless of
	// labels. Label-based filtering against a task's tags is left to the
	// caller, e.g. by listing non-matching names in
	// model.CompletionConfig.ExcludeTools; Agent does no such filtering.
	ListTools(ctx context.Context) ([]model.Tool, error)

	// Call invokes the named tool. toolCallID is copied onto the returned
	// message so the LLM can correlate it with its request.
	Call(ctx context.Context, name string, args map[string]any, toolCallID string) (model.Message, error)
}

// Registry is a ToolService backed by an in-memory map, the default
// implementation a program wires most of its tools through.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// ListTools returns every registered tool as a model.Tool descriptor.
func (r *Registry) ListTools(_ context.Context) ([]model.Tool, error) {
	out := make([]model.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, model.Tool{
			Name:        t.Name(),
			Description: t.Description(),
			Schema:      t.Schema(),
			Labels:      t.Labels(),
		})
	}
	return out, nil
}

// Call invokes the named tool, wrapping "tool not found" as an IsError
// result rather than a Go error, so the caller can feed it back to the LLM
// the same way any other tool failure is fed back.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any, toolCallID string) (model.Message, error) {
	t, ok := r.tools[name]
	if !ok {
		return model.Message{
			Role:       model.RoleTool,
			Content:    []model.Block{model.TextBlock("unknown tool: " + name)},
			ToolCallID: toolCallID,
			IsError:    true,
		}, nil
	}

	msg, err := t.Call(ctx, args)
	if err != nil {
		return model.Message{}, err
	}
	msg.Role = model.RoleTool
	msg.ToolCallID = toolCallID
	return msg, nil
}
