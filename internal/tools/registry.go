// Package tools implements the assistant's tool registry: the set of
// functions the model may call, their schemas, and dispatch with a
// uniform result envelope.
package tools

import (
	"context"
	"fmt"

	"github.com/eduplay1216-alt/myjarvis/internal/gemini"
	"github.com/eduplay1216-alt/myjarvis/internal/logging"
)

// Result is the uniform tool result envelope. Every result carries
// "success"; failures add "error", successes merge in their payload.
type Result map[string]any

// OK builds a success result with the given payload fields.
func OK(data map[string]any) Result {
	r := Result{"success": true}
	for k, v := range data {
		r[k] = v
	}
	return r
}

// Fail builds a failure result.
func Fail(format string, args ...any) Result {
	return Result{"success": false, "error": fmt.Sprintf(format, args...)}
}

// Success reports whether the result envelope is marked successful.
func (r Result) Success() bool {
	ok, _ := r["success"].(bool)
	return ok
}

// Handler executes one tool call. Args have already passed required
// field validation against the tool's schema.
type Handler func(ctx context.Context, owner string, args map[string]any) Result

// Tool pairs a declaration with its handler.
type Tool struct {
	Decl    gemini.FunctionDeclaration
	Handler Handler
}

// Registry holds the registered tools in registration order.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Re-registering a name replaces the handler but
// keeps the original position.
func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Decl.Name]; !exists {
		r.order = append(r.order, t.Decl.Name)
	}
	r.tools[t.Decl.Name] = t
}

// Declarations returns all tool declarations in registration order,
// suitable for sending to the model.
func (r *Registry) Declarations() []gemini.FunctionDeclaration {
	decls := make([]gemini.FunctionDeclaration, 0, len(r.order))
	for _, name := range r.order {
		decls = append(decls, r.tools[name].Decl)
	}
	return decls
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Dispatch validates and executes one tool call. Unknown names and
// missing required arguments come back as failure envelopes, never as
// Go errors: the model sees every outcome through the same shape.
func (r *Registry) Dispatch(ctx context.Context, owner, name string, args map[string]any) Result {
	tool, ok := r.tools[name]
	if !ok {
		logging.Warn("tools", "dispatch of unknown tool %q", name)
		return Fail("Tool %s not found.", name)
	}

	if args == nil {
		args = map[string]any{}
	}
	if tool.Decl.Parameters != nil {
		for _, req := range tool.Decl.Parameters.Required {
			if _, present := args[req]; !present {
				return Fail("Missing required argument %q for tool %s.", req, name)
			}
		}
		for argName, prop := range tool.Decl.Parameters.Properties {
			v, present := args[argName]
			if !present {
				continue
			}
			if !typeMatches(prop.Type, v) {
				return Fail("Argument %q for tool %s must be of type %s.", argName, name, prop.Type)
			}
		}
	}

	logging.Debug("tools", "dispatch %s(%s)", name, logging.Truncate(gemini.FunctionCall{Name: name, Args: args}.RawArgs(), 200))
	return tool.Handler(ctx, owner, args)
}

// typeMatches checks a decoded JSON value against a declared schema
// type. Null is accepted anywhere; handlers treat it as absent.
func typeMatches(typ string, v any) bool {
	if v == nil {
		return true
	}
	switch typ {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		switch v.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	}
	return true
}
