package workflow

import (
	"context"
	"encoding/json"
	"fmt"
)

// Handler executes one named step kind (e.g. "kb.search", "create_ticket").
// Compensate undoes a previously completed invocation's effects and is only
// called when the step definition is marked Compensatable; handlers with no
// meaningful undo may implement it as a no-op.
type Handler interface {
	Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error)
	Compensate(ctx context.Context, params json.RawMessage, output json.RawMessage) error
}

// HandlerFunc adapts a plain function to a Handler with a no-op Compensate.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (json.RawMessage, error)

func (f HandlerFunc) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	return f(ctx, params)
}

func (f HandlerFunc) Compensate(ctx context.Context, params json.RawMessage, output json.RawMessage) error {
	return nil
}

// HandlerRegistry resolves a step's Name to the Handler that runs it.
type HandlerRegistry struct {
	handlers map[string]Handler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]Handler)}
}

func (r *HandlerRegistry) Register(name string, h Handler) {
	r.handlers[name] = h
}

func (r *HandlerRegistry) Resolve(name string) (Handler, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("no handler registered for step %q", name)
	}
	return h, nil
}
