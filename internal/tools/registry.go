package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"supportcore/internal/llm"
	"supportcore/internal/observability"
)

// DefaultTimeout is the per-call execution budget applied when a tool does
// not declare its own.
const DefaultTimeout = 10 * time.Second

type registeredTool struct {
	tool   Tool
	schema *jsonschema.Schema
}

type registry struct {
	byName map[string]registeredTool
}

// NewRegistry returns a Registry that validates parameters against each
// tool's JSON schema, enforces permission tags, and wraps execution in a
// timeout with panic recovery.
func NewRegistry() Registry {
	return &registry{byName: make(map[string]registeredTool)}
}

// Register compiles t's parameter schema once so later calls only pay the
// validation cost, not compilation.
func (r *registry) Register(t Tool) error {
	schemaDoc := t.ParameterSchema()
	if schemaDoc == nil {
		schemaDoc = map[string]any{"type": "object"}
	}
	raw, err := json.Marshal(schemaDoc)
	if err != nil {
		return fmt.Errorf("marshal schema for tool %q: %w", t.Name(), err)
	}
	schema, err := jsonschema.CompileString("tool:"+t.Name(), string(raw))
	if err != nil {
		return fmt.Errorf("compile schema for tool %q: %w", t.Name(), err)
	}
	r.byName[t.Name()] = registeredTool{tool: t, schema: schema}
	return nil
}

func (r *registry) Schemas() []llm.ToolSchema {
	out := make([]llm.ToolSchema, 0, len(r.byName))
	for name, rt := range r.byName {
		out = append(out, llm.ToolSchema{
			Name:        name,
			Description: rt.tool.Description(),
			Parameters:  rt.tool.ParameterSchema(),
		})
	}
	return out
}

// Execute runs the full contract: unknown-tool -> schema validation ->
// permission check -> timeout-and-panic-wrapped body execution.
func (r *registry) Execute(ctx context.Context, invCtx InvocationContext, name string, params json.RawMessage) ToolResult {
	rt, ok := r.byName[name]
	if !ok {
		return failure("unknown tool")
	}

	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	var decoded any
	if err := json.Unmarshal(params, &decoded); err != nil {
		return failure(fmt.Sprintf("invalid parameters: %v", err))
	}
	if err := rt.schema.Validate(decoded); err != nil {
		return failure(fmt.Sprintf("invalid parameters: %v", err))
	}

	for _, perm := range rt.tool.Permissions() {
		if !invCtx.HasPermission(perm) {
			return failure("insufficient permissions")
		}
	}

	timeout := rt.tool.Timeout()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return runWithRecovery(execCtx, rt.tool, params)
}

func runWithRecovery(ctx context.Context, t Tool, params json.RawMessage) ToolResult {
	type outcome struct {
		data any
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				observability.LoggerWithTrace(ctx).Error().
					Str("tool", t.Name()).Interface("panic", rec).Msg("tool_panic_recovered")
				done <- outcome{err: fmt.Errorf("tool panicked: %v", rec)}
				return
			}
		}()
		data, err := t.Execute(ctx, params)
		done <- outcome{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return failure("ToolTimeout")
	case o := <-done:
		if o.err != nil {
			return failure(o.err.Error())
		}
		return success(o.data)
	}
}
