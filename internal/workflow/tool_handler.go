package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"supportcore/internal/tools"
)

// toolHandler adapts a registered tools.Tool to a workflow Handler, letting
// workflow steps invoke the same tool registry the LLM call layer's
// tool-call loop uses (e.g. "kb.search" -> the kb_search tool,
// "create_ticket" -> the ticketing tool's create action).
type toolHandler struct {
	registry tools.Registry
	toolName string
	invCtx   tools.InvocationContext
}

// NewToolHandler wraps toolName behind the workflow Handler interface.
func NewToolHandler(registry tools.Registry, toolName string, invCtx tools.InvocationContext) Handler {
	return &toolHandler{registry: registry, toolName: toolName, invCtx: invCtx}
}

func (h *toolHandler) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	result := h.registry.Execute(ctx, h.invCtx, h.toolName, params)
	if !result.Success {
		return nil, fmt.Errorf("%s", result.Error)
	}
	out, err := json.Marshal(result.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal tool output: %w", err)
	}
	return out, nil
}

func (h *toolHandler) Compensate(ctx context.Context, params json.RawMessage, output json.RawMessage) error {
	return nil
}
