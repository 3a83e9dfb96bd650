// Package tool implements the function calling subsystem that lets assistant
// agents invoke Go functions with schema validated arguments.
package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/internal/util"
	"github.com/hupe1980/agentcrew/model"
)

// Tool is a callable capability exposed to a model.
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case recommended).
	Name() string

	// Description is shown to the model to decide when to call the tool.
	Description() string

	// Parameters returns the JSON schema of the accepted arguments.
	Parameters() map[string]any

	// Call executes the tool with decoded arguments.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// ValidationError reports arguments that do not match a tool's schema.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Definitions converts tools into model tool declarations.
func Definitions(tools []Tool) []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// Invoke resolves call against tools, decodes its JSON arguments and runs it.
// Failures are reported inside the returned response so the model can react
// to them; Invoke itself never fails.
func Invoke(ctx context.Context, tools []Tool, call core.FunctionCall) core.FunctionResponse {
	resp := core.FunctionResponse{ID: call.ID, Name: call.Name}

	var target Tool
	for _, t := range tools {
		if t.Name() == call.Name {
			target = t
			break
		}
	}
	if target == nil {
		resp.Error = fmt.Sprintf("unknown tool %q", call.Name)
		return resp
	}

	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			resp.Error = fmt.Sprintf("invalid arguments: %v", err)
			return resp
		}
	}

	result, err := target.Call(ctx, args)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}

	switch v := result.(type) {
	case string:
		resp.Content = v
	case nil:
	default:
		b, err := json.Marshal(v)
		if err != nil {
			resp.Content = fmt.Sprintf("%v", v)
			break
		}
		resp.Content = string(b)
	}
	return resp
}
