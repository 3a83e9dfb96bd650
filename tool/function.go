package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentcrew/internal/util"
	"github.com/hupe1980/agentcrew/logging"
)

// Error codes set on the *ToolError values returned by FunctionTool.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
)

// FunctionTool exposes a Go function to an assistant. Arguments are checked
// against the parameter schema before the function runs; a plain error from
// the function becomes a *ToolError with CodeExecution, a *ToolError is passed
// through. FunctionTool is safe for concurrent use.
type FunctionTool struct {
	name   string
	desc   string
	schema map[string]any
	fn     func(ctx context.Context, args map[string]any) (any, error)
	logger logging.Logger
}

// NewFunctionTool wraps fn with an explicit JSON schema. A nil schema accepts
// any arguments.
func NewFunctionTool(name, description string, schema map[string]any, fn func(ctx context.Context, args map[string]any) (any, error)) *FunctionTool {
	return &FunctionTool{name: name, desc: description, schema: schema, fn: fn, logger: logging.NoOpLogger{}}
}

// NewTypedTool derives the schema from the exported fields of T and decodes
// the model's arguments into a T before calling fn. Field names follow the
// json tags; a description tag documents a field for the model.
func NewTypedTool[T any](name, description string, fn func(ctx context.Context, args T) (any, error)) *FunctionTool {
	var zero T
	return NewFunctionTool(name, description, util.CreateSchema(zero), func(ctx context.Context, raw map[string]any) (any, error) {
		var args T
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, NewToolError(name, err.Error(), CodeValidation)
		}
		if err := json.Unmarshal(b, &args); err != nil {
			return nil, NewToolError(name, err.Error(), CodeValidation)
		}
		return fn(ctx, args)
	})
}

// WithLogger attaches l and returns the tool.
func (t *FunctionTool) WithLogger(l logging.Logger) *FunctionTool {
	t.logger = logging.With(logging.OrNoOp(l), "tool", t.name)
	return t
}

// Name implements Tool.
func (t *FunctionTool) Name() string { return t.name }

// Description implements Tool.
func (t *FunctionTool) Description() string { return t.desc }

// Parameters implements Tool.
func (t *FunctionTool) Parameters() map[string]any { return t.schema }

// Call implements Tool.
func (t *FunctionTool) Call(ctx context.Context, args map[string]any) (any, error) {
	if err := util.ValidateParameters(args, t.schema); err != nil {
		t.logger.Warn("tool arguments rejected", "error", err.Error())
		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	start := time.Now()
	result, err := t.fn(ctx, args)
	if err == nil {
		t.logger.Debug("tool finished", "duration_ms", time.Since(start).Milliseconds())
		return result, nil
	}

	var terr *ToolError
	if !errors.As(err, &terr) {
		terr = NewToolError(t.name, err.Error(), CodeExecution)
	}
	t.logger.Error("tool failed", "code", terr.Code, "error", terr.Message)
	return nil, terr
}
