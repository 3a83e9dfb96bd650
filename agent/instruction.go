package agent

import (
	"context"
	"strings"

	"github.com/hupe1980/agentcrew/internal/util"
)

// Instruction is the system message of an assistant. It is made of parts that
// resolve in order at the start of every turn and are joined by a blank line.
// The zero Instruction resolves to the empty string.
type Instruction struct {
	parts []func(ctx context.Context) (string, error)
}

// NewInstructionFromText returns a fixed instruction.
func NewInstructionFromText(text string) Instruction {
	return NewInstructionFromFunc(func(context.Context) (string, error) { return text, nil })
}

// NewInstructionFromFunc returns an instruction computed on every turn.
func NewInstructionFromFunc(fn func(ctx context.Context) (string, error)) Instruction {
	return Instruction{parts: []func(context.Context) (string, error){fn}}
}

// NewInstructionFromTemplate renders a text/template against data on every
// turn.
func NewInstructionFromTemplate(tmpl string, data any) Instruction {
	return NewInstructionFromFunc(func(context.Context) (string, error) {
		return util.RenderTemplate(tmpl, data)
	})
}

// Append returns an instruction that resolves i followed by more.
func (i Instruction) Append(more Instruction) Instruction {
	parts := make([]func(context.Context) (string, error), 0, len(i.parts)+len(more.parts))
	parts = append(parts, i.parts...)
	return Instruction{parts: append(parts, more.parts...)}
}

// IsZero reports whether the instruction has no parts.
func (i Instruction) IsZero() bool { return len(i.parts) == 0 }

// Resolve returns the instruction text. Empty parts are dropped.
func (i Instruction) Resolve(ctx context.Context) (string, error) {
	texts := make([]string, 0, len(i.parts))
	for _, part := range i.parts {
		text, err := part(ctx)
		if err != nil {
			return "", err
		}
		if text = strings.TrimSpace(text); text != "" {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, "\n\n"), nil
}
