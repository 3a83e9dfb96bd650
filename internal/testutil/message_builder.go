package testutil

import (
	"github.com/hupe1980/agentcrew/core"
)

// MessageBuilder provides a fluent helper for constructing messages in tests.
// Example:
//
//	msg := NewMessageBuilder().Source("coder").AssistantText("hello").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type MessageBuilder struct {
	source    string
	id        string
	role      core.Role
	text      string
	calls     []core.FunctionCall
	responses []core.FunctionResponse
	stop      bool
	usage     *core.Usage
}

// NewMessageBuilder creates a builder with default source "agent".
func NewMessageBuilder() *MessageBuilder { return &MessageBuilder{source: "agent"} }

// Source sets the sender name (chainable).
func (b *MessageBuilder) Source(s string) *MessageBuilder { b.source = s; return b }

// ID overrides the generated message ID (chainable).
func (b *MessageBuilder) ID(id string) *MessageBuilder { b.id = id; return b }

// UserText sets user role text (chainable).
func (b *MessageBuilder) UserText(t string) *MessageBuilder {
	b.role = core.RoleUser
	b.text = t
	return b
}

// AssistantText sets assistant role text (chainable).
func (b *MessageBuilder) AssistantText(t string) *MessageBuilder {
	b.role = core.RoleAssistant
	b.text = t
	return b
}

// HumanText sets human role text (chainable).
func (b *MessageBuilder) HumanText(t string) *MessageBuilder {
	b.role = core.RoleHuman
	b.text = t
	return b
}

// FunctionCall appends a function call; the message becomes a tool call (chainable).
func (b *MessageBuilder) FunctionCall(id, name, args string) *MessageBuilder {
	b.calls = append(b.calls, core.FunctionCall{ID: id, Name: name, Arguments: args})
	return b
}

// FunctionResponse appends a function result; the message becomes a tool result (chainable).
func (b *MessageBuilder) FunctionResponse(id, name, content string) *MessageBuilder {
	b.responses = append(b.responses, core.FunctionResponse{ID: id, Name: name, Content: content})
	return b
}

// Stop turns the message into a stop request (chainable).
func (b *MessageBuilder) Stop(reason string) *MessageBuilder {
	b.stop = true
	b.text = reason
	return b
}

// Usage attaches token usage (chainable).
func (b *MessageBuilder) Usage(prompt, completion int) *MessageBuilder {
	b.usage = &core.Usage{PromptTokens: prompt, CompletionTokens: completion}
	return b
}

// Build materializes the message.
func (b *MessageBuilder) Build() core.Message {
	var m core.Message
	switch {
	case len(b.calls) > 0:
		m = core.NewToolCallMessage(b.source, b.calls)
	case len(b.responses) > 0:
		m = core.NewToolResultMessage(b.source, b.responses)
	case b.stop:
		m = core.NewStopMessage(b.source, b.roleOr(core.RoleAssistant), b.text)
	default:
		m = core.NewTextMessage(b.source, b.roleOr(core.RoleAssistant), b.text)
	}
	if b.id != "" {
		m.ID = b.id
	}
	if b.usage != nil {
		m = m.WithUsage(*b.usage)
	}
	return m
}

// Reply builds the terminal event of a turn carrying assistant text.
func Reply(source, text string) core.Event {
	return core.Response{Message: core.NewTextMessage(source, core.RoleAssistant, text)}
}

func (b *MessageBuilder) roleOr(fallback core.Role) core.Role {
	if b.role == "" {
		return fallback
	}
	return b.role
}
