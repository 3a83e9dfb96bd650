package core

import (
	"time"

	"github.com/google/uuid"
)

// MessageType classifies a message for protocol checks. Agents declare the
// types they may emit via ChatAgent.ProducedMessageTypes.
type MessageType string

const (
	// MessageTypeText is a plain text chat message.
	MessageTypeText MessageType = "text"
	// MessageTypeToolCall carries one or more function call requests.
	MessageTypeToolCall MessageType = "tool_call"
	// MessageTypeToolResult carries the results of executed function calls.
	MessageTypeToolResult MessageType = "tool_result"
	// MessageTypeStop signals that the sender wants the conversation to end.
	MessageTypeStop MessageType = "stop"
)

// Role is the conversational role of a message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	// RoleHuman marks content typed by a person through an input provider.
	// Model adapters map it to the user role.
	RoleHuman Role = "human"
)

// IsHuman reports whether the role denotes human-authored content.
func (r Role) IsHuman() bool { return r == RoleHuman }

// Usage captures token accounting reported by a completion service.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Total returns prompt plus completion tokens.
func (u Usage) Total() int { return u.PromptTokens + u.CompletionTokens }

// FunctionCall describes a tool/function invocation request.
type FunctionCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"` // serialized JSON arguments
}

// FunctionResponse describes the outcome of a function call.
type FunctionResponse struct {
	ID      string `json:"id,omitempty"` // matches the originating FunctionCall ID
	Name    string `json:"name"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Payload is the optional structured part of a message. The set of payloads
// is closed: ToolCallPayload and ToolResultPayload.
type Payload interface{ isPayload() }

// ToolCallPayload carries function call requests.
type ToolCallPayload struct {
	Calls []FunctionCall `json:"calls"`
}

func (ToolCallPayload) isPayload() {}

// ToolResultPayload carries function call results.
type ToolResultPayload struct {
	Results []FunctionResponse `json:"results"`
}

func (ToolResultPayload) isPayload() {}

// Message is the unit exchanged between agents. Treat it as immutable once
// created; constructors copy payload slices.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Role      Role        `json:"role"`
	Source    string      `json:"source,omitempty"` // AgentId of the sender
	Content   string      `json:"content"`
	Payload   Payload     `json:"payload,omitempty"`
	Usage     *Usage      `json:"usage,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewID generates a unique identifier for messages and chats.
func NewID() string { return uuid.NewString() }

// NewTextMessage creates a text message authored by source with the given role.
func NewTextMessage(source string, role Role, content string) Message {
	return Message{
		ID:        NewID(),
		Type:      MessageTypeText,
		Role:      role,
		Source:    source,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// NewToolCallMessage creates an assistant message requesting function calls.
func NewToolCallMessage(source string, calls []FunctionCall) Message {
	m := NewTextMessage(source, RoleAssistant, "")
	m.Type = MessageTypeToolCall
	m.Payload = ToolCallPayload{Calls: append([]FunctionCall(nil), calls...)}
	return m
}

// NewToolResultMessage creates a tool message carrying function results.
func NewToolResultMessage(source string, results []FunctionResponse) Message {
	m := NewTextMessage(source, RoleTool, "")
	m.Type = MessageTypeToolResult
	m.Payload = ToolResultPayload{Results: append([]FunctionResponse(nil), results...)}
	return m
}

// NewStopMessage creates a message asking the group chat to stop. role is
// the author's role, so a human's exit stays a human message.
func NewStopMessage(source string, role Role, reason string) Message {
	m := NewTextMessage(source, role, reason)
	m.Type = MessageTypeStop
	return m
}

// WithUsage returns a copy of m carrying the given usage.
func (m Message) WithUsage(u Usage) Message {
	m.Usage = &u
	return m
}

// FunctionCalls returns the function calls carried by the message, if any.
func (m Message) FunctionCalls() []FunctionCall {
	if p, ok := m.Payload.(ToolCallPayload); ok {
		return p.Calls
	}
	return nil
}

// FunctionResponses returns the function results carried by the message, if any.
func (m Message) FunctionResponses() []FunctionResponse {
	if p, ok := m.Payload.(ToolResultPayload); ok {
		return p.Results
	}
	return nil
}

// Event is an element of an agent's response stream. It is either a
// non-terminal Message (progress, tool traffic) or the terminal Response.
type Event interface{ isEvent() }

func (Message) isEvent() {}

// Response is the terminal event of a turn. Message is the chat message
// published to the group; Inner holds the intermediate messages that led to it.
type Response struct {
	Message Message
	Inner   []Message
}

func (Response) isEvent() {}
