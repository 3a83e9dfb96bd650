package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/agentcrew/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Sampling holds optional sampling parameters. Nil pointers leave the
// provider default in place.
type Sampling struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	Seed        *int64   `json:"seed,omitempty"`
	MaxTokens   int64    `json:"max_tokens,omitempty"`
}

// Request is the normalized model input: a system message, the ordered
// conversation and optional tools.
type Request struct {
	SystemMessage string           `json:"system_message,omitempty"`
	Messages      []core.Message   `json:"messages"`
	Tools         []ToolDefinition `json:"tools,omitempty"`
	Sampling      Sampling         `json:"sampling"`
	Stream        bool             `json:"stream,omitempty"`
}

// Response is a (partial or final) chunk emitted by a model.
type Response struct {
	ID           string              `json:"id"`
	Partial      bool                `json:"partial"`
	Text         string              `json:"text"`
	Calls        []core.FunctionCall `json:"calls,omitempty"`
	FinishReason string              `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *core.Usage         `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "local", "mock"
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by agents to drive generation.
// The response channel is closed when generation ends; at most one error is
// sent on the (buffered) error channel.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// ErrNoFinalResponse is returned by Complete when a model stream ends
// without a non-partial response.
var ErrNoFinalResponse = errors.New("model returned no final response")

// Complete drains a Generate call and returns the final (non-partial) response.
func Complete(ctx context.Context, m Model, req Request) (Response, error) {
	respCh, errCh := m.Generate(ctx, req)

	var (
		final Response
		found bool
	)
	for r := range respCh {
		if !r.Partial {
			final = r
			found = true
		}
	}
	if err := <-errCh; err != nil {
		return Response{}, err
	}
	if !found {
		return Response{}, ErrNoFinalResponse
	}
	return final, nil
}

// Float returns a pointer to v; handy for Sampling literals.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v; handy for Sampling literals.
func Int(v int64) *int64 { return &v }

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Responses are looked up by the content of the last request message; a
// sequence queued with Enqueue takes precedence.
type MockModel struct {
	info      Info
	mu        sync.Mutex
	responses map[string]string
	queue     []mockReply
	requests  []Request
}

type mockReply struct {
	text string
	resp *Response
	err  error
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Enqueue appends replies consumed in order by subsequent calls.
func (m *MockModel) Enqueue(replies ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range replies {
		m.queue = append(m.queue, mockReply{text: r})
	}
}

// EnqueueError makes the next call fail with err.
func (m *MockModel) EnqueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockReply{err: err})
}

// EnqueueResponse makes the next call return resp verbatim, e.g. to script
// tool calls.
func (m *MockModel) EnqueueResponse(resp Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockReply{resp: &resp})
}

// Requests returns a copy of every request received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Generate implements Model; emits optional streaming char chunks then final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	var reply *mockReply
	if len(m.queue) > 0 {
		reply = &m.queue[0]
		m.queue = m.queue[1:]
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)
		if reply != nil && reply.err != nil {
			errCh <- reply.err
			return
		}
		if reply != nil && reply.resp != nil {
			respCh <- *reply.resp
			return
		}
		if len(req.Messages) == 0 {
			errCh <- fmt.Errorf("no messages provided")
			return
		}
		inputText := req.Messages[len(req.Messages)-1].Content

		var full string
		if reply != nil {
			full = reply.text
		} else {
			m.mu.Lock()
			full = m.responses[inputText]
			m.mu.Unlock()
		}
		if full == "" {
			full = fmt.Sprintf("Mock response to: %s", inputText)
		}
		if req.Stream {
			for _, r := range full {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Text: string(r)}:
				}
			}
		}
		respCh <- Response{
			Partial:      false,
			Text:         full,
			FinishReason: "stop",
			Usage: &core.Usage{
				PromptTokens:     len(strings.Fields(inputText)),
				CompletionTokens: len(strings.Fields(full)),
			},
		}
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
