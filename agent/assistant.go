package agent

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/logging"
	"github.com/hupe1980/agentcrew/model"
	"github.com/hupe1980/agentcrew/tool"
)

// DefaultSystemMessage is the instruction used when none is configured.
const DefaultSystemMessage = "You are a helpful AI assistant. Solve tasks using your coding and language skills. Reply \"TERMINATE\" in the end when everything is done."

// AssistantOptions configures an AssistantAgent.
type AssistantOptions struct {
	Description string
	Instruction Instruction
	Tools       []tool.Tool
	Sampling    model.Sampling
	Stream      bool
	// MaxModelCalls caps model calls per turn, tool round trips included. 0 means unlimited.
	MaxModelCalls int
	// MaxHistoryMessages trims the model context to the most recent messages. 0 keeps everything.
	MaxHistoryMessages int
	// ToolParallelism bounds concurrent tool executions within one model reply.
	ToolParallelism int
	// ToolTimeout bounds every single tool call.
	ToolTimeout time.Duration
	Logger      logging.Logger
}

// AssistantAgent is a model-backed participant. It keeps its own model
// context across turns and resolves tool calls before answering.
type AssistantAgent struct {
	BaseAgent
	llm    model.Model
	opts   AssistantOptions
	logger logging.Logger

	history []core.Message // guarded by BaseAgent.mu
}

// NewAssistantAgent creates an assistant driven by llm.
func NewAssistantAgent(name string, llm model.Model, optFns ...func(o *AssistantOptions)) *AssistantAgent {
	opts := AssistantOptions{
		MaxModelCalls:   10,
		ToolParallelism: 4,
		ToolTimeout:     30 * time.Second,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Instruction.IsZero() {
		opts.Instruction = NewInstructionFromText(DefaultSystemMessage)
	}

	return &AssistantAgent{
		BaseAgent: NewBaseAgent(name, opts.Description, "AI assistant "+name),
		llm:       llm,
		opts:      opts,
		logger:    logging.With(logging.OrNoOp(opts.Logger), "agent", name),
	}
}

// Model returns the completion client backing the agent.
func (a *AssistantAgent) Model() model.Model { return a.llm }

// Instruction returns the agent's system message source.
func (a *AssistantAgent) Instruction() Instruction { return a.opts.Instruction }

// ProducedMessageTypes implements core.ChatAgent.
func (a *AssistantAgent) ProducedMessageTypes() []core.MessageType {
	if len(a.opts.Tools) == 0 {
		return []core.MessageType{core.MessageTypeText}
	}
	return []core.MessageType{core.MessageTypeText, core.MessageTypeToolCall, core.MessageTypeToolResult}
}

// History returns a copy of the agent's model context.
func (a *AssistantAgent) History() []core.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]core.Message(nil), a.history...)
}

// Reset implements core.ChatAgent.
func (a *AssistantAgent) Reset(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = nil
	return nil
}

// OnMessagesStream implements core.ChatAgent. A failed turn leaves the
// history as it was before the call so the turn can be retried with the same
// input.
func (a *AssistantAgent) OnMessagesStream(ctx context.Context, messages []core.Message, opts core.TurnOptions) (<-chan core.Event, <-chan error) {
	events := make(chan core.Event, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errCh)

		a.mu.Lock()
		defer a.mu.Unlock()

		mark := len(a.history)
		for _, m := range messages {
			a.history = append(a.history, a.perceive(m))
		}

		if err := a.turn(ctx, opts, events); err != nil {
			a.history = a.history[:mark]
			errCh <- err
		}
	}()

	return events, errCh
}

// perceive maps a group message into the agent's own model context. Text
// from other participants is seen as user input.
func (a *AssistantAgent) perceive(m core.Message) core.Message {
	if m.Source != a.Name() && m.Role == core.RoleAssistant {
		m.Role = core.RoleUser
	}
	return m
}

func (a *AssistantAgent) turn(ctx context.Context, opts core.TurnOptions, events chan<- core.Event) error {
	system, err := a.opts.Instruction.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("resolve instruction: %w", err)
	}

	sampling := a.opts.Sampling
	if opts.Seed != nil {
		sampling.Seed = opts.Seed
	}

	budget := core.CallBudget{Max: a.opts.MaxModelCalls}

	var inner []core.Message
	for {
		if err := budget.Spend(); err != nil {
			return err
		}

		start := time.Now()
		resp, err := model.Complete(ctx, a.llm, model.Request{
			SystemMessage: system,
			Messages:      a.window(),
			Tools:         tool.Definitions(a.opts.Tools),
			Sampling:      sampling,
			Stream:        a.opts.Stream,
		})
		tokens := 0
		if resp.Usage != nil {
			tokens = resp.Usage.Total()
		}
		logging.LogModelCall(a.logger, a.llm.Info().Name, tokens, time.Since(start), err)
		if err != nil {
			return fmt.Errorf("agent %s: model call: %w", a.Name(), err)
		}

		var usage core.Usage
		if resp.Usage != nil {
			usage = *resp.Usage
		}

		if len(resp.Calls) == 0 || len(a.opts.Tools) == 0 {
			final := core.NewTextMessage(a.Name(), core.RoleAssistant, resp.Text).WithUsage(usage)
			a.history = append(a.history, final)
			return send(ctx, events, core.Response{Message: final, Inner: inner})
		}

		call := core.NewToolCallMessage(a.Name(), resp.Calls).WithUsage(usage)
		a.history = append(a.history, call)
		inner = append(inner, call)
		if err := send(ctx, events, call); err != nil {
			return err
		}

		result := core.NewToolResultMessage(a.Name(), a.execute(ctx, resp.Calls))
		a.history = append(a.history, result)
		inner = append(inner, result)
		if err := send(ctx, events, result); err != nil {
			return err
		}
	}
}

// window returns the model context honoring MaxHistoryMessages. The cut never
// starts on a tool result whose call was trimmed away.
func (a *AssistantAgent) window() []core.Message {
	w := a.history
	if n := a.opts.MaxHistoryMessages; n > 0 && len(w) > n {
		w = w[len(w)-n:]
		for len(w) > 0 && w[0].Type == core.MessageTypeToolResult {
			w = w[1:]
		}
	}
	return append([]core.Message(nil), w...)
}

// execute runs the calls with bounded parallelism. Results keep call order.
func (a *AssistantAgent) execute(ctx context.Context, calls []core.FunctionCall) []core.FunctionResponse {
	results := make([]core.FunctionResponse, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	if a.opts.ToolParallelism > 0 {
		g.SetLimit(a.opts.ToolParallelism)
	}
	for i, fc := range calls {
		g.Go(func() error {
			results[i] = a.invoke(gctx, fc)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (a *AssistantAgent) invoke(ctx context.Context, fc core.FunctionCall) (resp core.FunctionResponse) {
	if a.opts.ToolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.ToolTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("agent.function.panic", "function", fc.Name, "recover", r, "stack", string(debug.Stack()))
			resp = core.FunctionResponse{ID: fc.ID, Name: fc.Name, Error: fmt.Sprintf("panic: %v", r)}
		}
		a.logger.Info(
			"agent.function.executed",
			"function", fc.Name,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", resp.Error != "",
		)
	}()

	return tool.Invoke(ctx, a.opts.Tools, fc)
}

func send(ctx context.Context, events chan<- core.Event, ev core.Event) error {
	select {
	case events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
