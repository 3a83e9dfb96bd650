package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentcrew/code"
	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/logging"
)

// InputMode controls when a UserProxyAgent asks the human.
type InputMode string

const (
	// InputAlways asks the human on every turn.
	InputAlways InputMode = "ALWAYS"
	// InputTerminate asks only when a termination marker arrives or the
	// auto-reply budget is spent.
	InputTerminate InputMode = "TERMINATE"
	// InputNever never asks; replies are automatic.
	InputNever InputMode = "NEVER"
)

// ExitCommand typed by the human ends the conversation.
const ExitCommand = "exit"

// UserProxyOptions configures a UserProxyAgent.
type UserProxyOptions struct {
	Description string
	Mode        InputMode
	Input       InputProvider
	Output      OutputSink
	// Patience bounds every human input wait.
	Patience time.Duration
	// TimeoutSentinel, when non-empty, replaces a timed-out input instead of
	// failing the turn with a TimeoutError.
	TimeoutSentinel string
	// Executor runs code blocks found in the latest message.
	Executor code.Executor
	// MaxConsecutiveAutoReply bounds automatic replies before a stop. 0 means unlimited.
	MaxConsecutiveAutoReply int
	DefaultAutoReply        string
	TerminationMarker       string
	Logger                  logging.Logger
}

// WithTimeoutSentinel makes a patience timeout behave as if the human typed s.
func WithTimeoutSentinel(s string) func(o *UserProxyOptions) {
	return func(o *UserProxyOptions) { o.TimeoutSentinel = s }
}

// UserProxyAgent stands in for a human participant.
type UserProxyAgent struct {
	BaseAgent
	opts   UserProxyOptions
	logger logging.Logger

	last        *core.Message // guarded by BaseAgent.mu
	autoReplies int
}

// NewUserProxyAgent creates a user proxy. Without an InputProvider the mode
// is forced to NEVER.
func NewUserProxyAgent(name string, optFns ...func(o *UserProxyOptions)) *UserProxyAgent {
	opts := UserProxyOptions{
		Mode:              InputAlways,
		Output:            discardSink{},
		Patience:          5 * time.Minute,
		TerminationMarker: "TERMINATE",
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Input == nil {
		opts.Mode = InputNever
	}
	if opts.Output == nil {
		opts.Output = discardSink{}
	}

	return &UserProxyAgent{
		BaseAgent: NewBaseAgent(name, opts.Description, "A human user. Interacts with the assistants and executes the code they write."),
		opts:      opts,
		logger:    logging.With(logging.OrNoOp(opts.Logger), "agent", name),
	}
}

// ProducedMessageTypes implements core.ChatAgent.
func (u *UserProxyAgent) ProducedMessageTypes() []core.MessageType {
	return []core.MessageType{core.MessageTypeText, core.MessageTypeStop}
}

// Reset implements core.ChatAgent.
func (u *UserProxyAgent) Reset(context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.last = nil
	u.autoReplies = 0
	return nil
}

// AwaitInput asks the human for input and waits at most Patience. The wait
// never outlives the patience window, even if the provider ignores ctx.
func (u *UserProxyAgent) AwaitInput(ctx context.Context, prompt string) (string, error) {
	waitCtx, cancel := context.WithTimeout(ctx, u.opts.Patience)
	defer cancel()

	type reply struct {
		text string
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		text, err := u.opts.Input.ReadInput(waitCtx, prompt)
		done <- reply{text, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && waitCtx.Err() == nil {
			return "", fmt.Errorf("human input: %w", r.err)
		}
		if r.err == nil {
			return r.text, nil
		}
	case <-waitCtx.Done():
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if u.opts.TimeoutSentinel != "" {
		u.logger.Warn("human input timed out, substituting sentinel", "patience", u.opts.Patience.String())
		return u.opts.TimeoutSentinel, nil
	}
	return "", &core.TimeoutError{Op: "human input", After: u.opts.Patience}
}

// OnMessagesStream implements core.ChatAgent.
func (u *UserProxyAgent) OnMessagesStream(ctx context.Context, messages []core.Message, _ core.TurnOptions) (<-chan core.Event, <-chan error) {
	events := make(chan core.Event, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errCh)

		u.mu.Lock()
		defer u.mu.Unlock()

		for _, m := range messages {
			u.opts.Output.Print(m)
			u.last = &m
		}

		msg, err := u.reply(ctx)
		if err != nil {
			errCh <- err
			return
		}
		if err := send(ctx, events, core.Response{Message: msg}); err != nil {
			errCh <- err
		}
	}()

	return events, errCh
}

func (u *UserProxyAgent) reply(ctx context.Context) (core.Message, error) {
	if u.shouldAsk() {
		text, err := u.AwaitInput(ctx, fmt.Sprintf("Provide feedback to chat. Press enter to skip and use auto-reply, or type '%s' to end the conversation: ", ExitCommand))
		if err != nil {
			return core.Message{}, err
		}
		text = strings.TrimSpace(text)
		if text == ExitCommand {
			return core.NewStopMessage(u.Name(), core.RoleHuman, "human requested exit"), nil
		}
		if text != "" {
			u.autoReplies = 0
			return core.NewTextMessage(u.Name(), core.RoleHuman, text), nil
		}
	}

	if limit := u.opts.MaxConsecutiveAutoReply; limit > 0 && u.autoReplies >= limit {
		return core.NewStopMessage(u.Name(), core.RoleUser, "auto-reply budget exhausted"), nil
	}
	u.autoReplies++

	return u.autoReply(ctx)
}

func (u *UserProxyAgent) shouldAsk() bool {
	switch u.opts.Mode {
	case InputAlways:
		return true
	case InputTerminate:
		if limit := u.opts.MaxConsecutiveAutoReply; limit > 0 && u.autoReplies >= limit {
			return true
		}
		return u.last != nil && strings.Contains(u.last.Content, u.opts.TerminationMarker)
	default:
		return false
	}
}

// autoReply executes code found in the last message, or falls back to the
// default auto reply.
func (u *UserProxyAgent) autoReply(ctx context.Context) (core.Message, error) {
	if u.opts.Executor != nil && u.last != nil {
		if blocks := code.ExtractBlocks(u.last.Content); len(blocks) > 0 {
			res, err := u.opts.Executor.Execute(ctx, blocks)
			if err != nil {
				return core.Message{}, fmt.Errorf("execute code: %w", err)
			}
			status := "execution succeeded"
			if res.ExitCode != 0 {
				status = "execution failed"
			}
			u.logger.Info("code executed", "blocks", len(blocks), "exit_code", res.ExitCode)
			content := fmt.Sprintf("exitcode: %d (%s)\nCode output: %s", res.ExitCode, status, res.Output)
			return core.NewTextMessage(u.Name(), core.RoleUser, content), nil
		}
	}
	return core.NewTextMessage(u.Name(), core.RoleUser, u.opts.DefaultAutoReply), nil
}
