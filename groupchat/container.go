package groupchat

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/logging"
	"github.com/hupe1980/agentcrew/router"
)

// Container wraps one agent. It buffers published messages and turns the
// buffer into one agent turn on request. All handlers of a container run on
// the same router mailbox, so the buffer is never mutated concurrently.
type Container struct {
	agent  core.ChatAgent
	router *router.Router
	chatID string
	logger logging.Logger

	mu     sync.Mutex // guards buffer for Buffered
	buffer []core.Message
}

// NewContainer creates a container for agent within chat chatID.
func NewContainer(chatID string, agent core.ChatAgent, r *router.Router, logger logging.Logger) *Container {
	return &Container{
		agent:  agent,
		router: r,
		chatID: chatID,
		logger: logging.With(logging.OrNoOp(logger), "agent", agent.Name()),
	}
}

// Agent returns the wrapped agent.
func (c *Container) Agent() core.ChatAgent { return c.agent }

// Buffered returns a copy of the messages not yet handed to the agent.
func (c *Container) Buffered() []core.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Message(nil), c.buffer...)
}

// Subscribe attaches the container to the group topic and its request topic.
// Both subscriptions share the subscriber identity so delivery stays FIFO
// across them.
func (c *Container) Subscribe() (func(), error) {
	sub := c.chatID + "/container:" + c.agent.Name()

	unsubGroup, err := c.router.Subscribe(scoped(c.chatID, GroupTopic), sub, c.Handle)
	if err != nil {
		return nil, err
	}
	unsubReq, err := c.router.Subscribe(requestTopic(c.chatID, c.agent.Name()), sub, c.Handle)
	if err != nil {
		unsubGroup()
		return nil, err
	}
	return func() {
		unsubReq()
		unsubGroup()
	}, nil
}

// Handle processes one routed envelope.
func (c *Container) Handle(ctx context.Context, env router.Envelope) error {
	switch ev := env.Payload.(type) {
	case PublishEvent:
		if ev.Message.Source == c.agent.Name() && !ev.Seeded {
			return nil
		}
		c.mu.Lock()
		c.buffer = append(c.buffer, ev.Message)
		c.mu.Unlock()
		return nil
	case RequestEvent:
		resp, err := c.turn(ctx, ev)
		if err != nil {
			c.logger.Warn("turn failed", "turn", ev.TurnID, "attempt", ev.Attempt, "error", err)
			return c.router.Publish(ctx, scoped(c.chatID, ParentTopic), router.Envelope{
				Source:  c.agent.Name(),
				Payload: TurnFailedEvent{TurnID: ev.TurnID, Agent: c.agent.Name(), Err: err},
			})
		}

		c.mu.Lock()
		c.buffer = nil
		c.mu.Unlock()

		return c.router.Publish(ctx, scoped(c.chatID, ParentTopic), router.Envelope{
			Source:  c.agent.Name(),
			Payload: ResponseEvent{TurnID: ev.TurnID, Agent: c.agent.Name(), Response: resp},
		})
	default:
		return fmt.Errorf("container %s: unexpected payload %T", c.agent.Name(), env.Payload)
	}
}

// turn drives the agent over the buffered messages and enforces the stream
// contract: declared message types only, exactly one terminal Response.
func (c *Container) turn(ctx context.Context, req RequestEvent) (core.Response, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, errCh := c.agent.OnMessagesStream(ctx, c.Buffered(), core.TurnOptions{Attempt: req.Attempt, Seed: req.Seed})

	var (
		final    core.Response
		finals   int
		protoErr error
	)
	for ev := range events {
		if protoErr != nil {
			continue
		}
		if finals > 0 {
			reason := "event after terminal response"
			if _, ok := ev.(core.Response); ok {
				reason = "more than one terminal response"
			}
			protoErr = c.protocolError(reason)
			cancel()
			continue
		}
		switch e := ev.(type) {
		case core.Response:
			finals++
			if !core.Produces(c.agent, e.Message.Type) {
				protoErr = c.protocolError(fmt.Sprintf("undeclared message type %q", e.Message.Type))
				cancel()
				continue
			}
			final = e
		case core.Message:
			if !core.Produces(c.agent, e.Type) {
				protoErr = c.protocolError(fmt.Sprintf("undeclared message type %q", e.Type))
				cancel()
				continue
			}
			if err := c.router.Publish(ctx, scoped(c.chatID, OutputTopic), router.Envelope{
				Source:  c.agent.Name(),
				Payload: ProgressEvent{Agent: c.agent.Name(), Message: e},
			}); err != nil {
				c.logger.Warn("publish progress failed", "error", err)
			}
		default:
			protoErr = c.protocolError(fmt.Sprintf("unknown event %T", ev))
			cancel()
		}
	}
	err := <-errCh

	if protoErr != nil {
		return core.Response{}, protoErr
	}
	if err != nil {
		return core.Response{}, err
	}
	if finals == 0 {
		return core.Response{}, c.protocolError("no terminal response")
	}
	return final, nil
}

func (c *Container) protocolError(reason string) error {
	return &core.ProtocolError{Agent: c.agent.Name(), Reason: reason}
}
